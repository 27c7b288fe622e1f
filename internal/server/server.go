// Package server provides the HTTP API: health and version endpoints, the
// unified SSE event stream, asset lookup through the cache and arbitration
// layers, and alert CRUD.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/sentinel-gateway/internal/alerts"
	"github.com/aristath/sentinel-gateway/internal/arbitration"
	"github.com/aristath/sentinel-gateway/internal/cache"
	"github.com/aristath/sentinel-gateway/internal/events"
	"github.com/aristath/sentinel-gateway/internal/guardrail"
	"github.com/aristath/sentinel-gateway/internal/providers"
	"github.com/aristath/sentinel-gateway/internal/version"
	"github.com/aristath/sentinel-gateway/internal/watchdog"
)

// Config bundles everything the HTTP layer needs. Every field is required
// except Guardrail, GuardrailAudit and Broadcaster, which may be nil; the
// alert handlers use AlertEngine and AlertStore without a nil check.
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool
	DataDir string

	EventBus        *events.Bus
	Broadcaster     *events.WebSocketBroadcaster
	CacheManager    *cache.Manager
	Arbitration     *arbitration.Engine
	Registry        *providers.Registry
	WatchdogManager *watchdog.Manager
	Guardrail       *guardrail.Guardrail
	GuardrailAudit  *guardrail.Auditor
	AlertEngine     *alerts.Engine
	AlertStore      *alerts.Store
}

// Server wraps the chi router and the http.Server lifecycle.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config

	eventsHandler *EventsStreamHandler
}

// New builds the router and registers every route, but does not start
// listening; call Start for that.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
	}

	s.eventsHandler = NewEventsStreamHandler(cfg.EventBus, s.log)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// loggingMiddleware logs one line per request: method, path, status, bytes
// written, duration, and the chi request id for correlation with other
// component logs.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)

	// Registered ahead of the rest of the API routes, matching the way
	// the streaming handler needs to bypass Compress and Timeout's
	// buffering behavior for long-lived connections.
	s.router.Get("/api/events/stream", s.eventsHandler.ServeHTTP)
	if s.cfg.Broadcaster != nil {
		s.router.Get("/api/events/ws", s.cfg.Broadcaster.ServeHTTP)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/assets/{dataType}/{symbol}", s.handleAssetLookup)
		r.Get("/events/recent", s.handleRecentEvents)
		r.Get("/watchdogs/health", s.handleWatchdogHealth)
		r.Get("/providers/health", s.handleProviderHealth)

		r.Post("/compliance/check", s.handleComplianceCheck)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Post("/", s.handleCreateAlert)
			r.Get("/{alertID}", s.handleGetAlert)
			r.Put("/{alertID}", s.handleUpdateAlert)
			r.Delete("/{alertID}", s.handleDeleteAlert)
		})
	})
}

// handleHealth reports process-level health: always 200 once the server
// is accepting connections, with memory stats via gopsutil for operators
// watching for pressure ahead of the reliability package's own disk-space
// checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "ok"}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory_used_percent"] = vm.UsedPercent
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": version.Version,
		"commit":  version.Commit,
	})
}

// Start begins serving. It blocks until the listener stops, returning
// http.ErrServerClosed on a graceful Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
