package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/sentinel-gateway/internal/alerts"
	"github.com/aristath/sentinel-gateway/internal/cache"
	"github.com/aristath/sentinel-gateway/internal/domain"
	"github.com/aristath/sentinel-gateway/internal/events"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleAssetLookup resolves a symbol through the cache manager, falling
// back to the arbitration engine on a miss. dataType and symbol come from
// the path; region and scope are optional query parameters.
func (s *Server) handleAssetLookup(w http.ResponseWriter, r *http.Request) {
	dataType := domain.DataType(chi.URLParam(r, "dataType"))
	symbol := chi.URLParam(r, "symbol")
	region := r.URL.Query().Get("region")
	scope := r.URL.Query().Get("scope")

	asset := domain.NewAsset(symbol, domain.AssetType(r.URL.Query().Get("asset_type")))
	key := cache.Key(dataType, asset, scope)

	resp, lineage, err := s.cfg.CacheManager.GetWithReadThrough(key, dataType, asset, volatilityFor(r), func() (*domain.ProviderResponse, domain.DataLineage, error) {
		plan, ordered, planErr := s.cfg.Arbitration.ArbitrateRequest(asset, dataType, region)
		if planErr != nil {
			return nil, domain.DataLineage{}, planErr
		}
		result, execErr := s.cfg.Arbitration.ExecuteWithFallback(r.Context(), plan, ordered, asset, dataType, region, r.URL.Query().Get("timeframe"), queryInt(r, "limit", 100))
		if execErr != nil {
			return nil, domain.DataLineage{}, execErr
		}
		return result.Response, result.Lineage, nil
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"response": resp,
		"lineage":  lineage,
	})
}

// volatilityFor builds the cache TTL-shrinking signal from optional query
// parameters; both default to the calm/closed case when absent.
func volatilityFor(r *http.Request) cache.Volatility {
	vol := cache.Volatility{MarketOpen: r.URL.Query().Get("market_open") == "true"}
	if v := r.URL.Query().Get("change_24h_percent"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			vol.Change24hPercent = f
		}
	}
	return vol
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// handleRecentEvents returns the ring-buffer history, optionally filtered
// by a comma-separated "types" query parameter.
func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	var filter *events.EventFilter
	if types := r.URL.Query().Get("types"); types != "" {
		filter = &events.EventFilter{EventTypes: splitEventTypes(types)}
	}
	writeJSON(w, http.StatusOK, s.cfg.EventBus.GetHistory(filter, limit))
}

func splitEventTypes(csv string) []events.EventType {
	var out []events.EventType
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, events.EventType(csv[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func (s *Server) handleWatchdogHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.WatchdogManager.GetHealth())
}

func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Registry.GetAllHealth())
}

type complianceRequest struct {
	Text             string `json:"text"`
	AssetClass       string `json:"asset_class"`
	Region           string `json:"region"`
	LanguageOverride string `json:"language_override"`
}

// handleComplianceCheck runs narrative text through the guardrail pipeline.
// Returns 404 if the gateway was started without a guardrail (e.g. in a
// deployment that only needs the data-arbitration surface).
func (s *Server) handleComplianceCheck(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Guardrail == nil {
		http.NotFound(w, r)
		return
	}
	var req complianceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.cfg.Guardrail.Process(req.Text, req.AssetClass, req.Region, req.LanguageOverride)
	if result != nil && s.cfg.GuardrailAudit != nil {
		if auditErr := s.cfg.GuardrailAudit.Record(result); auditErr != nil {
			s.log.Error().Err(auditErr).Msg("failed to record guardrail audit row")
		}
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	list, err := s.cfg.AlertStore.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.cfg.AlertStore.Get(chi.URLParam(r, "alertID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var cfg alerts.AlertConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cfg.AlertEngine.Create(r.Context(), &cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	var cfg alerts.AlertConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg.AlertID = chi.URLParam(r, "alertID")
	if err := s.cfg.AlertEngine.Update(r.Context(), &cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.AlertEngine.Delete(chi.URLParam(r, "alertID")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
