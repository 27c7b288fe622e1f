package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-gateway/internal/alerts"
	"github.com/aristath/sentinel-gateway/internal/arbitration"
	"github.com/aristath/sentinel-gateway/internal/cache"
	"github.com/aristath/sentinel-gateway/internal/database"
	"github.com/aristath/sentinel-gateway/internal/domain"
	"github.com/aristath/sentinel-gateway/internal/events"
	"github.com/aristath/sentinel-gateway/internal/providers"
	"github.com/aristath/sentinel-gateway/internal/watchdog"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	cacheDB, err := database.New(database.Config{Path: filepath.Join(dir, "cache.db"), Profile: database.ProfileStandard, Name: "cache"})
	require.NoError(t, err)
	require.NoError(t, cacheDB.Migrate())
	t.Cleanup(func() { _ = cacheDB.Close() })

	alertsDB, err := database.New(database.Config{Path: filepath.Join(dir, "alerts.db"), Profile: database.ProfileStandard, Name: "alerts"})
	require.NoError(t, err)
	require.NoError(t, alertsDB.Migrate())
	t.Cleanup(func() { _ = alertsDB.Close() })

	log := zerolog.Nop()
	bus := events.NewBus(100, nil, nil, log)

	registry, err := providers.NewRegistry(context.Background(), nil, log)
	require.NoError(t, err)

	arb := arbitration.NewEngine(registry, log)
	cacheMgr := cache.NewManager(cache.NewL1(), cache.NewL2(cacheDB, log), log)
	watchdogMgr := watchdog.NewManager(bus, log)

	store := alerts.NewStore(alertsDB)
	deliverer := alerts.NewDeliverer(log, 1)
	t.Cleanup(deliverer.Stop)
	alertEngine := alerts.NewEngine(store, bus, deliverer, log)

	return New(Config{
		Log:             log,
		Port:            0,
		DevMode:         true,
		DataDir:         dir,
		EventBus:        bus,
		CacheManager:    cacheMgr,
		Arbitration:     arb,
		Registry:        registry,
		WatchdogManager: watchdogMgr,
		AlertEngine:     alertEngine,
		AlertStore:      store,
	})
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleVersion_ReturnsVersionFields(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "version")
}

func TestHandleAlerts_CreateThenList(t *testing.T) {
	s := newTestServer(t)

	body := `{"name":"test alert","enabled":true,"trigger":{"filter":{"event_types":["price_anomaly"]}},"delivery_methods":["webhook"],"webhook_cfg":{"url":"https://example.test","method":"POST"},"cooldown_seconds":60}`
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/api/alerts/", nil)
	listRec := httptest.NewRecorder()
	s.router.ServeHTTP(listRec, listReq)
	assert.Equal(t, http.StatusOK, listRec.Code)
	assert.Contains(t, listRec.Body.String(), "test alert")
}

func TestHandleComplianceCheck_NotFoundWhenGuardrailDisabled(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/compliance/check", strings.NewReader(`{"text":"buy now"}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRecentEvents_ReturnsEmittedEvent(t *testing.T) {
	s := newTestServer(t)
	s.cfg.EventBus.Emit(&events.Event{Type: events.EventPriceAnomaly, Severity: events.SeverityHigh, AssetSymbol: "AAPL"})

	req := httptest.NewRequest(http.MethodGet, "/api/events/recent", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AAPL")
}

func TestHandleAssetLookup_NoProvidersReturnsBadGateway(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/assets/price/AAPL?asset_type="+string(domain.AssetEquity), nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
