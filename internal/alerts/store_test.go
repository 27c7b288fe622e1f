package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-gateway/internal/database"
	"github.com/aristath/sentinel-gateway/internal/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file::memory:?cache=shared",
		Profile: database.ProfileStandard,
		Name:    "alerts",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func sampleAlert() *AlertConfig {
	return &AlertConfig{
		Name:        "BTC flash crash",
		Description: "notify on sharp BTC drops",
		Enabled:     true,
		Trigger: AlertTrigger{
			Filter:      events.EventFilter{EventTypes: []events.EventType{events.EventPriceAnomaly}, AssetSymbols: []string{"BTC/USDT"}},
			Description: "price_anomaly on BTC/USDT",
		},
		DeliveryMethods: []DeliveryMethod{DeliveryWebhook},
		WebhookCfg:      &WebhookConfig{URL: "https://example.test/hook", Method: "POST"},
		CooldownSeconds: 300,
	}
}

func TestStore_CreateAndGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	a := sampleAlert()

	require.NoError(t, s.Create(a))
	assert.NotEmpty(t, a.AlertID)

	got, err := s.Get(a.AlertID)
	require.NoError(t, err)
	assert.Equal(t, a.Name, got.Name)
	assert.Equal(t, []DeliveryMethod{DeliveryWebhook}, got.DeliveryMethods)
	require.NotNil(t, got.WebhookCfg)
	assert.Equal(t, "https://example.test/hook", got.WebhookCfg.URL)
	assert.Equal(t, []events.EventType{events.EventPriceAnomaly}, got.Trigger.Filter.EventTypes)
}

func TestStore_UpdateChangesFields(t *testing.T) {
	s := newTestStore(t)
	a := sampleAlert()
	require.NoError(t, s.Create(a))

	a.Enabled = false
	a.CooldownSeconds = 60
	require.NoError(t, s.Update(a))

	got, err := s.Get(a.AlertID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, 60, got.CooldownSeconds)
}

func TestStore_RecordTriggerIncrementsCount(t *testing.T) {
	s := newTestStore(t)
	a := sampleAlert()
	require.NoError(t, s.Create(a))

	require.NoError(t, s.RecordTrigger(a.AlertID, time.Now()))

	got, err := s.Get(a.AlertID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.TriggerCount)
	assert.NotZero(t, got.LastTriggeredUnix)
}

func TestStore_DeleteRemovesAlert(t *testing.T) {
	s := newTestStore(t)
	a := sampleAlert()
	require.NoError(t, s.Create(a))

	require.NoError(t, s.Delete(a.AlertID))

	_, err := s.Get(a.AlertID)
	assert.Error(t, err)
}

func TestStore_ListReturnsAllAlerts(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(sampleAlert()))
	require.NoError(t, s.Create(sampleAlert()))

	all, err := s.List()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
