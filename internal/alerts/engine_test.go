package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-gateway/internal/events"
)

func TestEngine_TriggersOnMatchingEventAndRespectsCooldown(t *testing.T) {
	store := newTestStore(t)
	bus := events.NewBus(10, nil, nil, zerolog.Nop())
	deliverer := NewDeliverer(zerolog.Nop(), 1)
	t.Cleanup(deliverer.Stop)

	engine := NewEngine(store, bus, deliverer, zerolog.Nop())

	a := sampleAlert()
	a.CooldownSeconds = 3600
	require.NoError(t, engine.Create(context.Background(), a))

	bus.Emit(&events.Event{Type: events.EventPriceAnomaly, Severity: events.SeverityCritical, AssetSymbol: "BTC/USDT"})
	time.Sleep(20 * time.Millisecond)

	got, err := store.Get(a.AlertID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.TriggerCount)

	bus.Emit(&events.Event{Type: events.EventPriceAnomaly, Severity: events.SeverityCritical, AssetSymbol: "BTC/USDT"})
	time.Sleep(20 * time.Millisecond)

	got, err = store.Get(a.AlertID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.TriggerCount, "second event within cooldown should not retrigger")
}

func TestEngine_DisabledAlertDoesNotSubscribe(t *testing.T) {
	store := newTestStore(t)
	bus := events.NewBus(10, nil, nil, zerolog.Nop())
	deliverer := NewDeliverer(zerolog.Nop(), 1)
	t.Cleanup(deliverer.Stop)

	engine := NewEngine(store, bus, deliverer, zerolog.Nop())

	a := sampleAlert()
	a.Enabled = false
	require.NoError(t, engine.Create(context.Background(), a))

	bus.Emit(&events.Event{Type: events.EventPriceAnomaly, Severity: events.SeverityCritical, AssetSymbol: "BTC/USDT"})
	time.Sleep(20 * time.Millisecond)

	got, err := store.Get(a.AlertID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.TriggerCount)
}
