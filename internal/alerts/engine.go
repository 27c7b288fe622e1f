package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/events"
)

// Engine owns the live set of active alerts, each subscribed to the event
// stream with its own filter, and fans out delivery on a match.
type Engine struct {
	mu            sync.RWMutex
	store         *Store
	bus           *events.Bus
	deliverer     *Deliverer
	log           zerolog.Logger
	subscriptions map[string]string // alert_id -> bus subscription id
}

func NewEngine(store *Store, bus *events.Bus, deliverer *Deliverer, log zerolog.Logger) *Engine {
	return &Engine{
		store:         store,
		bus:           bus,
		deliverer:     deliverer,
		log:           log.With().Str("component", "alert_engine").Logger(),
		subscriptions: make(map[string]string),
	}
}

// LoadAll subscribes every enabled alert currently in the store. Call once
// at startup after Migrate.
func (e *Engine) LoadAll(ctx context.Context) error {
	configs, err := e.store.List()
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		if cfg.Enabled {
			e.subscribe(ctx, cfg)
		}
	}
	return nil
}

// Create persists a new alert and, if enabled, subscribes it immediately.
func (e *Engine) Create(ctx context.Context, cfg *AlertConfig) error {
	if err := e.store.Create(cfg); err != nil {
		return err
	}
	if cfg.Enabled {
		e.subscribe(ctx, cfg)
	}
	return nil
}

// Update persists changes and re-subscribes to reflect the new filter or
// enabled state.
func (e *Engine) Update(ctx context.Context, cfg *AlertConfig) error {
	if err := e.store.Update(cfg); err != nil {
		return err
	}
	e.unsubscribe(cfg.AlertID)
	if cfg.Enabled {
		e.subscribe(ctx, cfg)
	}
	return nil
}

// Delete removes an alert and tears down its subscription.
func (e *Engine) Delete(alertID string) error {
	e.unsubscribe(alertID)
	return e.store.Delete(alertID)
}

func (e *Engine) subscribe(ctx context.Context, cfg *AlertConfig) {
	filter := cfg.Trigger.Filter
	id := e.bus.Subscribe(func(ev *events.Event) {
		e.handle(ctx, cfg.AlertID, ev)
	}, &filter, "alert-"+cfg.AlertID)

	e.mu.Lock()
	e.subscriptions[cfg.AlertID] = id
	e.mu.Unlock()
}

func (e *Engine) unsubscribe(alertID string) {
	e.mu.Lock()
	id, ok := e.subscriptions[alertID]
	delete(e.subscriptions, alertID)
	e.mu.Unlock()

	if ok {
		e.bus.Unsubscribe(id)
	}
}

// handle runs the per-event decision: skip if disabled or within cooldown,
// else record the trigger and dispatch deliveries concurrently.
func (e *Engine) handle(ctx context.Context, alertID string, ev *events.Event) {
	cfg, err := e.store.Get(alertID)
	if err != nil {
		e.log.Warn().Err(err).Str("alert_id", alertID).Msg("alert disappeared before dispatch")
		return
	}
	if !cfg.Enabled {
		return
	}

	now := time.Now()
	if !cfg.cooldownElapsed(now) {
		return
	}

	if err := e.store.RecordTrigger(alertID, now); err != nil {
		e.log.Error().Err(err).Str("alert_id", alertID).Msg("failed to record alert trigger")
	}

	e.deliverer.DispatchAll(ctx, cfg, ev)
}
