package watchdog

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/events"
)

// Manager owns the detector fleet, wires each to the shared event stream,
// and installs the default critical/high severity log subscribers.
type Manager struct {
	mu        sync.RWMutex
	watchdogs map[string]*BaseWatchdog
	bus       *events.Bus
	log       zerolog.Logger
}

func NewManager(bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		watchdogs: make(map[string]*BaseWatchdog),
		bus:       bus,
		log:       log.With().Str("component", "watchdog_manager").Logger(),
	}
}

// Register adds a watchdog to the fleet. Must be called before Initialize.
func (m *Manager) Register(w *BaseWatchdog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchdogs[w.Name()] = w
}

// Initialize installs the default severity subscribers. Detector
// registration happens via Register before this is called.
func (m *Manager) Initialize() {
	m.bus.Subscribe(func(e *events.Event) {
		m.log.Error().Str("event_id", e.EventID).Str("asset", e.AssetSymbol).Str("watchdog", e.WatchdogName).Msg(e.Description)
	}, &events.EventFilter{Severities: []events.Severity{events.SeverityCritical}}, "watchdog-manager-critical")

	m.bus.Subscribe(func(e *events.Event) {
		m.log.Warn().Str("event_id", e.EventID).Str("asset", e.AssetSymbol).Str("watchdog", e.WatchdogName).Msg(e.Description)
	}, &events.EventFilter{Severities: []events.Severity{events.SeverityHigh}}, "watchdog-manager-high")
}

// Start launches every enabled watchdog concurrently.
func (m *Manager) Start(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.watchdogs {
		w.Start(ctx)
	}
}

// Stop signals shutdown to every watchdog and awaits completion in parallel.
func (m *Manager) Stop() {
	m.mu.RLock()
	watchdogs := make([]*BaseWatchdog, 0, len(m.watchdogs))
	for _, w := range m.watchdogs {
		watchdogs = append(watchdogs, w)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, w := range watchdogs {
		wg.Add(1)
		go func(w *BaseWatchdog) {
			defer wg.Done()
			w.Stop()
		}(w)
	}
	wg.Wait()
}

// Restart stops and re-starts a single watchdog by name.
func (m *Manager) Restart(ctx context.Context, name string) error {
	w, err := m.lookup(name)
	if err != nil {
		return err
	}
	w.Stop()
	w.Start(ctx)
	return nil
}

// Disable stops a watchdog and marks it ineligible to run until re-enabled.
func (m *Manager) Disable(name string) error {
	w, err := m.lookup(name)
	if err != nil {
		return err
	}
	w.Stop()
	w.SetEnabled(false)
	return nil
}

// Enable marks a watchdog eligible to run again and starts it.
func (m *Manager) Enable(ctx context.Context, name string) error {
	w, err := m.lookup(name)
	if err != nil {
		return err
	}
	w.SetEnabled(true)
	w.Start(ctx)
	return nil
}

func (m *Manager) lookup(name string) (*BaseWatchdog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.watchdogs[name]
	if !ok {
		return nil, fmt.Errorf("watchdog %q not found", name)
	}
	return w, nil
}

// GetHealth returns every watchdog's current health, keyed by name.
func (m *Manager) GetHealth() map[string]Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Health, len(m.watchdogs))
	for name, w := range m.watchdogs {
		out[name] = w.GetHealth()
	}
	return out
}

// GetRecentEvents passes through to the event stream's history.
func (m *Manager) GetRecentEvents(filter *events.EventFilter, limit int) []*events.Event {
	return m.bus.GetHistory(filter, limit)
}

// Subscribe passes through to the event stream.
func (m *Manager) Subscribe(handler events.Handler, filter *events.EventFilter) string {
	return m.bus.Subscribe(handler, filter, "")
}

// Unsubscribe passes through to the event stream.
func (m *Manager) Unsubscribe(id string) bool {
	return m.bus.Unsubscribe(id)
}
