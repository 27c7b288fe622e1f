// Package watchdog implements the periodic-detector base contract and the
// manager that owns the detector fleet, wiring each to the shared event
// stream with circuit-breaker health tracking.
package watchdog

import "sync"

// Status is the closed set of watchdog lifecycle/health states.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnhealthy   Status = "unhealthy"
	StatusStopped     Status = "stopped"
)

// Health is the runtime health record for one watchdog, owned by the
// watchdog and exposed read-only via copies.
type Health struct {
	Name                string
	Status              Status
	LastCheckUnix       int64
	LastEventUnix       int64
	EventsEmitted       int64
	Errors              int64
	ConsecutiveFailures int
	UptimeSeconds       int64
}

// healthState is the mutable, lock-protected counterpart Health snapshots from.
type healthState struct {
	mu                  sync.RWMutex
	name                string
	status              Status
	lastCheckUnix       int64
	lastEventUnix       int64
	eventsEmitted       int64
	errors              int64
	consecutiveFailures int
	startedAtUnix       int64
}

func newHealthState(name string) *healthState {
	return &healthState{name: name, status: StatusInitialized}
}

func (h *healthState) snapshot(nowUnix int64) Health {
	h.mu.RLock()
	defer h.mu.RUnlock()

	uptime := int64(0)
	if h.startedAtUnix > 0 {
		uptime = nowUnix - h.startedAtUnix
	}

	return Health{
		Name:                h.name,
		Status:              h.status,
		LastCheckUnix:       h.lastCheckUnix,
		LastEventUnix:       h.lastEventUnix,
		EventsEmitted:       h.eventsEmitted,
		Errors:              h.errors,
		ConsecutiveFailures: h.consecutiveFailures,
		UptimeSeconds:       uptime,
	}
}

func (h *healthState) markStarted(nowUnix int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startedAtUnix = nowUnix
	h.status = StatusHealthy
}

func (h *healthState) markStopped() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = StatusStopped
}

// recordSuccess resets consecutive failures and transitions back to healthy.
func (h *healthState) recordSuccess(nowUnix int64, emittedEvent bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCheckUnix = nowUnix
	h.consecutiveFailures = 0
	h.status = StatusHealthy
	if emittedEvent {
		h.eventsEmitted++
		h.lastEventUnix = nowUnix
	}
}

// recordFailure advances consecutive failures and recomputes status against
// maxRetries: degraded while 0 < failures < maxRetries, unhealthy at or past it.
func (h *healthState) recordFailure(maxRetries int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors++
	h.consecutiveFailures++
	if h.consecutiveFailures >= maxRetries {
		h.status = StatusUnhealthy
	} else {
		h.status = StatusDegraded
	}
}
