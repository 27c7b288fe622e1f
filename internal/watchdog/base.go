package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/events"
)

// Checker is implemented by each concrete detector: fetch a reading,
// compare to a window, and return an event on threshold breach, or nil
// when nothing anomalous was found.
type Checker interface {
	Name() string
	Check(ctx context.Context) (*events.Event, error)
}

// Config is the static, per-watchdog tunable policy.
type Config struct {
	CheckInterval time.Duration
	Enabled       bool
	MaxRetries    int
	RetryDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	return c
}

// BaseWatchdog implements the periodic check-with-retry loop and health
// state machine every detector shares. Concrete detectors implement
// Checker and are wrapped in a BaseWatchdog via NewBaseWatchdog.
type BaseWatchdog struct {
	checker Checker
	cfg     Config
	bus     *events.Bus
	log     zerolog.Logger

	health *healthState

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

func NewBaseWatchdog(checker Checker, cfg Config, bus *events.Bus, log zerolog.Logger) *BaseWatchdog {
	return &BaseWatchdog{
		checker: checker,
		cfg:     cfg.withDefaults(),
		bus:     bus,
		log:     log.With().Str("watchdog", checker.Name()).Logger(),
		health:  newHealthState(checker.Name()),
	}
}

func (w *BaseWatchdog) Name() string { return w.checker.Name() }

// Start spawns the cooperative check loop. No-op if the watchdog is
// disabled. Safe to call again after Stop: each run gets fresh stop/done
// channels so a watchdog can be disabled and re-enabled repeatedly.
func (w *BaseWatchdog) Start(ctx context.Context) {
	if !w.cfg.Enabled {
		return
	}
	w.runMu.Lock()
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	stop, done := w.stop, w.done
	w.runMu.Unlock()

	w.health.markStarted(time.Now().Unix())
	go w.loop(ctx, stop, done)
}

// Stop signals shutdown and blocks until the loop has exited. No-op if the
// watchdog was never started.
func (w *BaseWatchdog) Stop() {
	w.runMu.Lock()
	stop, done := w.stop, w.done
	w.runMu.Unlock()
	if stop == nil {
		return
	}

	select {
	case <-stop:
		// already stopped
	default:
		close(stop)
	}
	<-done
	w.health.markStopped()
}

// SetEnabled flips whether this watchdog is eligible to run. Disabling a
// running watchdog does not stop it; the caller (Manager) stops it first.
func (w *BaseWatchdog) SetEnabled(enabled bool) {
	w.runMu.Lock()
	w.cfg.Enabled = enabled
	w.runMu.Unlock()
}

func (w *BaseWatchdog) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	w.runCheckWithRetry(ctx, stop)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runCheckWithRetry(ctx, stop)
		}
	}
}

func (w *BaseWatchdog) runCheckWithRetry(ctx context.Context, stop chan struct{}) {
	var lastErr error

	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		select {
		case <-stop:
			return
		default:
		}

		event, err := w.safeCheck(ctx)
		if err == nil {
			now := time.Now().Unix()
			if event != nil {
				event.WatchdogName = w.Name()
				w.bus.Emit(event)
			}
			w.health.recordSuccess(now, event != nil)
			return
		}

		lastErr = err
		if attempt < w.cfg.MaxRetries {
			select {
			case <-time.After(w.cfg.RetryDelay):
			case <-stop:
				return
			}
		}
	}

	w.log.Error().Err(lastErr).Int("max_retries", w.cfg.MaxRetries).Msg("check failed after retries")
	w.health.recordFailure(w.cfg.MaxRetries)
}

func (w *BaseWatchdog) safeCheck(ctx context.Context) (event *events.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			event = nil
			err = panicToError(r)
		}
	}()
	return w.checker.Check(ctx)
}

func panicToError(r interface{}) error {
	if e, ok := r.(error); ok {
		return e
	}
	return &panicError{value: r}
}

type panicError struct{ value interface{} }

func (p *panicError) Error() string { return "watchdog check panicked" }

// GetHealth returns a point-in-time snapshot of the watchdog's health.
func (w *BaseWatchdog) GetHealth() Health {
	return w.health.snapshot(time.Now().Unix())
}
