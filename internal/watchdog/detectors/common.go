// Package detectors implements the concrete anomaly checks run by the
// watchdog fleet: each type implements watchdog.Checker and is wrapped in a
// watchdog.BaseWatchdog by the caller, which supplies the check interval,
// retry policy, and event bus.
package detectors

import (
	"sync"
	"time"

	"github.com/aristath/sentinel-gateway/internal/events"
)

// dedupState suppresses repeated emission of the same (asset, detector)
// anomaly until the prior trigger has aged out of its window. This is
// per-detector state, not the event stream's job.
type dedupState struct {
	mu      sync.Mutex
	firedAt map[string]time.Time
	window  time.Duration
}

func newDedupState(window time.Duration) *dedupState {
	return &dedupState{firedAt: make(map[string]time.Time), window: window}
}

func (d *dedupState) shouldSuppress(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.firedAt[key]
	return ok && time.Since(t) < d.window
}

func (d *dedupState) markFired(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.firedAt[key] = time.Now()
}

// candleCloses/candleVolumes extract parallel series from the generic
// candle shape every provider emits (internal/providers/mock.go and
// internal/providers/equity.go agree on this map shape).
func candleCloses(candles []map[string]interface{}) []float64 {
	out := make([]float64, 0, len(candles))
	for _, c := range candles {
		if v, ok := toFloat(c["close"]); ok {
			out = append(out, v)
		}
	}
	return out
}

func candleVolumes(candles []map[string]interface{}) []float64 {
	out := make([]float64, 0, len(candles))
	for _, c := range candles {
		if v, ok := toFloat(c["volume"]); ok {
			out = append(out, v)
		}
	}
	return out
}

func candlesFromResponse(data map[string]interface{}) []map[string]interface{} {
	raw, ok := data["candles"].([]map[string]interface{})
	if !ok {
		return nil
	}
	return raw
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func newEvent(t events.EventType, sev events.Severity, symbol, desc string, data map[string]interface{}) *events.Event {
	return &events.Event{
		Type:        t,
		Severity:    sev,
		AssetSymbol: symbol,
		Description: desc,
		Data:        data,
		Timestamp:   time.Now(),
	}
}
