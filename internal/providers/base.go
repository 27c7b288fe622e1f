package providers

import (
	"net/http"
	"sync"
	"time"

	gwerrors "github.com/aristath/sentinel-gateway/internal/errors"
)

// rateLimiter is a simple fixed-window request counter, one per provider.
// Grounded on the sliding-daily-counter pattern used by the alphavantage
// client (checkRateLimit/ResetDailyCounter), generalized to a per-minute
// window since most market-data APIs quote limits that way.
type rateLimiter struct {
	mu         sync.Mutex
	maxPerWin  int
	windowSecs int
	count      int
	windowEnd  time.Time
}

func newRateLimiter(maxPerWin int) *rateLimiter {
	if maxPerWin <= 0 {
		maxPerWin = 60
	}
	return &rateLimiter{
		maxPerWin:  maxPerWin,
		windowSecs: 60,
		windowEnd:  time.Now().Add(time.Minute),
	}
}

// check increments the counter and returns RateLimitError once the window's
// budget is exhausted. Resets automatically when the window elapses.
func (rl *rateLimiter) check(providerName string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.After(rl.windowEnd) {
		rl.count = 0
		rl.windowEnd = now.Add(time.Duration(rl.windowSecs) * time.Second)
	}

	if rl.count >= rl.maxPerWin {
		retryAfter := int(rl.windowEnd.Sub(now).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		return gwerrors.RateLimitError{Provider: providerName, RetryAfter: retryAfter}
	}

	rl.count++
	return nil
}

func (rl *rateLimiter) remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	r := rl.maxPerWin - rl.count
	if r < 0 {
		return 0
	}
	return r
}

// healthTracker accumulates the rolling counters GetHealth reports from.
// Every concrete provider embeds one.
type healthTracker struct {
	mu            sync.Mutex
	name          string
	successes     int
	failures      int
	totalLatency  time.Duration
	errorCount24h int
	windowStart   time.Time
}

func newHealthTracker(name string) *healthTracker {
	return &healthTracker{name: name, windowStart: time.Now()}
}

func (h *healthTracker) recordSuccess(latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes++
	h.totalLatency += latency
}

func (h *healthTracker) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.errorCount24h++
}

func (h *healthTracker) snapshot() (successRate, avgLatencyMs, uptimePercent float64, errCount int, healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := h.successes + h.failures
	if total == 0 {
		return 1, 0, 100, 0, true
	}

	successRate = float64(h.successes) / float64(total)
	avgLatencyMs = 0
	if h.successes > 0 {
		avgLatencyMs = float64(h.totalLatency.Milliseconds()) / float64(h.successes)
	}
	uptimePercent = successRate * 100
	errCount = h.errorCount24h
	healthy = successRate >= 0.5
	return
}

// defaultHTTPClient is shared by providers that only need conservative
// timeouts and no per-request customization.
func defaultHTTPClient(timeoutSeconds int) *http.Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 10
	}
	return &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
}
