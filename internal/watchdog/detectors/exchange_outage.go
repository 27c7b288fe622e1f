package detectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/sentinel-gateway/internal/domain"
	gwerrors "github.com/aristath/sentinel-gateway/internal/errors"
	"github.com/aristath/sentinel-gateway/internal/events"
)

// ExchangeOutageDetector probes a provider with a lightweight request and
// flags provider errors, timeouts, invalid responses, or a single probe
// whose latency exceeds 80% of the budget.
// Recommended interval: 1 minute.
type ExchangeOutageDetector struct {
	provider        domain.Provider
	probeAsset      domain.Asset
	latencyBudgetMs float64
	dedup           *dedupState
}

func NewExchangeOutageDetector(provider domain.Provider, probeAsset domain.Asset, latencyBudgetMs float64) *ExchangeOutageDetector {
	return &ExchangeOutageDetector{
		provider:        provider,
		probeAsset:      probeAsset,
		latencyBudgetMs: latencyBudgetMs,
		dedup:           newDedupState(5 * time.Minute),
	}
}

func (d *ExchangeOutageDetector) Name() string { return "exchange_outage_" + d.provider.Name() }

func (d *ExchangeOutageDetector) Check(ctx context.Context) (*events.Event, error) {
	start := time.Now()
	resp, err := d.provider.FetchPrice(ctx, d.probeAsset)
	elapsedMs := float64(time.Since(start).Milliseconds())

	outage := false
	reason := ""

	switch {
	case err != nil:
		var timeoutErr gwerrors.TimeoutError
		var providerErr gwerrors.ProviderError
		if errors.As(err, &timeoutErr) || errors.As(err, &providerErr) {
			outage = true
			reason = err.Error()
		}
	case resp == nil || !resp.IsValid:
		outage = true
		reason = "invalid response"
	case d.latencyBudgetMs > 0 && elapsedMs > d.latencyBudgetMs*0.8:
		outage = true
		reason = fmt.Sprintf("latency %.0fms exceeds 80%% of %.0fms budget", elapsedMs, d.latencyBudgetMs)
	}

	if !outage {
		return nil, nil
	}

	if d.dedup.shouldSuppress(d.provider.Name()) {
		return nil, nil
	}
	d.dedup.markFired(d.provider.Name())

	return newEvent(events.EventExchangeOutage, events.SeverityHigh, d.probeAsset.Symbol,
		fmt.Sprintf("%s probe failed: %s", d.provider.Name(), reason),
		map[string]interface{}{"provider": d.provider.Name(), "reason": reason, "latency_ms": elapsedMs},
	), nil
}
