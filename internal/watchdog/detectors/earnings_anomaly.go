package detectors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aristath/sentinel-gateway/internal/domain"
	"github.com/aristath/sentinel-gateway/internal/events"
)

// EarningsAnomalyDetector compares reported EPS against consensus estimate
// for a watchlist of equities. Recommended interval: 5 minutes.
//
// Fundamentals providers that don't carry earnings surprise data simply
// omit eps_actual/eps_estimate from their response; assets lacking both
// keys are skipped rather than treated as an error.
type EarningsAnomalyDetector struct {
	provider       domain.Provider
	watchlist      []domain.Asset
	thresholdRatio float64
	dedup          *dedupState
}

func NewEarningsAnomalyDetector(provider domain.Provider, watchlist []domain.Asset) *EarningsAnomalyDetector {
	return &EarningsAnomalyDetector{
		provider:       provider,
		watchlist:      watchlist,
		thresholdRatio: 0.10,
		dedup:          newDedupState(24 * time.Hour),
	}
}

func (d *EarningsAnomalyDetector) Name() string { return "earnings_anomaly" }

func (d *EarningsAnomalyDetector) Check(ctx context.Context) (*events.Event, error) {
	for _, asset := range d.watchlist {
		resp, err := d.provider.FetchFundamentals(ctx, asset)
		if err != nil || resp == nil || !resp.IsValid {
			continue
		}

		actual, okA := toFloat(resp.Data["eps_actual"])
		estimate, okE := toFloat(resp.Data["eps_estimate"])
		if !okA || !okE || estimate == 0 {
			continue
		}

		surprise := math.Abs(actual-estimate) / math.Abs(estimate)
		if surprise <= d.thresholdRatio {
			continue
		}

		if d.dedup.shouldSuppress(asset.Key()) {
			continue
		}
		d.dedup.markFired(asset.Key())

		sev := events.SeverityMedium
		if surprise > 0.25 {
			sev = events.SeverityHigh
		}

		return newEvent(events.EventEarningsAnomaly, sev, asset.Symbol,
			fmt.Sprintf("%s earnings surprise %.1f%% (actual %.2f vs estimate %.2f)", asset.Symbol, surprise*100, actual, estimate),
			map[string]interface{}{"actual": actual, "estimate": estimate, "surprise_ratio": surprise},
		), nil
	}
	return nil, nil
}
