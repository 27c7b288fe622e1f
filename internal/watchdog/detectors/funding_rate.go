package detectors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aristath/sentinel-gateway/internal/domain"
	"github.com/aristath/sentinel-gateway/internal/events"
)

// FundingRateFetcher returns the recent 8-hour perpetual funding rates for
// an asset, most recent first. Wiring supplies the concrete exchange client.
type FundingRateFetcher func(ctx context.Context, asset domain.Asset) ([]float64, error)

// FundingRateDetector flags an average funding rate outside the normal
// band, a signal of crowded positioning. Recommended interval: 5 minutes.
type FundingRateDetector struct {
	fetch          FundingRateFetcher
	watchlist      []domain.Asset
	thresholdRatio float64
	dedup          *dedupState
}

func NewFundingRateDetector(fetch FundingRateFetcher, watchlist []domain.Asset) *FundingRateDetector {
	return &FundingRateDetector{
		fetch:          fetch,
		watchlist:      watchlist,
		thresholdRatio: 0.001,
		dedup:          newDedupState(30 * time.Minute),
	}
}

func (d *FundingRateDetector) Name() string { return "funding_rate" }

func (d *FundingRateDetector) Check(ctx context.Context) (*events.Event, error) {
	for _, asset := range d.watchlist {
		rates, err := d.fetch(ctx, asset)
		if err != nil || len(rates) == 0 {
			continue
		}

		avg := mean(rates)
		if math.Abs(avg) <= d.thresholdRatio {
			continue
		}

		if d.dedup.shouldSuppress(asset.Key()) {
			continue
		}
		d.dedup.markFired(asset.Key())

		sev := events.SeverityMedium
		if math.Abs(avg) > d.thresholdRatio*3 {
			sev = events.SeverityHigh
		}

		return newEvent(events.EventFundingRateAnomaly, sev, asset.Symbol,
			fmt.Sprintf("%s average funding rate %.3f%% exceeds band", asset.Symbol, avg*100),
			map[string]interface{}{"avg_funding_rate": avg, "sample_size": len(rates)},
		), nil
	}
	return nil, nil
}
