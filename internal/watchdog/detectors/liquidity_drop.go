package detectors

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sentinel-gateway/internal/domain"
	"github.com/aristath/sentinel-gateway/internal/events"
)

// DepthFetcher returns current order book depth and its trailing 7-day
// average for an asset, in quote-currency notional. Wiring supplies the
// concrete exchange client.
type DepthFetcher func(ctx context.Context, asset domain.Asset) (current float64, sevenDayAvg float64, err error)

// LiquidityDropDetector flags order book depth collapsing relative to its
// recent average. Recommended interval: 3 minutes.
type LiquidityDropDetector struct {
	fetch        DepthFetcher
	watchlist    []domain.Asset
	dropFraction float64
	dedup        *dedupState
}

func NewLiquidityDropDetector(fetch DepthFetcher, watchlist []domain.Asset) *LiquidityDropDetector {
	return &LiquidityDropDetector{
		fetch:        fetch,
		watchlist:    watchlist,
		dropFraction: 0.5,
		dedup:        newDedupState(15 * time.Minute),
	}
}

func (d *LiquidityDropDetector) Name() string { return "liquidity_drop" }

func (d *LiquidityDropDetector) Check(ctx context.Context) (*events.Event, error) {
	for _, asset := range d.watchlist {
		current, avg, err := d.fetch(ctx, asset)
		if err != nil || avg <= 0 {
			continue
		}

		ratio := current / avg
		if ratio >= d.dropFraction {
			continue
		}

		if d.dedup.shouldSuppress(asset.Key()) {
			continue
		}
		d.dedup.markFired(asset.Key())

		sev := events.SeverityMedium
		if ratio < d.dropFraction/2 {
			sev = events.SeverityHigh
		}

		return newEvent(events.EventLiquidityDrop, sev, asset.Symbol,
			fmt.Sprintf("%s order book depth %.0f is %.0f%% of its 7-day average %.0f", asset.Symbol, current, ratio*100, avg),
			map[string]interface{}{"current_depth": current, "avg_depth_7d": avg, "ratio": ratio},
		), nil
	}
	return nil, nil
}
