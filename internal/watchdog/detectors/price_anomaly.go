package detectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/sentinel-gateway/internal/domain"
	"github.com/aristath/sentinel-gateway/internal/events"
)

type priceSample struct {
	price float64
	at    time.Time
}

// PriceAnomalyDetector keeps a short rolling price history per asset and
// flags moves past threshold within a one-minute window, escalating to a
// flash_crash event on a sharp drop. Recommended interval: 30 seconds.
type PriceAnomalyDetector struct {
	provider       domain.Provider
	watchlist      []domain.Asset
	moveThreshold  float64
	crashThreshold float64
	window         time.Duration

	mu      sync.Mutex
	history map[string][]priceSample

	dedup *dedupState
}

func NewPriceAnomalyDetector(provider domain.Provider, watchlist []domain.Asset) *PriceAnomalyDetector {
	return &PriceAnomalyDetector{
		provider:       provider,
		watchlist:      watchlist,
		moveThreshold:  0.05,
		crashThreshold: -0.10,
		window:         time.Minute,
		history:        make(map[string][]priceSample),
		dedup:          newDedupState(2 * time.Minute),
	}
}

func (d *PriceAnomalyDetector) Name() string { return "price_anomaly" }

func (d *PriceAnomalyDetector) Check(ctx context.Context) (*events.Event, error) {
	for _, asset := range d.watchlist {
		resp, err := d.provider.FetchPrice(ctx, asset)
		if err != nil || resp == nil || !resp.IsValid {
			continue
		}

		price, ok := toFloat(resp.Data["price"])
		if !ok {
			continue
		}

		now := time.Now()
		baseline, hasBaseline := d.pushAndBaseline(asset.Key(), price, now)
		if !hasBaseline || baseline == 0 {
			continue
		}

		change := (price - baseline) / baseline
		if change > -d.moveThreshold && change < d.moveThreshold {
			continue
		}

		if d.dedup.shouldSuppress(asset.Key()) {
			continue
		}
		d.dedup.markFired(asset.Key())

		sev := events.SeverityMedium
		eventType := events.EventPriceAnomaly
		if change <= d.crashThreshold {
			sev = events.SeverityCritical
			eventType = events.EventFlashCrash
		} else if change < 0 || change > d.moveThreshold*2 {
			sev = events.SeverityHigh
		}

		return newEvent(eventType, sev, asset.Symbol,
			fmt.Sprintf("%s moved %.1f%% in the last minute (%.4f -> %.4f)", asset.Symbol, change*100, baseline, price),
			map[string]interface{}{"baseline_price": baseline, "current_price": price, "change_ratio": change, "is_flash_crash": change <= d.crashThreshold},
		), nil
	}
	return nil, nil
}

// pushAndBaseline records the sample, evicts anything older than the
// window, and returns the oldest surviving sample as the comparison
// baseline.
func (d *PriceAnomalyDetector) pushAndBaseline(key string, price float64, now time.Time) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	samples := append(d.history[key], priceSample{price: price, at: now})

	cutoff := now.Add(-d.window)
	kept := samples[:0]
	for _, s := range samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	d.history[key] = kept

	if len(kept) < 2 {
		return 0, false
	}
	return kept[0].price, true
}
