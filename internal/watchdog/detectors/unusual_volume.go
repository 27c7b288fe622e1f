package detectors

import (
	"context"
	"fmt"
	"time"

	talib "github.com/markcheno/go-talib"

	"github.com/aristath/sentinel-gateway/internal/domain"
	"github.com/aristath/sentinel-gateway/internal/events"
)

// UnusualVolumeDetector flags a day's traded volume against the trailing
// 30-day average. Recommended interval: 1 minute.
type UnusualVolumeDetector struct {
	provider  domain.Provider
	watchlist []domain.Asset
	multiple  float64
	dedup     *dedupState
}

func NewUnusualVolumeDetector(provider domain.Provider, watchlist []domain.Asset) *UnusualVolumeDetector {
	return &UnusualVolumeDetector{
		provider:  provider,
		watchlist: watchlist,
		multiple:  3.0,
		dedup:     newDedupState(time.Hour),
	}
}

func (d *UnusualVolumeDetector) Name() string { return "unusual_volume" }

func (d *UnusualVolumeDetector) Check(ctx context.Context) (*events.Event, error) {
	for _, asset := range d.watchlist {
		resp, err := d.provider.FetchOHLCV(ctx, asset, "1d", 31)
		if err != nil || resp == nil || !resp.IsValid {
			continue
		}

		candles := candlesFromResponse(resp.Data)
		volumes := candleVolumes(candles)
		if len(volumes) < 2 {
			continue
		}

		current := volumes[0]
		history := volumes[1:]
		avgSeries := talib.Sma(history, len(history))
		avg := history[0]
		if n := len(avgSeries); n > 0 {
			avg = avgSeries[n-1]
		} else {
			avg = mean(history)
		}
		if avg <= 0 {
			continue
		}

		ratio := current / avg
		if ratio <= d.multiple {
			continue
		}

		if d.dedup.shouldSuppress(asset.Key()) {
			continue
		}
		d.dedup.markFired(asset.Key())

		sev := events.SeverityMedium
		if ratio > d.multiple*2 {
			sev = events.SeverityHigh
		}

		return newEvent(events.EventUnusualVolume, sev, asset.Symbol,
			fmt.Sprintf("%s volume %.0f is %.1fx its 30-day average %.0f", asset.Symbol, current, ratio, avg),
			map[string]interface{}{"current_volume": current, "avg_volume_30d": avg, "ratio": ratio},
		), nil
	}
	return nil, nil
}
