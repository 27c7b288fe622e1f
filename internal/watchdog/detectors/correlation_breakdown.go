package detectors

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/sentinel-gateway/internal/domain"
	"github.com/aristath/sentinel-gateway/internal/events"
)

// AssetPair is two assets whose historical co-movement is being tracked.
type AssetPair struct {
	A domain.Asset
	B domain.Asset
}

func (p AssetPair) key() string { return p.A.Key() + "/" + p.B.Key() }

// CorrelationBreakdownDetector tracks the Pearson correlation of daily
// returns over a short and a long window and flags a material divergence
// between them, a signal that a historically co-moving pair has decoupled.
// Recommended interval: 10 minutes.
type CorrelationBreakdownDetector struct {
	provider       domain.Provider
	pairs          []AssetPair
	thresholdDelta float64
	dedup          *dedupState
}

func NewCorrelationBreakdownDetector(provider domain.Provider, pairs []AssetPair) *CorrelationBreakdownDetector {
	return &CorrelationBreakdownDetector{
		provider:       provider,
		pairs:          pairs,
		thresholdDelta: 0.5,
		dedup:          newDedupState(2 * time.Hour),
	}
}

func (d *CorrelationBreakdownDetector) Name() string { return "correlation_breakdown" }

func (d *CorrelationBreakdownDetector) Check(ctx context.Context) (*events.Event, error) {
	for _, pair := range d.pairs {
		closesA, err := d.dailyCloses(ctx, pair.A, 90)
		if err != nil {
			continue
		}
		closesB, err := d.dailyCloses(ctx, pair.B, 90)
		if err != nil {
			continue
		}

		n := minLen(closesA, closesB)
		if n < 14 {
			continue
		}
		closesA, closesB = closesA[:n], closesB[:n]

		returnsA := dailyReturns(closesA)
		returnsB := dailyReturns(closesB)

		shortWindow := 7
		if len(returnsA) < shortWindow {
			continue
		}

		longCorr := stat.Correlation(returnsA, returnsB, nil)
		shortCorr := stat.Correlation(returnsA[:shortWindow], returnsB[:shortWindow], nil)

		delta := math.Abs(shortCorr - longCorr)
		if delta <= d.thresholdDelta {
			continue
		}

		if d.dedup.shouldSuppress(pair.key()) {
			continue
		}
		d.dedup.markFired(pair.key())

		sev := events.SeverityMedium
		if delta > d.thresholdDelta*1.5 {
			sev = events.SeverityHigh
		}

		return newEvent(events.EventCorrelationBreakdown, sev, pair.A.Symbol,
			fmt.Sprintf("%s/%s correlation diverged: 7d=%.2f 90d=%.2f", pair.A.Symbol, pair.B.Symbol, shortCorr, longCorr),
			map[string]interface{}{"pair": pair.key(), "short_correlation": shortCorr, "long_correlation": longCorr, "delta": delta},
		), nil
	}
	return nil, nil
}

func (d *CorrelationBreakdownDetector) dailyCloses(ctx context.Context, asset domain.Asset, limit int) ([]float64, error) {
	resp, err := d.provider.FetchOHLCV(ctx, asset, "1d", limit)
	if err != nil || resp == nil || !resp.IsValid {
		return nil, fmt.Errorf("no ohlcv for %s", asset.Symbol)
	}
	closes := candleCloses(candlesFromResponse(resp.Data))
	if len(closes) == 0 {
		return nil, fmt.Errorf("empty candles for %s", asset.Symbol)
	}
	return closes, nil
}

func dailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 0; i < len(closes)-1; i++ {
		if closes[i+1] == 0 {
			continue
		}
		out = append(out, (closes[i]-closes[i+1])/closes[i+1])
	}
	return out
}

func minLen(a, b []float64) int {
	if len(a) < len(b) {
		return len(a)
	}
	return len(b)
}
