package detectors

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sentinel-gateway/internal/domain"
	"github.com/aristath/sentinel-gateway/internal/events"
)

// Transfer is a single on-chain movement as reported by a chain-indexing
// source. WhaleMovementDetector doesn't know how transfers are fetched; it
// is handed a TransferFetcher closure at construction.
type Transfer struct {
	TxHash   string
	USDValue float64
	From     string
	To       string
}

// TransferFetcher returns recent transfers for an asset. Wiring supplies
// the concrete chain-indexer client.
type TransferFetcher func(ctx context.Context, asset domain.Asset) ([]Transfer, error)

// WhaleMovementDetector flags any single transfer above a USD threshold.
// Recommended interval: 2 minutes.
type WhaleMovementDetector struct {
	fetch        TransferFetcher
	watchlist    []domain.Asset
	thresholdUSD float64
	dedup        *dedupState
}

func NewWhaleMovementDetector(fetch TransferFetcher, watchlist []domain.Asset) *WhaleMovementDetector {
	return &WhaleMovementDetector{
		fetch:        fetch,
		watchlist:    watchlist,
		thresholdUSD: 1_000_000,
		dedup:        newDedupState(10 * time.Minute),
	}
}

func (d *WhaleMovementDetector) Name() string { return "whale_movement" }

func (d *WhaleMovementDetector) Check(ctx context.Context) (*events.Event, error) {
	for _, asset := range d.watchlist {
		transfers, err := d.fetch(ctx, asset)
		if err != nil {
			continue
		}

		for _, t := range transfers {
			if t.USDValue < d.thresholdUSD {
				continue
			}

			dedupKey := asset.Key() + ":" + t.TxHash
			if d.dedup.shouldSuppress(dedupKey) {
				continue
			}
			d.dedup.markFired(dedupKey)

			sev := events.SeverityMedium
			if t.USDValue > d.thresholdUSD*10 {
				sev = events.SeverityHigh
			}

			return newEvent(events.EventWhaleMovement, sev, asset.Symbol,
				fmt.Sprintf("%s whale transfer of $%.0f (%s -> %s)", asset.Symbol, t.USDValue, t.From, t.To),
				map[string]interface{}{"tx_hash": t.TxHash, "usd_value": t.USDValue, "from": t.From, "to": t.To},
			), nil
		}
	}
	return nil, nil
}
