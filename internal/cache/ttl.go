package cache

import (
	"time"

	"github.com/aristath/sentinel-gateway/internal/domain"
)

// Volatility carries the optional signal ttlPolicy uses to shrink TTLs
// under fast-moving conditions: intraday volatility for equities, 24h
// change for crypto.
type Volatility struct {
	IntradayPercent  float64
	Change24hPercent float64
	MarketOpen       bool
}

// ttlPolicy implements the per-data-type TTL table from the cache
// manager's contract. The table has no narrative entry; any data type it
// does not list gets the 10-minute default.
func ttlPolicy(dataType domain.DataType, asset domain.Asset, vol Volatility) time.Duration {
	switch dataType {
	case domain.DataPrice, domain.DataOHLCV, domain.DataTechnical:
		if asset.Type == domain.AssetCrypto {
			return cryptoTTL(vol)
		}
		return equityTTL(vol)

	case domain.DataFundamentals:
		return 6 * time.Hour

	case domain.DataNews:
		return 15 * time.Minute

	default:
		return 10 * time.Minute
	}
}

func equityTTL(vol Volatility) time.Duration {
	if !vol.MarketOpen {
		return 45 * time.Minute
	}
	if vol.IntradayPercent > 3 {
		return 5 * time.Minute
	}
	return 15 * time.Minute
}

func cryptoTTL(vol Volatility) time.Duration {
	if vol.Change24hPercent > 10 {
		return 3 * time.Minute
	}
	return 7 * time.Minute
}
