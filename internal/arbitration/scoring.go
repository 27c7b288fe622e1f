// Package arbitration scores candidate providers for a request and executes
// an ordered plan with serial fallback, recording which providers were
// consulted into a DataLineage.
package arbitration

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/sentinel-gateway/internal/domain"
)

// weightsByDataType is the per-data-type weight policy. Freshness and
// reliability dominate for price; completeness dominates for fundamentals.
// weightsFor falls back to equal weights (20 each) for any data type
// without an entry here.
var weightsByDataType = map[domain.DataType]domain.ScoreWeights{
	domain.DataPrice: {
		Freshness: 35, Latency: 20, Uptime: 15, Completeness: 10, Reliability: 20,
	},
	domain.DataOHLCV: {
		Freshness: 30, Latency: 20, Uptime: 15, Completeness: 15, Reliability: 20,
	},
	domain.DataFundamentals: {
		Freshness: 10, Latency: 10, Uptime: 15, Completeness: 45, Reliability: 20,
	},
	domain.DataTechnical: {
		Freshness: 25, Latency: 20, Uptime: 15, Completeness: 20, Reliability: 20,
	},
	domain.DataNews: {
		Freshness: 40, Latency: 15, Uptime: 10, Completeness: 20, Reliability: 15,
	},
}

func weightsFor(dataType domain.DataType) domain.ScoreWeights {
	if w, ok := weightsByDataType[dataType]; ok {
		return w
	}
	return domain.ScoreWeights{Freshness: 20, Latency: 20, Uptime: 20, Completeness: 20, Reliability: 20}
}

// completenessTable is a static per-(provider,data_type) coverage policy.
// Absent entries default to 70, a neutral middle score: the provider
// supports the type (SupportsAsset already gated that) but has not been
// explicitly rated for breadth of fields returned.
var completenessTable = map[string]map[domain.DataType]float64{
	"fmp": {
		domain.DataPrice: 90, domain.DataOHLCV: 90, domain.DataFundamentals: 95,
	},
	"yahoo": {
		domain.DataPrice: 75, domain.DataOHLCV: 80,
	},
	"ccxt_kraken": {
		domain.DataPrice: 85, domain.DataOHLCV: 85,
	},
	"ccxt_binance": {
		domain.DataPrice: 88, domain.DataOHLCV: 88,
	},
	"mock": {
		domain.DataPrice: 50, domain.DataOHLCV: 50, domain.DataFundamentals: 50, domain.DataNews: 50,
	},
}

func completenessFor(provider string, dataType domain.DataType) float64 {
	if byType, ok := completenessTable[provider]; ok {
		if v, ok := byType[dataType]; ok {
			return v
		}
	}
	return 70
}

// freshnessScore rewards providers that were checked recently relative to
// the data type's expected refresh cadence. lastCheck of zero (never
// checked) scores neutrally rather than being punished as stale, since a
// freshly-registered provider has no history yet.
func freshnessScore(lastCheck int64, dataType domain.DataType) float64 {
	if lastCheck == 0 {
		return 60
	}

	age := time.Since(time.Unix(lastCheck, 0))
	var halfLife time.Duration
	switch dataType {
	case domain.DataPrice, domain.DataOHLCV, domain.DataTechnical:
		halfLife = 2 * time.Minute
	case domain.DataNews:
		halfLife = 15 * time.Minute
	case domain.DataFundamentals:
		halfLife = 24 * time.Hour
	default:
		halfLife = 10 * time.Minute
	}

	if age <= 0 {
		return 100
	}
	// Exponential decay: 100 at age=0, 50 at age=halfLife.
	ratio := float64(age) / float64(halfLife)
	score := 100 * math.Pow(2, -ratio)
	if score < 0 {
		score = 0
	}
	return score
}

// latencyScore maps average latency to [0,100] linearly: 100 at 0ms,
// falling to 0 at 5000ms and clamped there for anything slower.
func latencyScore(avgLatencyMs float64) float64 {
	if avgLatencyMs <= 0 {
		return 100
	}
	const worstMs = 5000.0
	score := 100 * (1 - avgLatencyMs/worstMs)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// ScoreProvider computes the weighted blend for one candidate.
func ScoreProvider(p domain.Provider, dataType domain.DataType) domain.ProviderScore {
	health := p.GetHealth()
	weights := weightsFor(dataType)

	freshness := freshnessScore(health.LastCheck, dataType)
	latency := latencyScore(health.AvgLatencyMs)
	uptime := health.UptimePercent
	completeness := completenessFor(p.Name(), dataType)
	reliability := 100 * health.SuccessRate

	weightVec := []float64{weights.Freshness, weights.Latency, weights.Uptime, weights.Completeness, weights.Reliability}
	valueVec := []float64{freshness, latency, uptime, completeness, reliability}
	total := floats.Dot(weightVec, valueVec) / 100

	return domain.ProviderScore{
		ProviderName: p.Name(),
		Freshness:    freshness,
		Latency:      latency,
		Uptime:       uptime,
		Completeness: completeness,
		Reliability:  reliability,
		Total:        total,
	}
}
