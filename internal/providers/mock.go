package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/aristath/sentinel-gateway/internal/domain"
)

// MockProvider is a deterministic, network-free provider used for local
// development and tests. It never fails and never rate limits, and derives
// its synthetic prices from a hash of the asset symbol so repeated calls
// are stable within a process run.
type MockProvider struct {
	cfg    domain.ProviderConfig
	health *healthTracker
}

func NewMockProvider(cfg domain.ProviderConfig) *MockProvider {
	return &MockProvider{cfg: cfg, health: newHealthTracker(cfg.Name)}
}

func (p *MockProvider) Name() string { return p.cfg.Name }

func (p *MockProvider) Initialize(ctx context.Context) error { return nil }

func (p *MockProvider) Shutdown(ctx context.Context) error { return nil }

func (p *MockProvider) SupportsAsset(asset domain.Asset) bool { return true }

func (p *MockProvider) syntheticPrice(symbol string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	base := float64(h.Sum32() % 100000)
	return 10 + base/1000
}

func (p *MockProvider) FetchPrice(ctx context.Context, asset domain.Asset) (*domain.ProviderResponse, error) {
	start := time.Now()
	price := p.syntheticPrice(asset.Symbol)
	p.health.recordSuccess(time.Since(start))

	return &domain.ProviderResponse{
		ProviderName: p.cfg.Name,
		Asset:        asset,
		DataType:     domain.DataPrice,
		Data: map[string]interface{}{
			"price":     price,
			"currency":  "USD",
			"timestamp": time.Now().Unix(),
		},
		Timestamp:  time.Now().Unix(),
		IsValid:    true,
		IsFresh:    true,
		Confidence: 0.5,
	}, nil
}

func (p *MockProvider) FetchOHLCV(ctx context.Context, asset domain.Asset, timeframe string, limit int) (*domain.ProviderResponse, error) {
	base := p.syntheticPrice(asset.Symbol)
	candles := make([]map[string]interface{}, 0, limit)
	now := time.Now()
	for i := 0; i < limit; i++ {
		candles = append(candles, map[string]interface{}{
			"open":      base,
			"high":      base * 1.01,
			"low":       base * 0.99,
			"close":     base,
			"volume":    1000 + i*10,
			"timestamp": now.Add(-time.Duration(i) * time.Hour).Unix(),
		})
	}
	p.health.recordSuccess(time.Millisecond)

	return &domain.ProviderResponse{
		ProviderName: p.cfg.Name,
		Asset:        asset,
		DataType:     domain.DataOHLCV,
		Data:         map[string]interface{}{"candles": candles, "timeframe": timeframe},
		Timestamp:    now.Unix(),
		IsValid:      true,
		IsFresh:      true,
		Confidence:   0.5,
	}, nil
}

func (p *MockProvider) FetchFundamentals(ctx context.Context, asset domain.Asset) (*domain.ProviderResponse, error) {
	p.health.recordSuccess(time.Millisecond)
	return &domain.ProviderResponse{
		ProviderName: p.cfg.Name,
		Asset:        asset,
		DataType:     domain.DataFundamentals,
		Data: map[string]interface{}{
			"pe_ratio":    fmt.Sprintf("%.2f", 15.0),
			"market_cap":  int64(1_000_000_000),
			"description": "synthetic fundamentals for " + asset.Symbol,
		},
		Timestamp:  time.Now().Unix(),
		IsValid:    true,
		IsFresh:    true,
		Confidence: 0.3,
	}, nil
}

func (p *MockProvider) FetchNews(ctx context.Context, asset domain.Asset, limit int) (*domain.ProviderResponse, error) {
	items := make([]map[string]interface{}, 0, limit)
	for i := 0; i < limit; i++ {
		items = append(items, map[string]interface{}{
			"headline":  fmt.Sprintf("synthetic headline %d for %s", i, asset.Symbol),
			"timestamp": time.Now().Add(-time.Duration(i) * time.Hour).Unix(),
		})
	}
	p.health.recordSuccess(time.Millisecond)

	return &domain.ProviderResponse{
		ProviderName: p.cfg.Name,
		Asset:        asset,
		DataType:     domain.DataNews,
		Data:         map[string]interface{}{"items": items},
		Timestamp:    time.Now().Unix(),
		IsValid:      true,
		IsFresh:      true,
		Confidence:   0.3,
	}, nil
}

func (p *MockProvider) GetHealth() domain.ProviderHealth {
	successRate, latency, uptime, errs, healthy := p.health.snapshot()
	return domain.ProviderHealth{
		Name:          p.cfg.Name,
		IsHealthy:     healthy,
		UptimePercent: uptime,
		AvgLatencyMs:  latency,
		SuccessRate:   successRate,
		LastCheck:     time.Now().Unix(),
		ErrorCount24h: errs,
	}
}
