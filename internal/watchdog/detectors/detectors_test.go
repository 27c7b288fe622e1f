package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-gateway/internal/domain"
	gwerrors "github.com/aristath/sentinel-gateway/internal/errors"
	"github.com/aristath/sentinel-gateway/internal/events"
)

// stubProvider returns pre-seeded responses per call without touching the
// network; FetchPrice/FetchOHLCV/FetchFundamentals each consume the next
// entry in their queue.
type stubProvider struct {
	name         string
	prices       []*domain.ProviderResponse
	ohlcv        []*domain.ProviderResponse
	fundamentals []*domain.ProviderResponse
	priceIdx     int
	ohlcvIdx     int
	fundIdx      int
	err          error
}

func (p *stubProvider) Name() string                          { return p.name }
func (p *stubProvider) Initialize(ctx context.Context) error  { return nil }
func (p *stubProvider) Shutdown(ctx context.Context) error    { return nil }
func (p *stubProvider) SupportsAsset(asset domain.Asset) bool { return true }
func (p *stubProvider) GetHealth() domain.ProviderHealth {
	return domain.ProviderHealth{Name: p.name, IsHealthy: true}
}
func (p *stubProvider) FetchNews(ctx context.Context, asset domain.Asset, limit int) (*domain.ProviderResponse, error) {
	return nil, nil
}

func (p *stubProvider) FetchPrice(ctx context.Context, asset domain.Asset) (*domain.ProviderResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.priceIdx >= len(p.prices) {
		return p.prices[len(p.prices)-1], nil
	}
	r := p.prices[p.priceIdx]
	p.priceIdx++
	return r, nil
}

func (p *stubProvider) FetchOHLCV(ctx context.Context, asset domain.Asset, timeframe string, limit int) (*domain.ProviderResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.ohlcvIdx >= len(p.ohlcv) {
		return p.ohlcv[len(p.ohlcv)-1], nil
	}
	r := p.ohlcv[p.ohlcvIdx]
	p.ohlcvIdx++
	return r, nil
}

func (p *stubProvider) FetchFundamentals(ctx context.Context, asset domain.Asset) (*domain.ProviderResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.fundIdx >= len(p.fundamentals) {
		return p.fundamentals[len(p.fundamentals)-1], nil
	}
	r := p.fundamentals[p.fundIdx]
	p.fundIdx++
	return r, nil
}

func priceResp(price float64) *domain.ProviderResponse {
	return &domain.ProviderResponse{
		IsValid: true,
		Data:    map[string]interface{}{"price": price},
	}
}

func ohlcvResp(volumes []float64) *domain.ProviderResponse {
	candles := make([]map[string]interface{}, 0, len(volumes))
	for i, v := range volumes {
		candles = append(candles, map[string]interface{}{"close": 100.0, "volume": v, "timestamp": int64(i)})
	}
	return &domain.ProviderResponse{
		IsValid: true,
		Data:    map[string]interface{}{"candles": candles},
	}
}

func TestEarningsAnomalyDetector_SkipsWhenSurpriseFieldsAbsent(t *testing.T) {
	asset := domain.NewAsset("AAPL", domain.AssetEquity)
	provider := &stubProvider{name: "fmp", fundamentals: []*domain.ProviderResponse{{IsValid: true, Data: map[string]interface{}{}}}}
	d := NewEarningsAnomalyDetector(provider, []domain.Asset{asset})

	event, err := d.Check(context.Background())
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestEarningsAnomalyDetector_FiresOnSurpriseAboveThreshold(t *testing.T) {
	asset := domain.NewAsset("AAPL", domain.AssetEquity)
	provider := &stubProvider{name: "fmp", fundamentals: []*domain.ProviderResponse{{
		IsValid: true,
		Data:    map[string]interface{}{"eps_actual": 1.50, "eps_estimate": 1.00},
	}}}
	d := NewEarningsAnomalyDetector(provider, []domain.Asset{asset})

	event, err := d.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "AAPL", event.AssetSymbol)
}

func TestEarningsAnomalyDetector_DedupSuppressesRepeat(t *testing.T) {
	asset := domain.NewAsset("AAPL", domain.AssetEquity)
	resp := &domain.ProviderResponse{IsValid: true, Data: map[string]interface{}{"eps_actual": 1.50, "eps_estimate": 1.00}}
	provider := &stubProvider{name: "fmp", fundamentals: []*domain.ProviderResponse{resp, resp}}
	d := NewEarningsAnomalyDetector(provider, []domain.Asset{asset})

	first, err := d.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := d.Check(context.Background())
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestUnusualVolumeDetector_FiresWhenCurrentFarAboveAverage(t *testing.T) {
	asset := domain.NewAsset("AAPL", domain.AssetEquity)
	volumes := make([]float64, 31)
	volumes[0] = 10_000_000
	for i := 1; i < 31; i++ {
		volumes[i] = 1_000_000
	}
	provider := &stubProvider{name: "fmp", ohlcv: []*domain.ProviderResponse{ohlcvResp(volumes)}}
	d := NewUnusualVolumeDetector(provider, []domain.Asset{asset})

	event, err := d.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "AAPL", event.AssetSymbol)
}

func TestUnusualVolumeDetector_NoEventWithinNormalRange(t *testing.T) {
	asset := domain.NewAsset("AAPL", domain.AssetEquity)
	volumes := make([]float64, 31)
	for i := range volumes {
		volumes[i] = 1_000_000
	}
	provider := &stubProvider{name: "fmp", ohlcv: []*domain.ProviderResponse{ohlcvResp(volumes)}}
	d := NewUnusualVolumeDetector(provider, []domain.Asset{asset})

	event, err := d.Check(context.Background())
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestPriceAnomalyDetector_FiresOnSharpMoveAcrossChecks(t *testing.T) {
	asset := domain.NewAsset("BTC/USDT", domain.AssetCrypto)
	provider := &stubProvider{name: "mock", prices: []*domain.ProviderResponse{priceResp(100), priceResp(112)}}
	d := NewPriceAnomalyDetector(provider, []domain.Asset{asset})

	first, err := d.Check(context.Background())
	require.NoError(t, err)
	assert.Nil(t, first)

	second, err := d.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "BTC/USDT", second.AssetSymbol)
}

func TestPriceAnomalyDetector_FlashCrashIsCriticalSeverity(t *testing.T) {
	asset := domain.NewAsset("BTC/USDT", domain.AssetCrypto)
	provider := &stubProvider{name: "mock", prices: []*domain.ProviderResponse{priceResp(100), priceResp(85)}}
	d := NewPriceAnomalyDetector(provider, []domain.Asset{asset})

	_, err := d.Check(context.Background())
	require.NoError(t, err)

	event, err := d.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "critical", string(event.Severity))
	assert.Equal(t, events.EventFlashCrash, event.Type)
}

func TestExchangeOutageDetector_FiresOnProviderError(t *testing.T) {
	asset := domain.NewAsset("BTC/USDT", domain.AssetCrypto)
	provider := &stubProvider{name: "kraken"}
	provider.err = gwerrors.TimeoutError{Provider: "kraken"}
	d := NewExchangeOutageDetector(provider, asset, 1000)

	event, err := d.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "high", string(event.Severity))
}
