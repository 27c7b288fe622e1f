package providers

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-gateway/internal/domain"
	gwerrors "github.com/aristath/sentinel-gateway/internal/errors"
)

func TestNewRegistry_SkipsDisabledAndUnknown(t *testing.T) {
	cfgs := []domain.ProviderConfig{
		{Name: "mock", Enabled: true, Priority: 1},
		{Name: "mock-disabled", Enabled: false},
		{Name: "nonexistent", Enabled: true},
	}

	reg, err := NewRegistry(context.Background(), cfgs, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"mock"}, reg.Names())
}

func TestGetProvidersFor_NoCandidatesReturnsNoProviderAvailable(t *testing.T) {
	cfgs := []domain.ProviderConfig{
		{Name: "ccxt_kraken", Enabled: true},
	}
	reg, err := NewRegistry(context.Background(), cfgs, zerolog.Nop())
	require.NoError(t, err)

	_, err = reg.GetProvidersFor(domain.Asset{Symbol: "AAPL", Type: domain.AssetEquity}, domain.DataPrice)
	require.Error(t, err)
	assert.IsType(t, gwerrors.NoProviderAvailableError{}, err)
}

func TestGetProvidersFor_ReturnsSupportingProviders(t *testing.T) {
	cfgs := []domain.ProviderConfig{
		{Name: "mock", Enabled: true},
	}
	reg, err := NewRegistry(context.Background(), cfgs, zerolog.Nop())
	require.NoError(t, err)

	candidates, err := reg.GetProvidersFor(domain.Asset{Symbol: "BTC/USDT", Type: domain.AssetCrypto}, domain.DataPrice)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "mock", candidates[0].Name())
}

func TestGetProvidersFor_OrdersByDescendingPriority(t *testing.T) {
	cfgs := []domain.ProviderConfig{
		{Name: "ccxt_kraken", Enabled: true, Priority: 5},
		{Name: "ccxt_binance", Enabled: true, Priority: 20},
		{Name: "mock", Enabled: true, Priority: 0},
	}
	reg, err := NewRegistry(context.Background(), cfgs, zerolog.Nop())
	require.NoError(t, err)

	candidates, err := reg.GetProvidersFor(domain.Asset{Symbol: "BTC/USDT", Type: domain.AssetCrypto}, domain.DataPrice)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, []string{"ccxt_binance", "ccxt_kraken", "mock"}, []string{candidates[0].Name(), candidates[1].Name(), candidates[2].Name()})
}

func TestGetProvider_LookupByName(t *testing.T) {
	cfgs := []domain.ProviderConfig{{Name: "mock", Enabled: true}}
	reg, err := NewRegistry(context.Background(), cfgs, zerolog.Nop())
	require.NoError(t, err)

	p, ok := reg.GetProvider("mock")
	assert.True(t, ok)
	assert.Equal(t, "mock", p.Name())

	_, ok = reg.GetProvider("missing")
	assert.False(t, ok)
}

func TestRefreshHealth_UpdatesSnapshot(t *testing.T) {
	cfgs := []domain.ProviderConfig{{Name: "mock", Enabled: true}}
	reg, err := NewRegistry(context.Background(), cfgs, zerolog.Nop())
	require.NoError(t, err)

	reg.RefreshHealth(context.Background())
	health := reg.GetAllHealth()
	require.Contains(t, health, "mock")
	assert.True(t, health["mock"].IsHealthy)
}

func TestRateLimiter_BlocksAfterBudgetExhausted(t *testing.T) {
	rl := newRateLimiter(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.check("test-provider"))
	}

	err := rl.check("test-provider")
	require.Error(t, err)
	assert.IsType(t, gwerrors.RateLimitError{}, err)
}

func TestMockProvider_FetchPriceIsDeterministic(t *testing.T) {
	p := NewMockProvider(domain.ProviderConfig{Name: "mock", Enabled: true})
	asset := domain.NewAsset("aapl", domain.AssetEquity)

	resp1, err := p.FetchPrice(context.Background(), asset)
	require.NoError(t, err)
	resp2, err := p.FetchPrice(context.Background(), asset)
	require.NoError(t, err)

	assert.Equal(t, resp1.Data["price"], resp2.Data["price"])
	assert.True(t, resp1.IsValid)
}
