package arbitration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-gateway/internal/domain"
	gwerrors "github.com/aristath/sentinel-gateway/internal/errors"
)

// fakeProvider is a hand-written test double, following the pack's
// fakes-over-mocks style (cf. tradernet.NewClientWithSDK).
type fakeProvider struct {
	name      string
	health    domain.ProviderHealth
	supports  bool
	priceResp *domain.ProviderResponse
	priceErr  error
	callCount int
}

func (f *fakeProvider) Name() string                              { return f.name }
func (f *fakeProvider) Initialize(ctx context.Context) error       { return nil }
func (f *fakeProvider) Shutdown(ctx context.Context) error         { return nil }
func (f *fakeProvider) SupportsAsset(asset domain.Asset) bool      { return f.supports }
func (f *fakeProvider) GetHealth() domain.ProviderHealth           { return f.health }
func (f *fakeProvider) FetchOHLCV(ctx context.Context, asset domain.Asset, tf string, limit int) (*domain.ProviderResponse, error) {
	return f.priceResp, f.priceErr
}
func (f *fakeProvider) FetchFundamentals(ctx context.Context, asset domain.Asset) (*domain.ProviderResponse, error) {
	return f.priceResp, f.priceErr
}
func (f *fakeProvider) FetchNews(ctx context.Context, asset domain.Asset, limit int) (*domain.ProviderResponse, error) {
	return f.priceResp, f.priceErr
}
func (f *fakeProvider) FetchPrice(ctx context.Context, asset domain.Asset) (*domain.ProviderResponse, error) {
	f.callCount++
	return f.priceResp, f.priceErr
}

type fakeRegistry struct {
	providers []domain.Provider
	err       error
}

func (r *fakeRegistry) GetProvidersFor(asset domain.Asset, dataType domain.DataType) ([]domain.Provider, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.providers, nil
}

func healthyHealth(name string) domain.ProviderHealth {
	return domain.ProviderHealth{
		Name: name, IsHealthy: true, UptimePercent: 99, AvgLatencyMs: 50, SuccessRate: 0.98,
	}
}

func TestArbitrateRequest_PicksHighestScoringPrimary(t *testing.T) {
	strong := &fakeProvider{name: "fmp", supports: true, health: healthyHealth("fmp")}
	weak := &fakeProvider{name: "yahoo", supports: true, health: domain.ProviderHealth{
		Name: "yahoo", IsHealthy: true, UptimePercent: 80, AvgLatencyMs: 2000, SuccessRate: 0.6,
	}}

	reg := &fakeRegistry{providers: []domain.Provider{weak, strong}}
	engine := NewEngine(reg, zerolog.Nop())

	plan, ordered, err := engine.ArbitrateRequest(domain.Asset{Symbol: "AAPL", Type: domain.AssetEquity}, domain.DataPrice, "")
	require.NoError(t, err)
	assert.Equal(t, "fmp", plan.PrimaryProvider)
	assert.Equal(t, []string{"yahoo"}, plan.FallbackProviders)
	assert.Equal(t, "fmp", ordered[0].Name())
}

func TestArbitrateRequest_NoCandidatesPropagatesRegistryError(t *testing.T) {
	reg := &fakeRegistry{err: gwerrors.NoProviderAvailableError{Asset: "AAPL", DataType: "price"}}
	engine := NewEngine(reg, zerolog.Nop())

	_, _, err := engine.ArbitrateRequest(domain.Asset{Symbol: "AAPL"}, domain.DataPrice, "")
	require.Error(t, err)
	assert.IsType(t, gwerrors.NoProviderAvailableError{}, err)
}

func TestExecuteWithFallback_AdvancesOnTransientFailure(t *testing.T) {
	failing := &fakeProvider{name: "fmp", supports: true, priceErr: gwerrors.TimeoutError{Provider: "fmp"}}
	succeeding := &fakeProvider{
		name: "yahoo", supports: true,
		priceResp: &domain.ProviderResponse{ProviderName: "yahoo", IsValid: true, Confidence: 0.7},
	}

	reg := &fakeRegistry{providers: []domain.Provider{failing, succeeding}}
	engine := NewEngine(reg, zerolog.Nop())

	plan := &domain.ArbitrationPlan{
		PrimaryProvider:   "fmp",
		FallbackProviders: []string{"yahoo"},
		TimeoutMs:         1000,
		ScoreSnapshot: map[string]domain.ProviderScore{
			"fmp": {Total: 90}, "yahoo": {Total: 80},
		},
	}

	result, err := engine.ExecuteWithFallback(context.Background(), plan, []domain.Provider{failing, succeeding}, domain.Asset{Symbol: "AAPL"}, domain.DataPrice, "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "yahoo", result.Response.ProviderName)
	assert.True(t, result.Lineage.ConflictResolved)
	assert.Equal(t, []string{"fmp", "yahoo"}, result.Lineage.ProvidersConsulted)
	assert.Equal(t, 1, failing.callCount)
}

func TestExecuteWithFallback_AllFailReturnsInvalidSynthetic(t *testing.T) {
	a := &fakeProvider{name: "fmp", supports: true, priceErr: gwerrors.ProviderError{Provider: "fmp", Message: "boom"}}
	b := &fakeProvider{name: "yahoo", supports: true, priceErr: gwerrors.ProviderError{Provider: "yahoo", Message: "boom"}}

	reg := &fakeRegistry{providers: []domain.Provider{a, b}}
	engine := NewEngine(reg, zerolog.Nop())

	plan := &domain.ArbitrationPlan{PrimaryProvider: "fmp", FallbackProviders: []string{"yahoo"}, TimeoutMs: 1000}
	result, err := engine.ExecuteWithFallback(context.Background(), plan, []domain.Provider{a, b}, domain.Asset{Symbol: "AAPL"}, domain.DataPrice, "", "", 0)
	require.NoError(t, err)
	assert.False(t, result.Response.IsValid)
	assert.Equal(t, 2, result.Lineage.SourceCount)
}

func TestExecuteWithFallback_RegionalRestrictionMarksProviderDownweighted(t *testing.T) {
	a := &fakeProvider{name: "fmp", supports: true, priceErr: gwerrors.RegionalRestrictionError{Provider: "fmp", Region: "EU"}}
	b := &fakeProvider{
		name: "yahoo", supports: true,
		priceResp: &domain.ProviderResponse{ProviderName: "yahoo", IsValid: true},
	}

	reg := &fakeRegistry{providers: []domain.Provider{a, b}}
	engine := NewEngine(reg, zerolog.Nop())

	plan := &domain.ArbitrationPlan{PrimaryProvider: "fmp", FallbackProviders: []string{"yahoo"}, TimeoutMs: 1000}
	_, err := engine.ExecuteWithFallback(context.Background(), plan, []domain.Provider{a, b}, domain.Asset{Symbol: "AAPL"}, domain.DataPrice, "EU", "", 0)
	require.NoError(t, err)

	assert.True(t, engine.isRestricted("fmp", "EU"))
}

func TestScoreProvider_FreshnessDecaysWithAge(t *testing.T) {
	p := &fakeProvider{name: "fmp", health: domain.ProviderHealth{
		Name: "fmp", UptimePercent: 100, AvgLatencyMs: 10, SuccessRate: 1,
		LastCheck: time.Now().Add(-10 * time.Minute).Unix(),
	}}
	stale := ScoreProvider(p, domain.DataPrice)

	p.health.LastCheck = time.Now().Unix()
	fresh := ScoreProvider(p, domain.DataPrice)

	assert.Greater(t, fresh.Freshness, stale.Freshness)
}
