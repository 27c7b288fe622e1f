package arbitration

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/domain"
	gwerrors "github.com/aristath/sentinel-gateway/internal/errors"
)

// Fetcher is the subset of domain.Provider the engine dispatches to for a
// given data type, resolved once per request so Execute doesn't need to
// branch on DataType via a type switch at the call site.
type Fetcher func(ctx context.Context, p domain.Provider, asset domain.Asset) (*domain.ProviderResponse, error)

func fetcherFor(dataType domain.DataType, timeframe string, limit int) Fetcher {
	switch dataType {
	case domain.DataPrice:
		return func(ctx context.Context, p domain.Provider, asset domain.Asset) (*domain.ProviderResponse, error) {
			return p.FetchPrice(ctx, asset)
		}
	case domain.DataOHLCV:
		return func(ctx context.Context, p domain.Provider, asset domain.Asset) (*domain.ProviderResponse, error) {
			return p.FetchOHLCV(ctx, asset, timeframe, limit)
		}
	case domain.DataFundamentals:
		return func(ctx context.Context, p domain.Provider, asset domain.Asset) (*domain.ProviderResponse, error) {
			return p.FetchFundamentals(ctx, asset)
		}
	case domain.DataNews:
		return func(ctx context.Context, p domain.Provider, asset domain.Asset) (*domain.ProviderResponse, error) {
			return p.FetchNews(ctx, asset, limit)
		}
	default:
		return func(ctx context.Context, p domain.Provider, asset domain.Asset) (*domain.ProviderResponse, error) {
			return p.FetchPrice(ctx, asset)
		}
	}
}

// registry is the subset of providers.Registry the engine depends on.
// Declared locally so this package does not import providers and create a
// cycle (cache -> arbitration -> providers -> domain only).
type registry interface {
	GetProvidersFor(asset domain.Asset, dataType domain.DataType) ([]domain.Provider, error)
}

// Engine scores candidates and executes a plan with serial fallback.
type Engine struct {
	registry registry
	log      zerolog.Logger

	mu            sync.Mutex
	restrictions  map[string]map[string]time.Time // provider -> region -> raised_at
	penaltyWindow time.Duration
}

func NewEngine(reg registry, log zerolog.Logger) *Engine {
	return &Engine{
		registry:      reg,
		log:           log.With().Str("component", "arbitration_engine").Logger(),
		restrictions:  make(map[string]map[string]time.Time),
		penaltyWindow: 24 * time.Hour,
	}
}

// markRegionalRestriction records that a provider rejected a region, so
// candidacy filtering removes it for the configured penalty window.
func (e *Engine) markRegionalRestriction(provider, region string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.restrictions[provider] == nil {
		e.restrictions[provider] = make(map[string]time.Time)
	}
	e.restrictions[provider][region] = time.Now()
}

func (e *Engine) isRestricted(provider, region string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	byRegion, ok := e.restrictions[provider]
	if !ok {
		return false
	}
	raisedAt, ok := byRegion[region]
	if !ok {
		return false
	}
	if time.Since(raisedAt) > e.penaltyWindow {
		delete(byRegion, region)
		return false
	}
	return true
}

// ArbitrateRequest builds an ordered plan: primary is the highest-scoring
// eligible candidate, fallbacks are the remainder in descending score
// order, ties broken by configured static priority.
func (e *Engine) ArbitrateRequest(asset domain.Asset, dataType domain.DataType, userRegion string) (*domain.ArbitrationPlan, []domain.Provider, error) {
	candidates, err := e.registry.GetProvidersFor(asset, dataType)
	if err != nil {
		return nil, nil, err
	}

	eligible := candidates[:0:0]
	for _, p := range candidates {
		if userRegion != "" && e.isRestricted(p.Name(), userRegion) {
			continue
		}
		eligible = append(eligible, p)
	}

	if len(eligible) == 0 {
		return nil, nil, gwerrors.NoProviderAvailableError{Asset: asset.Key(), DataType: string(dataType)}
	}

	type scored struct {
		provider domain.Provider
		score    domain.ProviderScore
	}
	ranked := make([]scored, 0, len(eligible))
	for _, p := range eligible {
		ranked = append(ranked, scored{provider: p, score: ScoreProvider(p, dataType)})
	}

	// eligible (and therefore ranked) arrives already ordered by descending
	// static priority from the registry; SliceStable preserves that
	// relative order for providers whose scores tie, giving priority as
	// the tie-break without needing to re-look-up priority here.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score.Total > ranked[j].score.Total
	})

	snapshot := make(map[string]domain.ProviderScore, len(ranked))
	orderedProviders := make([]domain.Provider, 0, len(ranked))
	fallbackNames := make([]string, 0, len(ranked)-1)
	for i, r := range ranked {
		snapshot[r.provider.Name()] = r.score
		orderedProviders = append(orderedProviders, r.provider)
		if i > 0 {
			fallbackNames = append(fallbackNames, r.provider.Name())
		}
	}

	plan := &domain.ArbitrationPlan{
		PrimaryProvider:   ranked[0].provider.Name(),
		FallbackProviders: fallbackNames,
		TimeoutMs:         5000,
		ScoreSnapshot:     snapshot,
	}

	return plan, orderedProviders, nil
}

// ExecuteResult bundles the served response with the lineage of providers
// consulted to produce it.
type ExecuteResult struct {
	Response *domain.ProviderResponse
	Lineage  domain.DataLineage
}

// ExecuteWithFallback tries providers in plan order, advancing on
// RateLimit/Timeout/ProviderError/NotSupported, marking RegionalRestriction
// for the penalty window, and stopping at the first valid response. If
// every candidate fails, it returns a synthetic invalid response rather
// than an error, per the plan's contract: callers decide whether to
// surface a failed lineage or an error.
func (e *Engine) ExecuteWithFallback(ctx context.Context, plan *domain.ArbitrationPlan, orderedProviders []domain.Provider, asset domain.Asset, dataType domain.DataType, userRegion string, timeframe string, limit int) (*ExecuteResult, error) {
	fetch := fetcherFor(dataType, timeframe, limit)

	consulted := make([]string, 0, len(orderedProviders))
	conflictResolved := false

	for i, p := range orderedProviders {
		consulted = append(consulted, p.Name())

		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(plan.TimeoutMs)*time.Millisecond)
		resp, err := fetch(reqCtx, p, asset)
		cancel()

		if err == nil && resp != nil && resp.IsValid {
			if i > 0 {
				conflictResolved = true
			}
			score := plan.ScoreSnapshot[p.Name()]
			return &ExecuteResult{
				Response: resp,
				Lineage: domain.DataLineage{
					ProvidersConsulted: consulted,
					ArbitrationScore:   score.Total,
					ConflictResolved:   conflictResolved,
					SourceCount:        len(consulted),
				},
			}, nil
		}

		var regional gwerrors.RegionalRestrictionError
		if errors.As(err, &regional) {
			e.markRegionalRestriction(p.Name(), regional.Region)
			e.log.Warn().Str("provider", p.Name()).Str("region", regional.Region).Msg("regional restriction raised, provider down-weighted")
			continue
		}

		var rateLimit gwerrors.RateLimitError
		var timeout gwerrors.TimeoutError
		var providerErr gwerrors.ProviderError
		var notSupported gwerrors.NotSupportedError
		switch {
		case errors.As(err, &rateLimit):
			e.log.Debug().Str("provider", p.Name()).Msg("rate limited, falling back")
		case errors.As(err, &timeout):
			e.log.Debug().Str("provider", p.Name()).Msg("timed out, falling back")
		case errors.As(err, &providerErr):
			e.log.Debug().Str("provider", p.Name()).Err(err).Msg("provider error, falling back")
		case errors.As(err, &notSupported):
			e.log.Debug().Str("provider", p.Name()).Msg("not supported, falling back")
		case err != nil:
			e.log.Warn().Str("provider", p.Name()).Err(err).Msg("unclassified provider failure, falling back")
		default:
			e.log.Debug().Str("provider", p.Name()).Msg("invalid response, falling back")
		}
	}

	return &ExecuteResult{
		Response: &domain.ProviderResponse{
			Asset:     asset,
			DataType:  dataType,
			IsValid:   false,
			Timestamp: time.Now().Unix(),
		},
		Lineage: domain.DataLineage{
			ProvidersConsulted: consulted,
			ConflictResolved:   false,
			SourceCount:        len(consulted),
		},
	}, nil
}
