// Package providers owns the market-data provider registry: construction
// from static configuration, per-asset candidate lookup, and periodic
// health refresh. Providers themselves are registered through a factory
// table (factory.go) rather than discovered via reflection.
package providers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	gwerrors "github.com/aristath/sentinel-gateway/internal/errors"
	"github.com/aristath/sentinel-gateway/internal/domain"
)

// Registry owns the set of constructed providers and their live health.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.Provider
	priority  map[string]int
	health    map[string]domain.ProviderHealth
	log       zerolog.Logger
}

// NewRegistry builds a registry from a list of provider configs, skipping
// disabled entries and any name absent from the factory table.
func NewRegistry(ctx context.Context, configs []domain.ProviderConfig, log zerolog.Logger) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]domain.Provider),
		priority:  make(map[string]int),
		health:    make(map[string]domain.ProviderHealth),
		log:       log.With().Str("component", "provider_registry").Logger(),
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		build, ok := factoryTable[cfg.Name]
		if !ok {
			r.log.Warn().Str("provider", cfg.Name).Msg("no factory registered for provider, skipping")
			continue
		}

		p := build(cfg)
		if err := p.Initialize(ctx); err != nil {
			r.log.Error().Err(err).Str("provider", cfg.Name).Msg("provider initialization failed, skipping")
			continue
		}

		r.providers[cfg.Name] = p
		r.priority[cfg.Name] = cfg.Priority
		r.health[cfg.Name] = p.GetHealth()
		r.log.Info().Str("provider", cfg.Name).Int("priority", cfg.Priority).Msg("provider registered")
	}

	if len(r.providers) == 0 {
		r.log.Warn().Msg("registry initialized with zero providers")
	}

	return r, nil
}

// Shutdown tears down every constructed provider, collecting the first error.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var firstErr error
	for name, p := range r.providers {
		if err := p.Shutdown(ctx); err != nil {
			r.log.Error().Err(err).Str("provider", name).Msg("provider shutdown failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// GetProvidersFor returns every enabled provider that claims to support the
// asset, ordered by configured priority (highest first) as a stable
// tie-break ahead of arbitration scoring. Returns NoProviderAvailableError
// if the candidate set is empty.
func (r *Registry) GetProvidersFor(asset domain.Asset, dataType domain.DataType) ([]domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []domain.Provider
	for _, p := range r.providers {
		if p.SupportsAsset(asset) {
			candidates = append(candidates, p)
		}
	}

	if len(candidates) == 0 {
		return nil, gwerrors.NoProviderAvailableError{
			Asset:    asset.Key(),
			DataType: string(dataType),
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		pi, pj := r.priority[candidates[i].Name()], r.priority[candidates[j].Name()]
		if pi != pj {
			return pi > pj
		}
		return candidates[i].Name() < candidates[j].Name()
	})

	return candidates, nil
}

// GetProvider looks up a single provider by name.
func (r *Registry) GetProvider(name string) (domain.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// GetAllHealth returns a snapshot of every known provider's health.
func (r *Registry) GetAllHealth() map[string]domain.ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]domain.ProviderHealth, len(r.health))
	for k, v := range r.health {
		out[k] = v
	}
	return out
}

// RefreshHealth polls GetHealth on every provider and updates the snapshot.
// Run once a minute by the reliability scheduler (see di.wireReliability).
func (r *Registry) RefreshHealth(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, p := range r.providers {
		h := p.GetHealth()
		h.LastCheck = time.Now().Unix()
		r.health[name] = h
	}
}

// Names returns every registered provider name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
