package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/sentinel-gateway/internal/domain"
)

// FetchFunc is the caller-supplied miss path, typically a closure over the
// arbitration engine's ExecuteWithFallback. It returns the lineage alongside
// the response so a cache miss is attributed the same way a hit is.
type FetchFunc func() (*domain.ProviderResponse, domain.DataLineage, error)

// Manager implements get_with_read_through over L1 + L2 with single-flight
// coalescing and pattern invalidation driven by the event stream.
type Manager struct {
	l1  *L1
	l2  *L2
	sf  *singleflightGroup
	log zerolog.Logger
}

func NewManager(l1 *L1, l2 *L2, log zerolog.Logger) *Manager {
	return &Manager{
		l1:  l1,
		l2:  l2,
		sf:  newSingleflightGroup(),
		log: log.With().Str("component", "cache_manager").Logger(),
	}
}

// Key builds the structured cache key "{data_type}:{symbol}:{scope}".
func Key(dataType domain.DataType, asset domain.Asset, scope string) string {
	if scope == "" {
		scope = "any"
	}
	return fmt.Sprintf("%s:%s:%s", dataType, asset.Symbol, scope)
}

// cachedValue is the on-the-wire shape stored in both tiers, compact-coded
// with msgpack rather than JSON to keep L2 rows small.
type cachedValue struct {
	Response *domain.ProviderResponse
	Lineage  domain.DataLineage
}

// GetWithReadThrough implements the four-step contract: L1 hit, L2 hit
// (write-behind into L1), miss (single-flight coalesced fetch, TTL-stamped
// double write), and failure propagation without poisoning the cache.
func (m *Manager) GetWithReadThrough(key string, dataType domain.DataType, asset domain.Asset, vol Volatility, fetch FetchFunc) (*domain.ProviderResponse, domain.DataLineage, error) {
	if raw, ok := m.l1.Get(key); ok {
		if cv, ok := decodeCachedValue(raw); ok {
			return cv.Response, cv.Lineage, nil
		}
	}

	if raw, ok := m.l2.Get(key); ok {
		if cv, ok := decodeCachedValue(raw); ok {
			m.l1.Set(key, raw, 30*time.Second)
			return cv.Response, cv.Lineage, nil
		}
	}

	raw, err := m.sf.do(key, func() ([]byte, error) {
		resp, lineage, fetchErr := fetch()
		if fetchErr != nil {
			return nil, fetchErr
		}

		cv := cachedValue{Response: resp, Lineage: lineage}
		encoded, encodeErr := msgpack.Marshal(cv)
		if encodeErr != nil {
			m.log.Error().Err(encodeErr).Str("key", key).Msg("failed to encode cache value")
			return nil, encodeErr
		}

		ttl := ttlPolicy(dataType, asset, vol)
		m.l1.Set(key, encoded, ttl)
		m.l2.SetWithLineage(key, encoded, ttl, resp.ProviderName, resp.Confidence)
		return encoded, nil
	})

	if err != nil {
		return nil, domain.DataLineage{}, err
	}

	cv, ok := decodeCachedValue(raw)
	if !ok {
		return nil, domain.DataLineage{}, fmt.Errorf("cache: failed to decode freshly written value for %s", key)
	}
	return cv.Response, cv.Lineage, nil
}

func decodeCachedValue(raw []byte) (cachedValue, bool) {
	var cv cachedValue
	if err := msgpack.Unmarshal(raw, &cv); err != nil {
		return cachedValue{}, false
	}
	return cv, true
}

// Delete removes a single key from both tiers.
func (m *Manager) Delete(key string) {
	m.l1.Delete(key)
	m.l2.Delete(key)
}

// InvalidatePattern removes every key matching glob from both tiers,
// returning the total count removed. Driven by the event stream on
// significant events (price swings, earnings, high/critical watchdog
// events, high-impact news).
func (m *Manager) InvalidatePattern(glob string) int {
	n := m.l1.DeletePattern(glob)
	n += m.l2.DeletePattern(glob)
	return n
}

// InvalidateForSymbol removes every cached data type for a symbol,
// e.g. on a watchdog-critical event naming that asset.
func (m *Manager) InvalidateForSymbol(symbol string) int {
	return m.InvalidatePattern(strings.Join([]string{"*", symbol, "*"}, ":"))
}
