package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-gateway/internal/database"
	"github.com/aristath/sentinel-gateway/internal/domain"
)

func newTestL2(t *testing.T) *L2 {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file::memory:?cache=shared",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewL2(db, zerolog.Nop())
}

func TestL1_SetGetDelete(t *testing.T) {
	l1 := NewL1()
	l1.Set("price:AAPL:any", []byte("data"), time.Minute)

	val, ok := l1.Get("price:AAPL:any")
	assert.True(t, ok)
	assert.Equal(t, []byte("data"), val)

	l1.Delete("price:AAPL:any")
	_, ok = l1.Get("price:AAPL:any")
	assert.False(t, ok)
}

func TestL1_ExpiresAfterTTL(t *testing.T) {
	l1 := NewL1()
	l1.Set("price:AAPL:any", []byte("data"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := l1.Get("price:AAPL:any")
	assert.False(t, ok)
}

func TestL1_DeletePattern(t *testing.T) {
	l1 := NewL1()
	l1.Set("price:AAPL:any", []byte("1"), time.Minute)
	l1.Set("price:AAPL:us", []byte("2"), time.Minute)
	l1.Set("price:MSFT:any", []byte("3"), time.Minute)

	removed := l1.DeletePattern("price:AAPL:*")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, l1.Len())
}

func TestL2_SetAndGet(t *testing.T) {
	l2 := newTestL2(t)
	l2.Set("price:AAPL:any", []byte("payload"), time.Minute)

	val, ok := l2.Get("price:AAPL:any")
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), val)
}

func TestL2_ExpiredEntryNotReturned(t *testing.T) {
	l2 := newTestL2(t)
	l2.Set("price:AAPL:any", []byte("payload"), -time.Second)

	_, ok := l2.Get("price:AAPL:any")
	assert.False(t, ok)
}

func TestSingleflightGroup_CoalescesConcurrentCallers(t *testing.T) {
	g := newSingleflightGroup()
	var executions int32
	var wg sync.WaitGroup

	results := make([][]byte, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			val, err := g.do("shared-key", func() ([]byte, error) {
				atomic.AddInt32(&executions, 1)
				time.Sleep(10 * time.Millisecond)
				return []byte("result"), nil
			})
			require.NoError(t, err)
			results[idx] = val
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&executions))
	for _, r := range results {
		assert.Equal(t, []byte("result"), r)
	}
}

func TestSingleflightGroup_PropagatesError(t *testing.T) {
	g := newSingleflightGroup()
	wantErr := errors.New("fetch failed")

	_, err := g.do("key", func() ([]byte, error) { return nil, wantErr })
	assert.Equal(t, wantErr, err)
}

func TestManager_GetWithReadThrough_MissThenHit(t *testing.T) {
	l1 := NewL1()
	l2 := newTestL2(t)
	mgr := NewManager(l1, l2, zerolog.Nop())

	asset := domain.NewAsset("AAPL", domain.AssetEquity)
	key := Key(domain.DataPrice, asset, "any")

	var fetchCount int32
	wantLineage := domain.DataLineage{ProvidersConsulted: []string{"fmp"}, SourceCount: 1}
	fetch := func() (*domain.ProviderResponse, domain.DataLineage, error) {
		atomic.AddInt32(&fetchCount, 1)
		return &domain.ProviderResponse{ProviderName: "fmp", Asset: asset, IsValid: true, Confidence: 0.9}, wantLineage, nil
	}

	resp, lineage, err := mgr.GetWithReadThrough(key, domain.DataPrice, asset, Volatility{MarketOpen: true}, fetch)
	require.NoError(t, err)
	assert.Equal(t, "fmp", resp.ProviderName)
	assert.Equal(t, wantLineage, lineage)

	resp2, lineage2, err := mgr.GetWithReadThrough(key, domain.DataPrice, asset, Volatility{MarketOpen: true}, fetch)
	require.NoError(t, err)
	assert.Equal(t, "fmp", resp2.ProviderName)
	assert.Equal(t, wantLineage, lineage2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetchCount))
}

func TestManager_GetWithReadThrough_FetchErrorDoesNotPoisonCache(t *testing.T) {
	l1 := NewL1()
	l2 := newTestL2(t)
	mgr := NewManager(l1, l2, zerolog.Nop())

	asset := domain.NewAsset("AAPL", domain.AssetEquity)
	key := Key(domain.DataPrice, asset, "any")
	wantErr := errors.New("upstream down")

	_, _, err := mgr.GetWithReadThrough(key, domain.DataPrice, asset, Volatility{}, func() (*domain.ProviderResponse, domain.DataLineage, error) {
		return nil, domain.DataLineage{}, wantErr
	})
	require.Error(t, err)

	_, ok := l1.Get(key)
	assert.False(t, ok)
}

func TestManager_InvalidateForSymbol(t *testing.T) {
	l1 := NewL1()
	l2 := newTestL2(t)
	mgr := NewManager(l1, l2, zerolog.Nop())

	l1.Set("price:AAPL:any", []byte("x"), time.Minute)
	l1.Set("fundamentals:AAPL:any", []byte("y"), time.Minute)
	l1.Set("price:MSFT:any", []byte("z"), time.Minute)

	removed := mgr.InvalidateForSymbol("AAPL")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, l1.Len())
}

func TestTTLPolicy_CryptoShrinksUnderVolatility(t *testing.T) {
	asset := domain.NewAsset("BTC/USDT", domain.AssetCrypto)
	calm := ttlPolicy(domain.DataPrice, asset, Volatility{Change24hPercent: 2})
	volatile := ttlPolicy(domain.DataPrice, asset, Volatility{Change24hPercent: 15})

	assert.Greater(t, calm, volatile)
}

func TestTTLPolicy_EquityOffHoursLongerThanMarketHours(t *testing.T) {
	asset := domain.NewAsset("AAPL", domain.AssetEquity)
	open := ttlPolicy(domain.DataPrice, asset, Volatility{MarketOpen: true})
	closed := ttlPolicy(domain.DataPrice, asset, Volatility{MarketOpen: false})

	assert.Greater(t, closed, open)
}
