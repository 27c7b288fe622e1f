package domain

import "context"

// Provider is the closed, statically-declared interface every market-data
// source implements. The registry builds providers from a factory table
// keyed by name (internal/providers/factory.go) rather than relying on
// reflection or duck typing.
type Provider interface {
	Name() string
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error

	FetchPrice(ctx context.Context, asset Asset) (*ProviderResponse, error)
	FetchOHLCV(ctx context.Context, asset Asset, timeframe string, limit int) (*ProviderResponse, error)
	FetchFundamentals(ctx context.Context, asset Asset) (*ProviderResponse, error)
	FetchNews(ctx context.Context, asset Asset, limit int) (*ProviderResponse, error)

	SupportsAsset(asset Asset) bool
	GetHealth() ProviderHealth
}

// ProviderConfig is the static configuration a provider is constructed from.
type ProviderConfig struct {
	Name               string
	Enabled            bool
	Priority           int // tie-break for equal score; higher wins
	RateLimitPerMinute int
	TimeoutSeconds     int
	APIKey             string
}

// ProviderResponse is the uniform shape every fetch method returns.
// Invariant: if IsValid is false, callers must not use Data.
type ProviderResponse struct {
	ProviderName string
	Asset        Asset
	DataType     DataType
	Data         map[string]interface{}
	Timestamp    int64 // unix seconds
	IsValid      bool
	IsFresh      bool
	Confidence   float64 // [0,1]
	Metadata     map[string]interface{}
}

// ProviderHealth is the one health shape for providers. Watchdogs report
// their own status-based shape (watchdog.Health in
// internal/watchdog/health.go).
type ProviderHealth struct {
	Name          string
	IsHealthy     bool
	UptimePercent float64
	AvgLatencyMs  float64
	SuccessRate   float64 // [0,1]
	LastCheck     int64   // unix seconds
	ErrorCount24h int
}

// ProviderScore is the per-request computed weighted blend of scoring dimensions.
type ProviderScore struct {
	ProviderName string
	Freshness    float64
	Latency      float64
	Uptime       float64
	Completeness float64
	Reliability  float64
	Total        float64 // [0,100]
}

// ScoreWeights sums to 100 and is a per-data-type tunable policy.
type ScoreWeights struct {
	Freshness    float64
	Latency      float64
	Uptime       float64
	Completeness float64
	Reliability  float64
}

// ArbitrationPlan is immutable once produced by the arbitration engine.
type ArbitrationPlan struct {
	PrimaryProvider    string
	FallbackProviders  []string
	EstimatedLatencyMs float64
	TimeoutMs          int
	ScoreSnapshot      map[string]ProviderScore
}

// DataLineage records which providers contributed to a served value.
type DataLineage struct {
	ProvidersConsulted []string
	ArbitrationScore   float64
	ConflictResolved   bool
	SourceCount        int
}

// CacheEntry is a single cache record. Keys are structured strings:
// "{data_type}:{symbol}:{scope}", e.g. "price:AAPL:any".
type CacheEntry struct {
	Key             string
	Value           []byte
	ExpiresAtUnix   int64
	CreatedAtUnix   int64
	SourceProvider  string
	Confidence      float64
}
