package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gwerrors "github.com/aristath/sentinel-gateway/internal/errors"
	"github.com/aristath/sentinel-gateway/internal/domain"
)

// FMPProvider fetches equity/ETF data from a Financial Modeling Prep style
// REST API. Supports equities, ETFs, and bonds; defers forex/crypto/
// commodities to other providers.
type FMPProvider struct {
	cfg     domain.ProviderConfig
	client  *http.Client
	limiter *rateLimiter
	health  *healthTracker
	baseURL string
}

func NewFMPProvider(cfg domain.ProviderConfig) *FMPProvider {
	return &FMPProvider{
		cfg:     cfg,
		client:  defaultHTTPClient(cfg.TimeoutSeconds),
		limiter: newRateLimiter(cfg.RateLimitPerMinute),
		health:  newHealthTracker(cfg.Name),
		baseURL: "https://financialmodelingprep.com/api/v3",
	}
}

func (p *FMPProvider) Name() string { return p.cfg.Name }

func (p *FMPProvider) Initialize(ctx context.Context) error {
	if p.cfg.APIKey == "" {
		return gwerrors.ConfigurationError{Field: "api_key", Message: p.cfg.Name + " requires an API key"}
	}
	return nil
}

func (p *FMPProvider) Shutdown(ctx context.Context) error { return nil }

func (p *FMPProvider) SupportsAsset(asset domain.Asset) bool {
	switch asset.Type {
	case domain.AssetEquity, domain.AssetETF, domain.AssetBond:
		return true
	default:
		return false
	}
}

func (p *FMPProvider) get(ctx context.Context, path string) ([]byte, error) {
	if err := p.limiter.check(p.cfg.Name); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s%s&apikey=%s", p.baseURL, path, p.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: err.Error()}
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.health.recordFailure()
		if ctx.Err() != nil {
			return nil, gwerrors.TimeoutError{Provider: p.cfg.Name}
		}
		return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.health.recordFailure()
		return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: err.Error()}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		p.health.recordFailure()
		return nil, gwerrors.RateLimitError{Provider: p.cfg.Name}
	}
	if resp.StatusCode != http.StatusOK {
		p.health.recordFailure()
		return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	p.health.recordSuccess(time.Since(start))
	return body, nil
}

type fmpQuote struct {
	Symbol           string  `json:"symbol"`
	Price            float64 `json:"price"`
	Volume           int64   `json:"volume"`
	MarketCap        float64 `json:"marketCap"`
	PE               float64 `json:"pe"`
	Timestamp        int64   `json:"timestamp"`
	PreviousClose    float64 `json:"previousClose"`
	ChangePercentage float64 `json:"changesPercentage"`
}

func (p *FMPProvider) FetchPrice(ctx context.Context, asset domain.Asset) (*domain.ProviderResponse, error) {
	body, err := p.get(ctx, fmt.Sprintf("/quote/%s?", asset.Symbol))
	if err != nil {
		return nil, err
	}

	var quotes []fmpQuote
	if err := json.Unmarshal(body, &quotes); err != nil || len(quotes) == 0 {
		return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: "symbol not found: " + asset.Symbol}
	}
	q := quotes[0]

	return &domain.ProviderResponse{
		ProviderName: p.cfg.Name,
		Asset:        asset,
		DataType:     domain.DataPrice,
		Data: map[string]interface{}{
			"price":          q.Price,
			"volume":         q.Volume,
			"market_cap":     q.MarketCap,
			"pe_ratio":       q.PE,
			"previous_close": q.PreviousClose,
			"change_percent": q.ChangePercentage,
		},
		Timestamp:  time.Now().Unix(),
		IsValid:    true,
		IsFresh:    true,
		Confidence: 0.9,
	}, nil
}

type fmpCandle struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type fmpHistoricalResponse struct {
	Symbol     string      `json:"symbol"`
	Historical []fmpCandle `json:"historical"`
}

func (p *FMPProvider) FetchOHLCV(ctx context.Context, asset domain.Asset, timeframe string, limit int) (*domain.ProviderResponse, error) {
	path := fmt.Sprintf("/historical-price-full/%s?", asset.Symbol)
	if strings.HasSuffix(timeframe, "m") || strings.HasSuffix(timeframe, "h") {
		path = fmt.Sprintf("/historical-chart/%s/%s?", timeframe, asset.Symbol)
	}

	body, err := p.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var candles []fmpCandle
	var wrapped fmpHistoricalResponse
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Historical) > 0 {
		candles = wrapped.Historical
	} else if err := json.Unmarshal(body, &candles); err != nil {
		return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: "unparseable OHLCV response"}
	}

	if limit > 0 && len(candles) > limit {
		candles = candles[:limit]
	}

	out := make([]map[string]interface{}, 0, len(candles))
	for _, c := range candles {
		out = append(out, map[string]interface{}{
			"timestamp": c.Date, "open": c.Open, "high": c.High,
			"low": c.Low, "close": c.Close, "volume": c.Volume,
		})
	}

	return &domain.ProviderResponse{
		ProviderName: p.cfg.Name,
		Asset:        asset,
		DataType:     domain.DataOHLCV,
		Data:         map[string]interface{}{"candles": out, "timeframe": timeframe},
		Timestamp:    time.Now().Unix(),
		IsValid:      true,
		IsFresh:      true,
		Confidence:   0.85,
	}, nil
}

type fmpProfile struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	Sector      string  `json:"sector"`
	Industry    string  `json:"industry"`
	MktCap      float64 `json:"mktCap"`
	Beta        float64 `json:"beta"`
	Description string  `json:"description"`
}

func (p *FMPProvider) FetchFundamentals(ctx context.Context, asset domain.Asset) (*domain.ProviderResponse, error) {
	body, err := p.get(ctx, fmt.Sprintf("/profile/%s?", asset.Symbol))
	if err != nil {
		return nil, err
	}

	var profiles []fmpProfile
	if err := json.Unmarshal(body, &profiles); err != nil || len(profiles) == 0 {
		return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: "no profile for " + asset.Symbol}
	}
	pr := profiles[0]

	return &domain.ProviderResponse{
		ProviderName: p.cfg.Name,
		Asset:        asset,
		DataType:     domain.DataFundamentals,
		Data: map[string]interface{}{
			"company_name": pr.CompanyName,
			"sector":       pr.Sector,
			"industry":     pr.Industry,
			"market_cap":   pr.MktCap,
			"beta":         pr.Beta,
			"description":  pr.Description,
		},
		Timestamp:  time.Now().Unix(),
		IsValid:    true,
		IsFresh:    false,
		Confidence: 0.8,
	}, nil
}

func (p *FMPProvider) FetchNews(ctx context.Context, asset domain.Asset, limit int) (*domain.ProviderResponse, error) {
	return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: "news not offered by this provider"}
}

func (p *FMPProvider) GetHealth() domain.ProviderHealth {
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

// YahooProvider fetches equity quotes from Yahoo Finance's unauthenticated
// chart endpoint. No API key required, so Initialize never fails.
type YahooProvider struct {
	cfg     domain.ProviderConfig
	client  *http.Client
	limiter *rateLimiter
	health  *healthTracker
	baseURL string
}

func NewYahooProvider(cfg domain.ProviderConfig) *YahooProvider {
	return &YahooProvider{
		cfg:     cfg,
		client:  defaultHTTPClient(cfg.TimeoutSeconds),
		limiter: newRateLimiter(cfg.RateLimitPerMinute),
		health:  newHealthTracker(cfg.Name),
		baseURL: "https://query1.finance.yahoo.com/v8/finance/chart",
	}
}

func (p *YahooProvider) Name() string { return p.cfg.Name }

func (p *YahooProvider) Initialize(ctx context.Context) error { return nil }

func (p *YahooProvider) Shutdown(ctx context.Context) error { return nil }

func (p *YahooProvider) SupportsAsset(asset domain.Asset) bool {
	switch asset.Type {
	case domain.AssetEquity, domain.AssetETF, domain.AssetForex, domain.AssetCommodity:
		return true
	default:
		return false
	}
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"previousClose"`
				Currency           string  `json:"currency"`
			} `json:"meta"`
			Timestamp []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *YahooProvider) fetchChart(ctx context.Context, symbol, interval, rangeStr string) (*yahooChartResponse, error) {
	if err := p.limiter.check(p.cfg.Name); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s?interval=%s&range=%s", p.baseURL, symbol, interval, rangeStr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: err.Error()}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.health.recordFailure()
		if ctx.Err() != nil {
			return nil, gwerrors.TimeoutError{Provider: p.cfg.Name}
		}
		return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.health.recordFailure()
		return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: err.Error()}
	}

	var parsed yahooChartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		p.health.recordFailure()
		return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: "unparseable chart response"}
	}
	if parsed.Chart.Error != nil {
		p.health.recordFailure()
		return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: parsed.Chart.Error.Description}
	}
	if len(parsed.Chart.Result) == 0 {
		p.health.recordFailure()
		return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: "symbol not found: " + symbol}
	}

	p.health.recordSuccess(time.Since(start))
	return &parsed, nil
}

func (p *YahooProvider) FetchPrice(ctx context.Context, asset domain.Asset) (*domain.ProviderResponse, error) {
	parsed, err := p.fetchChart(ctx, asset.Symbol, "1d", "1d")
	if err != nil {
		return nil, err
	}
	meta := parsed.Chart.Result[0].Meta

	return &domain.ProviderResponse{
		ProviderName: p.cfg.Name,
		Asset:        asset,
		DataType:     domain.DataPrice,
		Data: map[string]interface{}{
			"price":          meta.RegularMarketPrice,
			"previous_close": meta.PreviousClose,
			"currency":       meta.Currency,
		},
		Timestamp:  time.Now().Unix(),
		IsValid:    true,
		IsFresh:    true,
		Confidence: 0.7,
	}, nil
}

func (p *YahooProvider) FetchOHLCV(ctx context.Context, asset domain.Asset, timeframe string, limit int) (*domain.ProviderResponse, error) {
	interval := timeframe
	if interval == "" {
		interval = "1d"
	}
	parsed, err := p.fetchChart(ctx, asset.Symbol, interval, "3mo")
	if err != nil {
		return nil, err
	}

	result := parsed.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: "no OHLCV series in response"}
	}
	quote := result.Indicators.Quote[0]

	n := len(result.Timestamp)
	if limit > 0 && n > limit {
		n = limit
	}

	candles := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		candles = append(candles, map[string]interface{}{
			"timestamp": result.Timestamp[i],
			"open":      safeAt(quote.Open, i),
			"high":      safeAt(quote.High, i),
			"low":       safeAt(quote.Low, i),
			"close":     safeAt(quote.Close, i),
			"volume":    safeAtInt(quote.Volume, i),
		})
	}

	return &domain.ProviderResponse{
		ProviderName: p.cfg.Name,
		Asset:        asset,
		DataType:     domain.DataOHLCV,
		Data:         map[string]interface{}{"candles": candles, "timeframe": interval},
		Timestamp:    time.Now().Unix(),
		IsValid:      true,
		IsFresh:      true,
		Confidence:   0.7,
	}, nil
}

func safeAt(s []float64, i int) float64 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

func safeAtInt(s []int64, i int) int64 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

func (p *YahooProvider) FetchFundamentals(ctx context.Context, asset domain.Asset) (*domain.ProviderResponse, error) {
	return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: "fundamentals not offered by this provider"}
}

func (p *YahooProvider) FetchNews(ctx context.Context, asset domain.Asset, limit int) (*domain.ProviderResponse, error) {
	return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: "news not offered by this provider"}
}

func (p *YahooProvider) GetHealth() domain.ProviderHealth {
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
