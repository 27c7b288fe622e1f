package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	gwerrors "github.com/aristath/sentinel-gateway/internal/errors"
	"github.com/aristath/sentinel-gateway/internal/domain"
)

// CCXTProvider talks to a single crypto exchange's public REST API, named
// after the exchange it wraps (e.g. "kraken", "binance"). It only
// implements the minimal subset of each exchange's API the registry needs;
// full order-routing/trading support is out of scope for a read-only
// market-data gateway.
type CCXTProvider struct {
	cfg      domain.ProviderConfig
	exchange string
	baseURL  string
	client   *http.Client
	limiter  *rateLimiter
	health   *healthTracker
}

func NewCCXTProvider(cfg domain.ProviderConfig, exchange, baseURL string) *CCXTProvider {
	return &CCXTProvider{
		cfg:      cfg,
		exchange: exchange,
		baseURL:  baseURL,
		client:   defaultHTTPClient(cfg.TimeoutSeconds),
		limiter:  newRateLimiter(cfg.RateLimitPerMinute),
		health:   newHealthTracker(cfg.Name),
	}
}

func (p *CCXTProvider) Name() string { return p.cfg.Name }

func (p *CCXTProvider) Initialize(ctx context.Context) error { return nil }

func (p *CCXTProvider) Shutdown(ctx context.Context) error { return nil }

func (p *CCXTProvider) SupportsAsset(asset domain.Asset) bool {
	return asset.Type == domain.AssetCrypto
}

// pairSymbol converts a normalized BTC/USDT-style asset symbol into the
// exchange's native pair format.
func (p *CCXTProvider) pairSymbol(symbol string) string {
	pair := strings.ReplaceAll(symbol, "/", "")
	switch p.exchange {
	case "kraken":
		return strings.ReplaceAll(symbol, "/", "")
	case "binance":
		return strings.ToUpper(pair)
	default:
		return pair
	}
}

func (p *CCXTProvider) get(ctx context.Context, path string) ([]byte, error) {
	if err := p.limiter.check(p.cfg.Name); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
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

type krakenTickerResponse struct {
	Error  []string                    `json:"error"`
	Result map[string]krakenTickerInfo `json:"result"`
}

type krakenTickerInfo struct {
	Ask    []string `json:"a"`
	Bid    []string `json:"b"`
	Last   []string `json:"c"`
	Volume []string `json:"v"`
}

type binanceTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PrevClosePrice     string `json:"prevClosePrice"`
	Volume             string `json:"volume"`
	PriceChangePercent string `json:"priceChangePercent"`
}

func (p *CCXTProvider) FetchPrice(ctx context.Context, asset domain.Asset) (*domain.ProviderResponse, error) {
	pair := p.pairSymbol(asset.Symbol)

	switch p.exchange {
	case "kraken":
		body, err := p.get(ctx, "/0/public/Ticker?pair="+pair)
		if err != nil {
			return nil, err
		}
		var parsed krakenTickerResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: "unparseable ticker response"}
		}
		if len(parsed.Error) > 0 {
			return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: strings.Join(parsed.Error, "; ")}
		}
		for _, info := range parsed.Result {
			last := parseFirstFloat(info.Last)
			return &domain.ProviderResponse{
				ProviderName: p.cfg.Name,
				Asset:        asset,
				DataType:     domain.DataPrice,
				Data: map[string]interface{}{
					"price":  last,
					"ask":    parseFirstFloat(info.Ask),
					"bid":    parseFirstFloat(info.Bid),
					"volume": parseFirstFloat(info.Volume),
				},
				Timestamp:  time.Now().Unix(),
				IsValid:    true,
				IsFresh:    true,
				Confidence: 0.85,
			}, nil
		}
		return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: "pair not found: " + pair}

	case "binance":
		body, err := p.get(ctx, "/api/v3/ticker/24hr?symbol="+pair)
		if err != nil {
			return nil, err
		}
		var t binanceTicker
		if err := json.Unmarshal(body, &t); err != nil {
			return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: "unparseable ticker response"}
		}
		price, _ := strconv.ParseFloat(t.LastPrice, 64)
		volume, _ := strconv.ParseFloat(t.Volume, 64)
		changePct, _ := strconv.ParseFloat(t.PriceChangePercent, 64)

		return &domain.ProviderResponse{
			ProviderName: p.cfg.Name,
			Asset:        asset,
			DataType:     domain.DataPrice,
			Data: map[string]interface{}{
				"price":          price,
				"volume":         volume,
				"change_percent": changePct,
			},
			Timestamp:  time.Now().Unix(),
			IsValid:    true,
			IsFresh:    true,
			Confidence: 0.9,
		}, nil

	default:
		return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: "unknown exchange " + p.exchange}
	}
}

func parseFirstFloat(vals []string) float64 {
	if len(vals) == 0 {
		return 0
	}
	f, _ := strconv.ParseFloat(vals[0], 64)
	return f
}

func (p *CCXTProvider) FetchOHLCV(ctx context.Context, asset domain.Asset, timeframe string, limit int) (*domain.ProviderResponse, error) {
	pair := p.pairSymbol(asset.Symbol)
	interval := ccxtInterval(p.exchange, timeframe)

	var path string
	switch p.exchange {
	case "kraken":
		path = fmt.Sprintf("/0/public/OHLC?pair=%s&interval=%d", pair, interval)
	case "binance":
		path = fmt.Sprintf("/api/v3/klines?symbol=%s&interval=%s&limit=%d", pair, timeframe, limit)
	default:
		return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: "unknown exchange " + p.exchange}
	}

	body, err := p.get(ctx, path)
	if err != nil {
		return nil, err
	}

	candles, err := parseCCXTCandles(p.exchange, body, limit)
	if err != nil {
		return nil, gwerrors.ProviderError{Provider: p.cfg.Name, Message: err.Error()}
	}

	return &domain.ProviderResponse{
		ProviderName: p.cfg.Name,
		Asset:        asset,
		DataType:     domain.DataOHLCV,
		Data:         map[string]interface{}{"candles": candles, "timeframe": timeframe},
		Timestamp:    time.Now().Unix(),
		IsValid:      true,
		IsFresh:      true,
		Confidence:   0.85,
	}, nil
}

// ccxtInterval maps a generic timeframe string ("1m", "1h", "1d", ...) to
// Kraken's minutes-based interval parameter. Binance takes the raw string.
func ccxtInterval(exchange, timeframe string) int {
	switch timeframe {
	case "1m":
		return 1
	case "5m":
		return 5
	case "15m":
		return 15
	case "1h":
		return 60
	case "4h":
		return 240
	case "1d":
		return 1440
	default:
		return 1440
	}
}

func parseCCXTCandles(exchange string, body []byte, limit int) ([]map[string]interface{}, error) {
	switch exchange {
	case "kraken":
		var parsed struct {
			Error  []string                   `json:"error"`
			Result map[string]json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, err
		}
		if len(parsed.Error) > 0 {
			return nil, fmt.Errorf("%s", strings.Join(parsed.Error, "; "))
		}
		for key, raw := range parsed.Result {
			if key == "last" {
				continue
			}
			var rows [][]interface{}
			if err := json.Unmarshal(raw, &rows); err != nil {
				continue
			}
			return candlesFromKrakenRows(rows, limit), nil
		}
		return nil, fmt.Errorf("no OHLC series in response")

	case "binance":
		var rows [][]interface{}
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, err
		}
		return candlesFromBinanceRows(rows, limit), nil

	default:
		return nil, fmt.Errorf("unknown exchange %s", exchange)
	}
}

func candlesFromKrakenRows(rows [][]interface{}, limit int) []map[string]interface{} {
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		if len(r) < 7 {
			continue
		}
		out = append(out, map[string]interface{}{
			"timestamp": r[0],
			"open":      toFloat(r[1]),
			"high":      toFloat(r[2]),
			"low":       toFloat(r[3]),
			"close":     toFloat(r[4]),
			"volume":    toFloat(r[6]),
		})
	}
	return out
}

func candlesFromBinanceRows(rows [][]interface{}, limit int) []map[string]interface{} {
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			continue
		}
		out = append(out, map[string]interface{}{
			"timestamp": r[0],
			"open":      toFloat(r[1]),
			"high":      toFloat(r[2]),
			"low":       toFloat(r[3]),
			"close":     toFloat(r[4]),
			"volume":    toFloat(r[5]),
		})
	}
	return out
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func (p *CCXTProvider) FetchFundamentals(ctx context.Context, asset domain.Asset) (*domain.ProviderResponse, error) {
	return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: "fundamentals do not apply to crypto pairs"}
}

func (p *CCXTProvider) FetchNews(ctx context.Context, asset domain.Asset, limit int) (*domain.ProviderResponse, error) {
	return nil, gwerrors.NotSupportedError{Provider: p.cfg.Name, Reason: "news not offered by this provider"}
}

func (p *CCXTProvider) GetHealth() domain.ProviderHealth {
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
