// Package domain holds the core data model shared across the arbitration
// engine, cache, watchdogs, guardrail, and alert engine: Asset, DataType,
// Provider configuration/response/health/score, ArbitrationPlan,
// DataLineage, and CacheEntry.
package domain

import "strings"

// AssetType is the closed set of asset classes the gateway understands.
type AssetType string

const (
	AssetEquity     AssetType = "equity"
	AssetCrypto     AssetType = "crypto"
	AssetForex      AssetType = "forex"
	AssetCommodity  AssetType = "commodity"
	AssetETF        AssetType = "etf"
	AssetBond       AssetType = "bond"
	AssetDerivative AssetType = "derivative"
)

// Asset identifies a tradeable instrument.
type Asset struct {
	Symbol   string
	Type     AssetType
	Market   string
	Exchange string
	Currency string
}

// NewAsset normalizes symbol casing/whitespace the way every provider boundary expects.
func NewAsset(symbol string, assetType AssetType) Asset {
	return Asset{
		Symbol: NormalizeSymbol(symbol),
		Type:   assetType,
	}
}

// NormalizeSymbol uppercases and trims a raw symbol. Crypto pair symbols
// (BTC/USDT) keep their separator; normalization of the pair form into a
// provider-specific shape happens at the provider boundary, not here.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Key returns a stable identifier for the asset ("EXCHANGE:SYMBOL", or the
// bare symbol without an exchange), used in error messages and detector
// dedup keys. Cache keys use the bare Symbol instead (cache.Key).
func (a Asset) Key() string {
	if a.Exchange != "" {
		return a.Exchange + ":" + a.Symbol
	}
	return a.Symbol
}

// DataType is the closed set of data categories a provider can serve.
type DataType string

const (
	DataPrice        DataType = "price"
	DataOHLCV        DataType = "ohlcv"
	DataFundamentals DataType = "fundamentals"
	DataTechnical    DataType = "technical"
	DataNews         DataType = "news"
)
