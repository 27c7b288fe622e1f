package providers

import "github.com/aristath/sentinel-gateway/internal/domain"

// buildFunc constructs a provider from its static configuration.
type buildFunc func(cfg domain.ProviderConfig) domain.Provider

// factoryTable is the closed, statically-declared set of provider
// constructors. Adding a provider means adding an entry here, not teaching
// the registry to discover implementations by reflection.
var factoryTable = map[string]buildFunc{
	"mock": func(cfg domain.ProviderConfig) domain.Provider {
		return NewMockProvider(cfg)
	},
	"fmp": func(cfg domain.ProviderConfig) domain.Provider {
		return NewFMPProvider(cfg)
	},
	"yahoo": func(cfg domain.ProviderConfig) domain.Provider {
		return NewYahooProvider(cfg)
	},
	"ccxt_kraken": func(cfg domain.ProviderConfig) domain.Provider {
		return NewCCXTProvider(cfg, "kraken", "https://api.kraken.com")
	},
	"ccxt_binance": func(cfg domain.ProviderConfig) domain.Provider {
		return NewCCXTProvider(cfg, "binance", "https://api.binance.com")
	},
}
