// Package config loads gateway configuration from environment variables,
// with an optional .env file read first via godotenv.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every setting needed to wire the gateway's components.
// Every credential is optional: an absent provider or delivery channel
// key simply disables that provider/channel rather than failing startup.
type Config struct {
	DataDir  string
	Port     int
	LogLevel string
	DevMode  bool

	Providers ProviderConfig
	Watchdog  WatchdogConfig
	Guardrail GuardrailConfig
	Alerts    AlertsConfig
	Backup    BackupConfig
}

// ProviderConfig carries the optional credentials for each data provider.
type ProviderConfig struct {
	FMPAPIKey      string
	YahooAPIKey    string
	CCXTGatewayURL string
}

// WatchdogConfig carries the watchdog settings read from the environment.
// Only CheckIntervalSeconds and the two watchlists reach the detectors;
// PriceMoveThreshold, VolumeMultipleThreshold and WhaleThresholdUSD are
// loaded but not passed on, and the detectors use their built-in
// thresholds (5% move, 3x volume, $1M transfer) regardless of them.
type WatchdogConfig struct {
	PriceMoveThreshold      float64
	VolumeMultipleThreshold float64
	WhaleThresholdUSD       float64
	CheckIntervalSeconds    int
	EquityWatchlist         []string
	CryptoWatchlist         []string
}

// GuardrailConfig controls the compliance pipeline's strictness.
type GuardrailConfig struct {
	StrictMode        bool
	AutoAddDisclaimer bool
	DefaultLanguage   string
	StrictLimit       int
}

// AlertsConfig carries the alert delivery settings read from the
// environment. Only DeliveryWorkers is used; the SMTP and Telegram fields
// are loaded but not passed to the deliverer, which sends with each
// alert's own EmailCfg/TelegramCfg and has no fallback to these values.
type AlertsConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	TelegramBotToken string
	DeliveryWorkers  int
}

// BackupConfig carries the R2/S3 bucket and retention settings.
type BackupConfig struct {
	Enabled         bool
	Bucket          string
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Load reads .env (if present) then environment variables, resolves the
// data directory to an absolute path and creates it, and validates the
// result.
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	dataDir := ""
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("GATEWAY_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve data dir: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("config: create data dir: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GATEWAY_PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		Providers: ProviderConfig{
			FMPAPIKey:      getEnv("FMP_API_KEY", ""),
			YahooAPIKey:    getEnv("YAHOO_API_KEY", ""),
			CCXTGatewayURL: getEnv("CCXT_GATEWAY_URL", ""),
		},
		Watchdog: WatchdogConfig{
			PriceMoveThreshold:      getEnvAsFloat("WATCHDOG_PRICE_MOVE_THRESHOLD", 0.05),
			VolumeMultipleThreshold: getEnvAsFloat("WATCHDOG_VOLUME_MULTIPLE_THRESHOLD", 3.0),
			WhaleThresholdUSD:       getEnvAsFloat("WATCHDOG_WHALE_THRESHOLD_USD", 1_000_000),
			CheckIntervalSeconds:    getEnvAsInt("WATCHDOG_CHECK_INTERVAL_SECONDS", 60),
			EquityWatchlist:         getEnvAsList("WATCHDOG_EQUITY_WATCHLIST", []string{"AAPL", "MSFT", "GOOGL"}),
			CryptoWatchlist:         getEnvAsList("WATCHDOG_CRYPTO_WATCHLIST", []string{"BTC/USDT", "ETH/USDT"}),
		},
		Guardrail: GuardrailConfig{
			StrictMode:        getEnvAsBool("GUARDRAIL_STRICT_MODE", false),
			AutoAddDisclaimer: getEnvAsBool("GUARDRAIL_AUTO_DISCLAIMER", true),
			DefaultLanguage:   getEnv("GUARDRAIL_DEFAULT_LANGUAGE", "en"),
			StrictLimit:       getEnvAsInt("GUARDRAIL_STRICT_LIMIT", 3),
		},
		Alerts: AlertsConfig{
			SMTPHost:         getEnv("ALERTS_SMTP_HOST", ""),
			SMTPPort:         getEnvAsInt("ALERTS_SMTP_PORT", 587),
			SMTPUser:         getEnv("ALERTS_SMTP_USER", ""),
			SMTPPassword:     getEnv("ALERTS_SMTP_PASSWORD", ""),
			SMTPFrom:         getEnv("ALERTS_SMTP_FROM", ""),
			TelegramBotToken: getEnv("ALERTS_TELEGRAM_BOT_TOKEN", ""),
			DeliveryWorkers:  getEnvAsInt("ALERTS_DELIVERY_WORKERS", 4),
		},
		Backup: BackupConfig{
			Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
			Bucket:          getEnv("R2_BUCKET", ""),
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that aren't safe to default away. All
// provider and delivery credentials remain optional — absence disables
// that component, it doesn't invalidate the config.
func (c *Config) Validate() error {
	if c.Backup.Enabled && (c.Backup.Bucket == "" || c.Backup.AccountID == "") {
		return fmt.Errorf("config: BACKUP_ENABLED requires R2_BUCKET and R2_ACCOUNT_ID")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
