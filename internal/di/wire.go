package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-gateway/internal/alerts"
	"github.com/aristath/sentinel-gateway/internal/arbitration"
	"github.com/aristath/sentinel-gateway/internal/cache"
	gwconfig "github.com/aristath/sentinel-gateway/internal/config"
	"github.com/aristath/sentinel-gateway/internal/domain"
	"github.com/aristath/sentinel-gateway/internal/events"
	"github.com/aristath/sentinel-gateway/internal/guardrail"
	"github.com/aristath/sentinel-gateway/internal/providers"
	"github.com/aristath/sentinel-gateway/internal/reliability"
	"github.com/aristath/sentinel-gateway/internal/watchdog"
	"github.com/aristath/sentinel-gateway/internal/watchdog/detectors"
)

// Wire builds a fully constructed Container: databases, providers,
// arbitration, cache, event bus, watchdogs, guardrail, alerts, and the
// reliability scheduler, in that order, closing whatever was already
// opened if a later stage fails.
func Wire(ctx context.Context, cfg *gwconfig.Config, log zerolog.Logger) (*Container, error) {
	c, err := initializeDatabases(cfg.DataDir, log)
	if err != nil {
		return nil, err
	}

	if err := wireProviders(ctx, c, cfg, log); err != nil {
		c.Close()
		return nil, fmt.Errorf("di: wire providers: %w", err)
	}

	wireEvents(c, log)
	wireCache(c, log)
	wireWatchdogs(c, cfg, log)
	wireGuardrail(c, cfg, log)

	if err := wireAlerts(c, cfg, log); err != nil {
		c.Close()
		return nil, fmt.Errorf("di: wire alerts: %w", err)
	}

	if err := wireReliability(ctx, c, cfg, log); err != nil {
		c.Close()
		return nil, fmt.Errorf("di: wire reliability: %w", err)
	}

	log.Info().Msg("dependency injection wiring completed")
	return c, nil
}

func wireProviders(ctx context.Context, c *Container, cfg *gwconfig.Config, log zerolog.Logger) error {
	var configs []domain.ProviderConfig

	configs = append(configs, domain.ProviderConfig{Name: "mock", Enabled: true, Priority: 0, TimeoutSeconds: 10})

	if cfg.Providers.FMPAPIKey != "" {
		configs = append(configs, domain.ProviderConfig{
			Name: "fmp", Enabled: true, Priority: 10, RateLimitPerMinute: 250, TimeoutSeconds: 10, APIKey: cfg.Providers.FMPAPIKey,
		})
	}
	if cfg.Providers.YahooAPIKey != "" {
		configs = append(configs, domain.ProviderConfig{
			Name: "yahoo", Enabled: true, Priority: 5, RateLimitPerMinute: 100, TimeoutSeconds: 10, APIKey: cfg.Providers.YahooAPIKey,
		})
	}
	configs = append(configs,
		domain.ProviderConfig{Name: "ccxt_kraken", Enabled: true, Priority: 8, RateLimitPerMinute: 60, TimeoutSeconds: 10},
		domain.ProviderConfig{Name: "ccxt_binance", Enabled: true, Priority: 9, RateLimitPerMinute: 1200, TimeoutSeconds: 10},
	)

	registry, err := providers.NewRegistry(ctx, configs, log)
	if err != nil {
		return err
	}
	c.Registry = registry
	c.Arbitration = arbitration.NewEngine(registry, log)
	return nil
}

func wireEvents(c *Container, log zerolog.Logger) {
	durable := events.NewDurableLog(c.EventsDB, log)
	broadcaster := events.NewWebSocketBroadcaster(log)
	c.Broadcaster = broadcaster
	c.EventBus = events.NewBus(2000, durable, broadcaster, log)
}

func wireCache(c *Container, log zerolog.Logger) {
	l1 := cache.NewL1()
	l2 := cache.NewL2(c.CacheDB, log)
	c.Cache = cache.NewManager(l1, l2, log)

	mgr := c.Cache
	c.EventBus.Subscribe(func(ev *events.Event) {
		if ev.AssetSymbol != "" && ev.IsSignificant() {
			mgr.InvalidateForSymbol(ev.AssetSymbol)
		}
	}, nil, "cache-invalidation")
}

// wireWatchdogs registers every detector whose dependencies are fully
// satisfied by a domain.Provider alone: price/volume/earnings anomalies,
// exchange-outage probing, and cross-pair correlation. Funding-rate,
// liquidity-depth, and whale-transfer detectors need bespoke per-exchange
// fetchers (order-book depth, on-chain transfer feeds) that no provider
// in this gateway's registry exposes yet, so they're left unregistered
// rather than wired to a fetcher that would always return empty data.
func wireWatchdogs(c *Container, cfg *gwconfig.Config, log zerolog.Logger) {
	mgr := watchdog.NewManager(c.EventBus, log)

	equityAssets := assetsFor(cfg.Watchdog.EquityWatchlist, domain.AssetEquity)
	cryptoAssets := assetsFor(cfg.Watchdog.CryptoWatchlist, domain.AssetCrypto)
	allAssets := append(append([]domain.Asset{}, equityAssets...), cryptoAssets...)

	equityProvider, hasEquity := c.Registry.GetProvider("fmp")
	if !hasEquity {
		equityProvider, hasEquity = c.Registry.GetProvider("mock")
	}
	cryptoProvider, hasCrypto := c.Registry.GetProvider("ccxt_binance")
	if !hasCrypto {
		cryptoProvider, hasCrypto = c.Registry.GetProvider("mock")
	}

	wdCfg := watchdog.Config{CheckInterval: time.Duration(cfg.Watchdog.CheckIntervalSeconds) * time.Second, Enabled: true}

	if hasEquity && len(equityAssets) > 0 {
		mgr.Register(watchdog.NewBaseWatchdog(detectors.NewPriceAnomalyDetector(equityProvider, equityAssets), wdCfg, c.EventBus, log))
		mgr.Register(watchdog.NewBaseWatchdog(detectors.NewUnusualVolumeDetector(equityProvider, equityAssets), wdCfg, c.EventBus, log))
		mgr.Register(watchdog.NewBaseWatchdog(detectors.NewEarningsAnomalyDetector(equityProvider, equityAssets), wdCfg, c.EventBus, log))
	}
	if hasCrypto && len(cryptoAssets) > 0 {
		mgr.Register(watchdog.NewBaseWatchdog(detectors.NewPriceAnomalyDetector(cryptoProvider, cryptoAssets), wdCfg, c.EventBus, log))
		mgr.Register(watchdog.NewBaseWatchdog(detectors.NewUnusualVolumeDetector(cryptoProvider, cryptoAssets), wdCfg, c.EventBus, log))
	}
	if len(allAssets) > 0 {
		probe := allAssets[0]
		probeProvider := equityProvider
		if !hasEquity {
			probeProvider = cryptoProvider
		}
		mgr.Register(watchdog.NewBaseWatchdog(detectors.NewExchangeOutageDetector(probeProvider, probe, 2000), wdCfg, c.EventBus, log))
	}
	if len(cryptoAssets) >= 2 {
		pairs := make([]detectors.AssetPair, 0, len(cryptoAssets)-1)
		for i := 1; i < len(cryptoAssets); i++ {
			pairs = append(pairs, detectors.AssetPair{A: cryptoAssets[0], B: cryptoAssets[i]})
		}
		mgr.Register(watchdog.NewBaseWatchdog(detectors.NewCorrelationBreakdownDetector(cryptoProvider, pairs), wdCfg, c.EventBus, log))
	}

	mgr.Initialize()
	c.Watchdogs = mgr
}

func assetsFor(symbols []string, assetType domain.AssetType) []domain.Asset {
	out := make([]domain.Asset, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, domain.NewAsset(s, assetType))
	}
	return out
}

func wireGuardrail(c *Container, cfg *gwconfig.Config, log zerolog.Logger) {
	gen, err := guardrail.NewDisclaimerGenerator()
	if err != nil {
		log.Error().Err(err).Msg("failed to load disclaimer table, guardrail will run without disclaimers")
	}
	c.Guardrail = guardrail.New(guardrail.Config{
		StrictMode:        cfg.Guardrail.StrictMode,
		AutoAddDisclaimer: cfg.Guardrail.AutoAddDisclaimer,
		DefaultLanguage:   cfg.Guardrail.DefaultLanguage,
		StrictLimit:       cfg.Guardrail.StrictLimit,
	}, gen, log)
	c.GuardrailAudit = guardrail.NewAuditor(c.ComplianceDB)
}

func wireAlerts(c *Container, cfg *gwconfig.Config, log zerolog.Logger) error {
	store := alerts.NewStore(c.AlertsDB)
	deliverer := alerts.NewDeliverer(log, cfg.Alerts.DeliveryWorkers)
	engine := alerts.NewEngine(store, c.EventBus, deliverer, log)

	if err := engine.LoadAll(context.Background()); err != nil {
		deliverer.Stop()
		return err
	}

	c.AlertStore = store
	c.AlertEngine = engine
	c.deliverer = deliverer
	return nil
}

func wireReliability(ctx context.Context, c *Container, cfg *gwconfig.Config, log zerolog.Logger) error {
	c.Scheduler = reliability.NewScheduler(log)
	c.MaintenanceJobs = reliability.NewMaintenanceJobs(c.databases, cfg.DataDir, log)

	if err := c.Scheduler.ScheduleJob("0 1 * * *", reliability.NewDailyMaintenanceJob(c.MaintenanceJobs)); err != nil {
		return err
	}
	if err := c.Scheduler.ScheduleJob("0 3 * * 0", reliability.NewWeeklyMaintenanceJob(c.MaintenanceJobs)); err != nil {
		return err
	}
	if err := c.Scheduler.ScheduleJob("0 4 1 * *", reliability.NewMonthlyMaintenanceJob(c.MaintenanceJobs)); err != nil {
		return err
	}
	if err := c.Scheduler.Schedule("@every 1m", "provider_health_refresh", func() error {
		c.Registry.RefreshHealth(ctx)
		return nil
	}); err != nil {
		return err
	}

	if cfg.Backup.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion("auto"),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.Backup.AccessKeyID, cfg.Backup.SecretAccessKey, "")),
		)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.Backup.AccountID))
		})
		r2 := reliability.NewR2Client(client, cfg.Backup.Bucket)
		c.BackupService = reliability.NewBackupService(c.databases, r2, cfg.DataDir, log)

		if err := c.Scheduler.ScheduleJob("0 2 * * *", reliability.NewBackupJob(c.BackupService)); err != nil {
			return err
		}
		if err := c.Scheduler.ScheduleJob("30 2 * * *", reliability.NewBackupRotationJob(c.BackupService, cfg.Backup.RetentionDays)); err != nil {
			return err
		}
	}

	c.Scheduler.Start()
	return nil
}

