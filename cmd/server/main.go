// Package main is the entry point for the gateway: a multi-source
// financial-data arbitration service with anomaly watchdogs, a
// compliance guardrail, and a custom alert engine.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/sentinel-gateway/internal/config"
	"github.com/aristath/sentinel-gateway/internal/di"
	"github.com/aristath/sentinel-gateway/internal/server"
	"github.com/aristath/sentinel-gateway/pkg/logger"
)

func main() {
	// Load configuration first so the logger can pick up its level.
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting sentinel gateway")

	ctx := context.Background()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("error closing dependencies")
		}
	}()

	watchdogCtx, cancelWatchdogs := context.WithCancel(ctx)
	defer cancelWatchdogs()
	container.Watchdogs.Start(watchdogCtx)
	log.Info().Msg("watchdogs started")

	srv := server.New(server.Config{
		Log:             log,
		Port:            cfg.Port,
		DevMode:         cfg.DevMode,
		DataDir:         cfg.DataDir,
		EventBus:        container.EventBus,
		Broadcaster:     container.Broadcaster,
		CacheManager:    container.Cache,
		Arbitration:     container.Arbitration,
		Registry:        container.Registry,
		WatchdogManager: container.Watchdogs,
		Guardrail:       container.Guardrail,
		GuardrailAudit:  container.GuardrailAudit,
		AlertEngine:     container.AlertEngine,
		AlertStore:      container.AlertStore,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancelWatchdogs()
	container.Watchdogs.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	schedCtx := container.Scheduler.Stop()
	<-schedCtx.Done()

	log.Info().Msg("server stopped")
}
