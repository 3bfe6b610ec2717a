// Package main is the entry point for the trading resilience core.
//
// The core sits between an existing order-execution system and the broker
// gateway: it tracks broker/market-data/risk health, drives a system-wide
// mode (NORMAL/DEGRADED/SAFE_MODE/HALT/RECOVERING), gates every outgoing
// trading action through that mode, and keeps order and close-request state
// consistent across broker disconnects, process crashes, and restarts via a
// transactional outbox and reconciliation jobs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentience-labs/resilience-core/internal/config"
	"github.com/sentience-labs/resilience-core/internal/di"
	"github.com/sentience-labs/resilience-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true, Service: "sentinel-resilience"})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "sentinel-resilience",
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("starting trading resilience core")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire dependencies")
	}

	if err := container.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start resilience core")
	}
	log.Info().Int("ops_port", cfg.OpsPort).Msg("resilience core started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down resilience core...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	container.Stop(shutdownCtx)

	log.Info().Msg("resilience core stopped")
}
