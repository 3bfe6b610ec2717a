package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentience-labs/resilience-core/internal/clients/tradernet"
	"github.com/sentience-labs/resilience-core/internal/config"
	"github.com/sentience-labs/resilience-core/internal/degradation"
	"github.com/sentience-labs/resilience-core/internal/opsserver"
	"github.com/sentience-labs/resilience-core/internal/scheduler"
	"github.com/sentience-labs/resilience-core/internal/workers"
)

// Wire initializes every dependency and returns a fully configured
// Container. Order of operations:
//  1. Open and migrate the resilience database
//  2. Build the degradation layer (event bus, gate, state service, probes, recovery orchestrator, WAL buffer)
//  3. Build the order-lifecycle workers (handler, reconciler, outbox worker, cleaner, lifecycle)
//  4. Build the scheduler and ops HTTP surface
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabase(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := initializeDegradationLayer(container, cfg, log); err != nil {
		container.closeAll(log)
		return nil, fmt.Errorf("failed to initialize degradation layer: %w", err)
	}

	if err := initializeWorkers(container, cfg, log); err != nil {
		container.closeAll(log)
		return nil, fmt.Errorf("failed to initialize workers: %w", err)
	}

	if err := initializeOpsSurface(container, cfg, log); err != nil {
		container.closeAll(log)
		return nil, fmt.Errorf("failed to initialize ops surface: %w", err)
	}

	log.Info().Msg("dependency injection wiring completed successfully")
	return container, nil
}

func initializeDegradationLayer(c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.EventBus = degradation.NewEventBus(degradation.EventBusConfig{
		QueueSize:       cfg.Degradation.EventBusQueueSize,
		FallbackLogPath: cfg.DataDir + "/eventbus_fallback.jsonl",
	}, log)

	c.TradingGate = degradation.NewTradingGate()
	c.StateService = degradation.NewSystemStateService(cfg.Degradation, c.TradingGate, log)
	c.EventBus.Subscribe(c.StateService.HandleEvent)

	// A dropped must-deliver event never reaches the dispatcher, so the state
	// machine never sees it through the normal Subscribe path. Feed it the
	// same event directly so a critical drop still drives the mode the event
	// itself implies (e.g. a dropped BROKER_DISCONNECT still forces
	// SAFE_MODE_DISCONNECTED), then raise the gate straight to SAFE_MODE if it
	// is still less severe than that, matching spec's local-degrade-on-drop rule.
	gate := c.TradingGate
	c.EventBus.RegisterEmergencyCallback(func(event degradation.SystemEvent) {
		c.StateService.HandleEvent(event)
		if degradation.ModePriority(gate.Mode()) < degradation.ModePriority(degradation.ModeSafeMode) {
			if err := gate.UpdateMode(degradation.ModeSafeMode, nil); err != nil {
				log.Error().Err(err).Msg("failed to force emergency SAFE_MODE into trading gate")
			}
		}
	})

	brokerAdapter := tradernet.NewTradernetBrokerAdapter(cfg.TradernetAPIKey, cfg.TradernetAPISecret, log)

	wsConnector := degradation.NewWebSocketBrokerConnector(cfg.BrokerWSURL, log)
	c.BrokerProbe = degradation.NewBrokerProbe(wsConnector)
	c.brokerWSConnector = wsConnector

	poller := newQuotePoller(brokerAdapter, "AAPL.US", log)
	pollerCtx, cancel := context.WithCancel(context.Background())
	c.quotePollerCancel = cancel
	go poller.Run(pollerCtx, 30*time.Second)
	staleThreshold := time.Duration(cfg.Degradation.MarketDataCacheStaleMS) * time.Millisecond
	c.MarketDataProbe = degradation.NewMarketDataProbe(poller, staleThreshold)

	c.RiskProbe = degradation.NewRiskProbe(newHTTPRiskEngine(cfg.RiskEngineURL))

	dbBreaker := degradation.NewDBBreaker(cfg.Degradation.BreakerConfig())
	diskProbe := degradation.NewDiskSpaceProbe(cfg.DataDir, dbBreaker, c.EventBus.Publish, log)
	diskCtx, diskCancel := context.WithCancel(context.Background())
	c.diskProbeCancel = diskCancel
	go diskProbe.Run(diskCtx, 5*time.Minute)

	c.RecoveryOrch = degradation.NewRecoveryOrchestrator(
		cfg.Degradation, c.StateService, c.BrokerProbe, c.MarketDataProbe, c.RiskProbe, log,
	)

	walPath := cfg.DataDir + "/db_buffer.wal"
	buffer, err := degradation.NewDBBuffer(cfg.Degradation, walPath, log)
	if err != nil {
		return fmt.Errorf("failed to initialize WAL buffer: %w", err)
	}
	c.DBBuffer = buffer
	if err := c.DBBuffer.Restore(); err != nil {
		return fmt.Errorf("failed to restore WAL buffer: %w", err)
	}

	c.brokerAdapter = brokerAdapter

	c.EventBus.Start()
	c.StateService.Start()
	return nil
}

func initializeWorkers(c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.OrderHandler = workers.NewOrderUpdateHandler(c.ResilienceDB, log)

	orderManager := newBrokerOrderManager(c.brokerAdapter)
	c.OutboxWorker = workers.NewOutboxWorker(c.ResilienceDB, orderManager, log)

	querier := newBrokerOrderQuerier(c.brokerAdapter)
	c.Reconciler = workers.NewReconciler(c.ResilienceDB, querier, c.OrderHandler, workers.ReconcilerConfig{
		ZombieThresholdMinutes: cfg.Degradation.ZombieThresholdMinutes,
		StuckThresholdMinutes:  cfg.Degradation.StuckThresholdMinutes,
		MaxNotFoundRetries:     cfg.Degradation.MaxNotFoundRetries,
	}, log)

	if cfg.S3BackupBucket != "" {
		uploader, err := newS3Uploader(context.Background())
		if err != nil {
			return fmt.Errorf("failed to initialize S3 uploader: %w", err)
		}
		c.OutboxCleaner = workers.NewOutboxCleaner(c.ResilienceDB, uploader, cfg.S3BackupBucket, 7*24*time.Hour, log)
	} else {
		c.OutboxCleaner = workers.NewOutboxCleaner(c.ResilienceDB, nil, "", 7*24*time.Hour, log)
	}

	c.Scheduler = scheduler.New(log)
	c.WorkerLifecycle = workers.NewLifecycle(c.OutboxWorker, c.Reconciler, c.OutboxCleaner, c.Scheduler, 2*time.Second, log)
	return nil
}

func initializeOpsSurface(c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.OpsServer = opsserver.New(opsserver.Config{
		Log:     log,
		Port:    cfg.OpsPort,
		DevMode: cfg.DevMode,
		State:   c.StateService,
		Gate:    c.TradingGate,
	})
	return nil
}

// Start begins all background processing: the scheduler, the worker
// lifecycle's outbox loop, and the ops HTTP surface.
func (c *Container) Start() error {
	c.Scheduler.Start()
	if err := c.WorkerLifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start worker lifecycle: %w", err)
	}
	c.OpsServer.Start()
	return nil
}

// Stop shuts down every background component and closes the database.
func (c *Container) Stop(ctx context.Context) {
	if c.quotePollerCancel != nil {
		c.quotePollerCancel()
	}
	if c.diskProbeCancel != nil {
		c.diskProbeCancel()
	}
	if c.OpsServer != nil {
		_ = c.OpsServer.Stop(ctx)
	}
	if c.WorkerLifecycle != nil {
		c.WorkerLifecycle.Stop()
	}
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.StateService != nil {
		c.StateService.Stop()
	}
	if c.EventBus != nil {
		c.EventBus.Stop()
	}
	if c.brokerWSConnector != nil {
		c.brokerWSConnector.Close()
	}
	c.closeAll(zerolog.Nop())
}
