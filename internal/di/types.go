// Package di wires the resilience core's components together: databases,
// the degradation/state-machine layer, the order-lifecycle workers, the
// scheduler, and the read-only ops surface.
package di

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sentience-labs/resilience-core/internal/clients/tradernet"
	"github.com/sentience-labs/resilience-core/internal/database"
	"github.com/sentience-labs/resilience-core/internal/degradation"
	"github.com/sentience-labs/resilience-core/internal/opsserver"
	"github.com/sentience-labs/resilience-core/internal/scheduler"
	"github.com/sentience-labs/resilience-core/internal/workers"
)

// Container holds every dependency the resilience core needs at runtime.
// It is built once by Wire and handed to cmd/server/main.go.
type Container struct {
	ResilienceDB *database.DB

	EventBus        *degradation.EventBus
	StateService    *degradation.SystemStateService
	TradingGate     *degradation.TradingGate
	RecoveryOrch    *degradation.RecoveryOrchestrator
	DBBuffer        *degradation.DBBuffer
	BrokerProbe     *degradation.BrokerProbe
	MarketDataProbe *degradation.MarketDataProbe
	RiskProbe       *degradation.RiskProbe

	OrderHandler    *workers.OrderUpdateHandler
	Reconciler      *workers.Reconciler
	OutboxWorker    *workers.OutboxWorker
	OutboxCleaner   *workers.OutboxCleaner
	WorkerLifecycle *workers.Lifecycle

	Scheduler *scheduler.Scheduler
	OpsServer *opsserver.Server

	brokerAdapter     *tradernet.TradernetBrokerAdapter
	brokerWSConnector *degradation.WebSocketBrokerConnector
	quotePollerCancel context.CancelFunc
	diskProbeCancel   context.CancelFunc
}

// closeAll closes everything that holds an OS resource, ignoring errors —
// used only on the partial-initialization error path.
func (c *Container) closeAll(log zerolog.Logger) {
	if c.ResilienceDB != nil {
		if err := c.ResilienceDB.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing resilience database during cleanup")
		}
	}
	if c.DBBuffer != nil {
		if err := c.DBBuffer.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing WAL buffer during cleanup")
		}
	}
}
