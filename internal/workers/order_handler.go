package workers

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentience-labs/resilience-core/internal/database"
)

// OrderUpdateHandler applies broker order updates with idempotent,
// monotonic status progression, grounded on the same sequence-number and
// terminal-state rules regardless of which broker connector is in use.
type OrderUpdateHandler struct {
	db  *database.DB
	log zerolog.Logger
}

// NewOrderUpdateHandler constructs a handler bound to the order-lifecycle
// database.
func NewOrderUpdateHandler(db *database.DB, log zerolog.Logger) *OrderUpdateHandler {
	return &OrderUpdateHandler{db: db, log: log.With().Str("component", "order_update_handler").Logger()}
}

// OnOrderUpdate handles a single broker order update. It is safe to call
// concurrently and to retry the same update: stale or duplicate sequence
// numbers are no-ops, and terminal states only ever accept the late-FILLED
// upgrade.
func (h *OrderUpdateHandler) OnOrderUpdate(ctx context.Context, brokerOrderID string, brokerStatus string, filledQty int64, brokerUpdateSeq *int64) error {
	return database.WithTransaction(h.db.Conn(), func(tx *sql.Tx) error {
		order, err := lockOrderByBrokerID(ctx, tx, brokerOrderID)
		if errors.Is(err, sql.ErrNoRows) {
			h.log.Warn().Str("broker_order_id", brokerOrderID).Msg("unknown order update")
			return nil
		}
		if err != nil {
			return err
		}

		newStatus, ok := brokerStatusMap[brokerStatus]
		if !ok {
			h.log.Warn().Str("broker_status", brokerStatus).Msg("unknown broker status")
			return nil
		}

		if brokerUpdateSeq != nil && order.BrokerUpdateSeq != nil && *brokerUpdateSeq <= *order.BrokerUpdateSeq {
			h.log.Debug().Str("broker_order_id", brokerOrderID).Msg("skipping stale update")
			return nil
		}

		if terminalOrderStates[order.Status] {
			return h.applyTerminalUpdate(ctx, tx, order, newStatus, filledQty, brokerUpdateSeq)
		}

		return h.applyProgressionUpdate(ctx, tx, order, newStatus, filledQty, brokerUpdateSeq)
	})
}

// applyTerminalUpdate handles updates arriving after an order already
// reached a terminal state: FILLED is absorbing, a late FILLED upgrades
// CANCELLED/REJECTED/EXPIRED, and anything else just raises filled_qty.
func (h *OrderUpdateHandler) applyTerminalUpdate(ctx context.Context, tx *sql.Tx, order *OrderRecord, newStatus OrderStatus, filledQty int64, seq *int64) error {
	if order.Status == OrderFilled {
		h.log.Debug().Int64("order_id", order.OrderID).Msg("order already filled, ignoring")
		return nil
	}

	if newStatus == OrderFilled && filledQty > order.FilledQty {
		h.log.Info().Int64("order_id", order.OrderID).Str("from", string(order.Status)).Msg("late filled, upgrading")
		now := time.Now()
		if err := updateOrderTx(ctx, tx, order.OrderID, OrderFilled, filledQty, seq, &now); err != nil {
			return err
		}
		if order.CloseRequestID != nil {
			return h.updateCloseRequest(ctx, tx, *order.CloseRequestID)
		}
		return nil
	}

	return updateOrderFilledQtyOnlyTx(ctx, tx, order.OrderID, maxInt64(order.FilledQty, filledQty), seq)
}

// applyProgressionUpdate enforces monotonic forward progression: a status
// with lower priority than the current one is dropped (only filled_qty is
// raised), matching backward-update protection.
func (h *OrderUpdateHandler) applyProgressionUpdate(ctx context.Context, tx *sql.Tx, order *OrderRecord, newStatus OrderStatus, filledQty int64, seq *int64) error {
	currentPriority := statusOrder[order.Status]
	newPriority := statusOrder[newStatus]

	if newPriority < currentPriority {
		h.log.Warn().Str("from", string(order.Status)).Str("to", string(newStatus)).Msg("ignoring backward status")
		return updateOrderFilledQtyOnlyTx(ctx, tx, order.OrderID, maxInt64(order.FilledQty, filledQty), seq)
	}

	now := time.Now()
	if err := updateOrderTx(ctx, tx, order.OrderID, newStatus, maxInt64(order.FilledQty, filledQty), seq, &now); err != nil {
		return err
	}

	if order.CloseRequestID != nil {
		return h.updateCloseRequest(ctx, tx, *order.CloseRequestID)
	}
	return nil
}

// updateCloseRequest aggregates filled_qty across every order tied to the
// close request, then derives CloseRequest/Position status once every
// constituent order has reached a terminal state.
func (h *OrderUpdateHandler) updateCloseRequest(ctx context.Context, tx *sql.Tx, closeRequestID int64) error {
	cr, err := lockCloseRequest(ctx, tx, closeRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	position, err := fetchPosition(ctx, tx, cr.PositionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	totalFilled, err := sumFilledQtyForCloseRequest(ctx, tx, closeRequestID)
	if err != nil {
		return err
	}
	cr.FilledQty = totalFilled

	orders, err := listOrdersForCloseRequest(ctx, tx, closeRequestID)
	if err != nil {
		return err
	}

	allTerminal := true
	for _, o := range orders {
		if !terminalOrderStates[o.Status] {
			allTerminal = false
		}
	}

	if !allTerminal {
		return updateCloseRequestFilledQtyTx(ctx, tx, cr.ID, cr.FilledQty)
	}

	remaining := cr.TargetQty - cr.FilledQty
	now := time.Now()

	switch {
	case remaining == 0:
		cr.Status = CloseRequestCompleted
		cr.CompletedAt = &now
		position.Status = PositionClosed
		position.ClosedAt = &now
		position.ActiveCloseRequestID = nil
	case cr.FilledQty == 0:
		cr.Status = CloseRequestFailed
		cr.CompletedAt = &now
		position.Status = PositionOpen
		position.ActiveCloseRequestID = nil
	default:
		cr.Status = CloseRequestRetryable
		position.Status = PositionCloseRetryable
	}

	if err := updateCloseRequestTx(ctx, tx, cr); err != nil {
		return err
	}
	return updatePositionTx(ctx, tx, position)
}

func maxInt64(a, b int64) int64 {
	if b > a {
		return b
	}
	return a
}
