package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentience-labs/resilience-core/internal/database"
)

// ErrOrderNotFound is returned by BrokerOrderQuerier when the broker has no
// record of the given order id.
var ErrOrderNotFound = errors.New("workers: order not found at broker")

// BrokerOrderQuerier is the minimal broker surface the reconciler needs to
// recover stuck orders.
type BrokerOrderQuerier interface {
	QueryOrder(ctx context.Context, brokerOrderID string) (status string, filledQty int64, err error)
}

// Reconciler runs scheduled healing passes over close requests, orders, and
// positions: detecting zombies, recovering stuck orders by querying the
// broker directly, retrying partial fills, and fixing invariant violations.
// Each pass is independently idempotent and safe to run on any schedule.
type Reconciler struct {
	db            *database.DB
	broker        BrokerOrderQuerier
	orderHandler  *OrderUpdateHandler
	zombieAfter   time.Duration
	stuckAfter    time.Duration
	maxNotFound   int
	log           zerolog.Logger
}

// NewReconciler constructs a Reconciler. orderHandler is used to apply any
// broker status recovered for a stuck order through the same idempotent,
// monotonic path a live broker update would take.
func NewReconciler(db *database.DB, broker BrokerOrderQuerier, orderHandler *OrderUpdateHandler, config ReconcilerConfig, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		db:           db,
		broker:       broker,
		orderHandler: orderHandler,
		zombieAfter:  time.Duration(config.ZombieThresholdMinutes) * time.Minute,
		stuckAfter:   time.Duration(config.StuckThresholdMinutes) * time.Minute,
		maxNotFound:  config.MaxNotFoundRetries,
		log:          log.With().Str("component", "reconciler").Logger(),
	}
}

// ReconcilerConfig carries the reconciler's tunable thresholds.
type ReconcilerConfig struct {
	ZombieThresholdMinutes int
	StuckThresholdMinutes  int
	MaxNotFoundRetries     int
}

// DetectZombies finds PENDING close requests older than the zombie
// threshold with no matching pending outbox event — the signature of a
// crash between creating the CloseRequest and writing its outbox intent —
// and rolls the position back to OPEN.
func (r *Reconciler) DetectZombies(ctx context.Context) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		threshold := time.Now().Add(-r.zombieAfter)
		rows, err := tx.QueryContext(ctx, `
			SELECT id, position_id FROM close_requests
			WHERE status = ? AND created_at < ?`, CloseRequestPending, threshold)
		if err != nil {
			return err
		}
		type pending struct {
			id, positionID int64
		}
		var zombies []pending
		for rows.Next() {
			var z pending
			if err := rows.Scan(&z.id, &z.positionID); err != nil {
				rows.Close()
				return err
			}
			zombies = append(zombies, z)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, z := range zombies {
			hasOutbox, err := hasPendingSubmitOutbox(ctx, tx, z.id)
			if err != nil {
				return err
			}
			if hasOutbox {
				r.log.Debug().Int64("close_request_id", z.id).Msg("zombie has pending outbox, skipping")
				continue
			}

			r.log.Warn().Int64("close_request_id", z.id).Msg("zombie close_request, rolling back")
			now := time.Now()
			if _, err := tx.ExecContext(ctx, `
				UPDATE close_requests SET status = ?, completed_at = ? WHERE id = ?`,
				CloseRequestFailed, now, z.id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE positions SET status = ?, active_close_request_id = NULL WHERE id = ?`,
				PositionOpen, z.positionID); err != nil {
				return err
			}
		}
		return nil
	})
}

func hasPendingSubmitOutbox(ctx context.Context, tx *sql.Tx, closeRequestID int64) (bool, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT payload FROM outbox_events WHERE event_type = ? AND status = ?`,
		"SUBMIT_CLOSE_ORDER", OutboxPending)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var raw json.RawMessage
		if err := rows.Scan(&raw); err != nil {
			return false, err
		}
		var payload SubmitCloseOrderPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		if payload.CloseRequestID == closeRequestID {
			return true, nil
		}
	}
	return false, rows.Err()
}

// RecoverStuckOrders finds SUBMITTED close requests whose submitted_at is
// older than the stuck threshold, queries the broker directly for each of
// their orders, and feeds
// any recovered status through OrderUpdateHandler.OnOrderUpdate — the same
// idempotent path a live websocket update takes, so the monotonic and
// terminal-state rules apply identically whether the update arrived live or
// via reconciliation.
func (r *Reconciler) RecoverStuckOrders(ctx context.Context) error {
	threshold := time.Now().Add(-r.stuckAfter)

	type stuckOrder struct {
		orderID       int64
		brokerOrderID string
		closeRequestID int64
	}
	var orders []stuckOrder

	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT o.order_id, o.broker_order_id, o.close_request_id
			FROM orders o
			JOIN close_requests cr ON cr.id = o.close_request_id
			WHERE cr.status = ? AND cr.submitted_at < ? AND o.broker_order_id != ''`,
			CloseRequestSubmitted, threshold)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var so stuckOrder
			if err := rows.Scan(&so.orderID, &so.brokerOrderID, &so.closeRequestID); err != nil {
				return err
			}
			orders = append(orders, so)
		}
		return rows.Err()
	})
	if err != nil {
		return err
	}

	for _, so := range orders {
		status, filledQty, err := r.broker.QueryOrder(ctx, so.brokerOrderID)
		if errors.Is(err, ErrOrderNotFound) {
			if err := r.handleOrderNotFound(ctx, so.orderID, so.closeRequestID); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			r.log.Warn().Err(err).Str("broker_order_id", so.brokerOrderID).Msg("broker query failed during reconciliation")
			continue
		}

		r.log.Info().Str("broker_order_id", so.brokerOrderID).Str("status", status).Msg("recovered order via reconciliation")
		if err := r.orderHandler.OnOrderUpdate(ctx, so.brokerOrderID, status, filledQty, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) handleOrderNotFound(ctx context.Context, orderID, closeRequestID int64) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT reconcile_not_found_count FROM orders WHERE order_id = ?`, orderID).Scan(&count); err != nil {
			return err
		}
		count++
		if _, err := tx.ExecContext(ctx, `UPDATE orders SET reconcile_not_found_count = ? WHERE order_id = ?`, count, orderID); err != nil {
			return err
		}
		if count < r.maxNotFound {
			return nil
		}

		r.log.Error().Int64("order_id", orderID).Int("attempts", count).Msg("order not found at broker after max retries")
		now := time.Now()
		if _, err := tx.ExecContext(ctx, `UPDATE close_requests SET status = ?, completed_at = ? WHERE id = ?`,
			CloseRequestFailed, now, closeRequestID); err != nil {
			return err
		}
		var positionID int64
		if err := tx.QueryRowContext(ctx, `SELECT position_id FROM close_requests WHERE id = ?`, closeRequestID).Scan(&positionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE positions SET status = ? WHERE id = ?`, PositionCloseFailed, positionID)
		return err
	})
}

// RetryPartialFills auto-retries RETRYABLE close requests under their max
// retry count by writing a fresh SUBMIT_CLOSE_ORDER outbox event for the
// remaining quantity, reusing the CloseRequest's snapshot fields.
func (r *Reconciler) RetryPartialFills(ctx context.Context) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, position_id, symbol, side, asset_type, target_qty, filled_qty, retry_count, max_retries
			FROM close_requests WHERE status = ? AND retry_count < max_retries`, CloseRequestRetryable)
		if err != nil {
			return err
		}
		type retryable struct {
			id, positionID, targetQty, filledQty int64
			symbol, side, assetType              string
			retryCount, maxRetries                int
		}
		var requests []retryable
		for rows.Next() {
			var req retryable
			if err := rows.Scan(&req.id, &req.positionID, &req.symbol, &req.side, &req.assetType,
				&req.targetQty, &req.filledQty, &req.retryCount, &req.maxRetries); err != nil {
				rows.Close()
				return err
			}
			requests = append(requests, req)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, req := range requests {
			remaining := req.targetQty - req.filledQty
			if remaining <= 0 {
				continue
			}

			r.log.Info().Int64("close_request_id", req.id).Int64("remaining", remaining).Msg("retrying close request")

			payload, err := json.Marshal(SubmitCloseOrderPayload{
				CloseRequestID: req.id,
				PositionID:     req.positionID,
				Symbol:         req.symbol,
				Side:           req.side,
				Qty:            remaining,
				AssetType:      req.assetType,
				IsRetry:        true,
			})
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO outbox_events (event_type, payload, status, created_at, attempts)
				VALUES (?, ?, ?, ?, 0)`, "SUBMIT_CLOSE_ORDER", payload, OutboxPending, time.Now()); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE close_requests SET status = ?, retry_count = ? WHERE id = ?`,
				CloseRequestPending, req.retryCount+1, req.id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE positions SET status = ? WHERE id = ?`, PositionClosing, req.positionID); err != nil {
				return err
			}
		}
		return nil
	})
}

// CheckInvariants fixes status invariant violations: a CLOSING position
// without an active close request is forced to CLOSE_FAILED so it doesn't
// silently hang forever.
func (r *Reconciler) CheckInvariants(ctx context.Context) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM positions WHERE status = ? AND active_close_request_id IS NULL`, PositionClosing)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			r.log.Error().Int64("position_id", id).Msg("invariant violation: position CLOSING with no active close request")
			if _, err := tx.ExecContext(ctx, `UPDATE positions SET status = ? WHERE id = ?`, PositionCloseFailed, id); err != nil {
				return err
			}
		}
		return nil
	})
}
