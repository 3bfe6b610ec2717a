package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentience-labs/resilience-core/internal/database"
)

// OrderManager is the minimal broker surface an outbox event dispatches
// into: submitting the close order the event represents.
type OrderManager interface {
	SubmitOrder(ctx context.Context, symbol, side string, qty int64, closeRequestID int64) (brokerOrderID string, err error)
}

// OutboxWorker claims pending outbox events one at a time and drives them
// to completion. A crash before a claim commits leaves the event PENDING for
// the next poll; an event already marked IN_FLIGHT when the process stops is
// not claimed again, since ClaimPending selects only PENDING events.
type OutboxWorker struct {
	db           *database.DB
	orderManager OrderManager
	log          zerolog.Logger
}

// NewOutboxWorker constructs an OutboxWorker.
func NewOutboxWorker(db *database.DB, orderManager OrderManager, log zerolog.Logger) *OutboxWorker {
	return &OutboxWorker{db: db, orderManager: orderManager, log: log.With().Str("component", "outbox_worker").Logger()}
}

// ClaimPending atomically marks up to limit PENDING events IN_FLIGHT and
// returns them. Using UPDATE ... RETURNING-equivalent via a transaction
// keeps this safe against concurrent claimers.
func (w *OutboxWorker) ClaimPending(ctx context.Context, limit int) ([]OutboxEvent, error) {
	var claimed []OutboxEvent
	err := database.WithTransaction(w.db.Conn(), func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, event_type, payload, status, created_at, claimed_at, attempts
			FROM outbox_events WHERE status = ? ORDER BY created_at ASC LIMIT ?`, OutboxPending, limit)
		if err != nil {
			return err
		}
		var events []OutboxEvent
		for rows.Next() {
			var e OutboxEvent
			var claimedAt sql.NullTime
			if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.Status, &e.CreatedAt, &claimedAt, &e.Attempts); err != nil {
				rows.Close()
				return err
			}
			if claimedAt.Valid {
				v := claimedAt.Time
				e.ClaimedAt = &v
			}
			events = append(events, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := time.Now()
		for i := range events {
			if _, err := tx.ExecContext(ctx, `
				UPDATE outbox_events SET status = ?, claimed_at = ? WHERE id = ?`,
				OutboxInFlight, now, events[i].ID); err != nil {
				return err
			}
			events[i].Status = OutboxInFlight
			events[i].ClaimedAt = &now
		}
		claimed = events
		return nil
	})
	return claimed, err
}

// ProcessEvent dispatches a single claimed event to completion, marking it
// DONE on success or DEAD after it exhausts its attempt budget.
func (w *OutboxWorker) ProcessEvent(ctx context.Context, event OutboxEvent) error {
	const maxAttempts = 5

	var payload SubmitCloseOrderPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return w.markDead(ctx, event.ID, event.Attempts+1)
	}

	_, err := w.orderManager.SubmitOrder(ctx, payload.Symbol, payload.Side, payload.Qty, payload.CloseRequestID)
	if err != nil {
		attempts := event.Attempts + 1
		w.log.Warn().Err(err).Int64("event_id", event.ID).Int("attempts", attempts).Msg("outbox dispatch failed")
		if attempts >= maxAttempts {
			return w.markDead(ctx, event.ID, attempts)
		}
		return w.markPendingRetry(ctx, event.ID, attempts)
	}

	return w.markDone(ctx, event.ID)
}

func (w *OutboxWorker) markDone(ctx context.Context, id int64) error {
	_, err := w.db.ExecContext(ctx, `UPDATE outbox_events SET status = ? WHERE id = ?`, OutboxDone, id)
	return err
}

func (w *OutboxWorker) markDead(ctx context.Context, id int64, attempts int) error {
	_, err := w.db.ExecContext(ctx, `UPDATE outbox_events SET status = ?, attempts = ? WHERE id = ?`, OutboxDead, attempts, id)
	return err
}

func (w *OutboxWorker) markPendingRetry(ctx context.Context, id int64, attempts int) error {
	_, err := w.db.ExecContext(ctx, `UPDATE outbox_events SET status = ?, attempts = ? WHERE id = ?`, OutboxPending, attempts, id)
	return err
}
