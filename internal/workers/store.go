package workers

import (
	"context"
	"database/sql"
	"time"
)

// lockOrderByBrokerID fetches the order row for a broker order id inside the
// caller's transaction. That transaction comes from sql.DB.Begin, a deferred
// SQLite transaction: it takes the database write lock at its first write,
// not at this read. SQLite has no row-level lock and no SELECT ... FOR UPDATE.
func lockOrderByBrokerID(ctx context.Context, tx *sql.Tx, brokerOrderID string) (*OrderRecord, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT order_id, broker_order_id, close_request_id, status, filled_qty,
		       broker_update_seq, last_broker_update_at, reconcile_not_found_count
		FROM orders WHERE broker_order_id = ?`, brokerOrderID)
	return scanOrder(row)
}

func scanOrder(row *sql.Row) (*OrderRecord, error) {
	var o OrderRecord
	var closeRequestID sql.NullInt64
	var brokerUpdateSeq sql.NullInt64
	var lastBrokerUpdateAt sql.NullTime
	if err := row.Scan(&o.OrderID, &o.BrokerOrderID, &closeRequestID, &o.Status, &o.FilledQty,
		&brokerUpdateSeq, &lastBrokerUpdateAt, &o.ReconcileNotFoundCount); err != nil {
		return nil, err
	}
	if closeRequestID.Valid {
		v := closeRequestID.Int64
		o.CloseRequestID = &v
	}
	if brokerUpdateSeq.Valid {
		v := brokerUpdateSeq.Int64
		o.BrokerUpdateSeq = &v
	}
	if lastBrokerUpdateAt.Valid {
		v := lastBrokerUpdateAt.Time
		o.LastBrokerUpdateAt = &v
	}
	return &o, nil
}

func updateOrderTx(ctx context.Context, tx *sql.Tx, orderID int64, status OrderStatus, filledQty int64, seq *int64, updatedAt *time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, filled_qty = ?, broker_update_seq = ?, last_broker_update_at = ?
		WHERE order_id = ?`, status, filledQty, seq, updatedAt, orderID)
	return err
}

func updateOrderFilledQtyOnlyTx(ctx context.Context, tx *sql.Tx, orderID int64, filledQty int64, seq *int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders SET filled_qty = ?, broker_update_seq = ? WHERE order_id = ?`,
		filledQty, seq, orderID)
	return err
}

func lockCloseRequest(ctx context.Context, tx *sql.Tx, id int64) (*CloseRequest, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, position_id, status, symbol, side, asset_type, target_qty, filled_qty,
		       retry_count, max_retries, created_at, submitted_at, completed_at
		FROM close_requests WHERE id = ?`, id)
	return scanCloseRequest(row)
}

func scanCloseRequest(row *sql.Row) (*CloseRequest, error) {
	var cr CloseRequest
	var submittedAt, completedAt sql.NullTime
	if err := row.Scan(&cr.ID, &cr.PositionID, &cr.Status, &cr.Symbol, &cr.Side, &cr.AssetType,
		&cr.TargetQty, &cr.FilledQty, &cr.RetryCount, &cr.MaxRetries, &cr.CreatedAt,
		&submittedAt, &completedAt); err != nil {
		return nil, err
	}
	if submittedAt.Valid {
		v := submittedAt.Time
		cr.SubmittedAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		cr.CompletedAt = &v
	}
	return &cr, nil
}

func fetchPosition(ctx context.Context, tx *sql.Tx, id int64) (*Position, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, symbol, status, active_close_request_id, closed_at
		FROM positions WHERE id = ?`, id)
	var p Position
	var activeCloseRequestID sql.NullInt64
	var closedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Symbol, &p.Status, &activeCloseRequestID, &closedAt); err != nil {
		return nil, err
	}
	if activeCloseRequestID.Valid {
		v := activeCloseRequestID.Int64
		p.ActiveCloseRequestID = &v
	}
	if closedAt.Valid {
		v := closedAt.Time
		p.ClosedAt = &v
	}
	return &p, nil
}

func sumFilledQtyForCloseRequest(ctx context.Context, tx *sql.Tx, closeRequestID int64) (int64, error) {
	var total sql.NullInt64
	row := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(filled_qty), 0) FROM orders WHERE close_request_id = ?`, closeRequestID)
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total.Int64, nil
}

func listOrdersForCloseRequest(ctx context.Context, tx *sql.Tx, closeRequestID int64) ([]OrderRecord, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT order_id, broker_order_id, close_request_id, status, filled_qty,
		       broker_update_seq, last_broker_update_at, reconcile_not_found_count
		FROM orders WHERE close_request_id = ?`, closeRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		var o OrderRecord
		var crID sql.NullInt64
		var seq sql.NullInt64
		var lastUpdate sql.NullTime
		if err := rows.Scan(&o.OrderID, &o.BrokerOrderID, &crID, &o.Status, &o.FilledQty,
			&seq, &lastUpdate, &o.ReconcileNotFoundCount); err != nil {
			return nil, err
		}
		if crID.Valid {
			v := crID.Int64
			o.CloseRequestID = &v
		}
		if seq.Valid {
			v := seq.Int64
			o.BrokerUpdateSeq = &v
		}
		if lastUpdate.Valid {
			v := lastUpdate.Time
			o.LastBrokerUpdateAt = &v
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func updateCloseRequestFilledQtyTx(ctx context.Context, tx *sql.Tx, id int64, filledQty int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE close_requests SET filled_qty = ? WHERE id = ?`, filledQty, id)
	return err
}

func updateCloseRequestTx(ctx context.Context, tx *sql.Tx, cr *CloseRequest) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE close_requests
		SET status = ?, filled_qty = ?, retry_count = ?, submitted_at = ?, completed_at = ?
		WHERE id = ?`,
		cr.Status, cr.FilledQty, cr.RetryCount, cr.SubmittedAt, cr.CompletedAt, cr.ID)
	return err
}

func updatePositionTx(ctx context.Context, tx *sql.Tx, p *Position) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE positions SET status = ?, active_close_request_id = ?, closed_at = ?
		WHERE id = ?`, p.Status, p.ActiveCloseRequestID, p.ClosedAt, p.ID)
	return err
}
