package workers

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentience-labs/resilience-core/internal/database"
)

// newTestDB builds a throwaway resilience database with the order-lifecycle
// schema applied, matching how the container wires the real one.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "resilience.db"),
		Profile: database.ProfileLedger,
		Name:    "resilience",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func insertPosition(t *testing.T, db *database.DB, symbol, status string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO positions (symbol, status) VALUES (?, ?)`, symbol, status)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertCloseRequest(t *testing.T, db *database.DB, positionID int64, status, symbol, side string, targetQty int64) int64 {
	t.Helper()
	res, err := db.Exec(`
		INSERT INTO close_requests (position_id, status, symbol, side, asset_type, target_qty, created_at)
		VALUES (?, ?, ?, ?, 'equity', ?, CURRENT_TIMESTAMP)`,
		positionID, status, symbol, side, targetQty)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertOrder(t *testing.T, db *database.DB, brokerOrderID string, closeRequestID *int64, status string, filledQty int64) int64 {
	t.Helper()
	res, err := db.Exec(`
		INSERT INTO orders (broker_order_id, close_request_id, status, filled_qty)
		VALUES (?, ?, ?, ?)`, brokerOrderID, closeRequestID, status, filledQty)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertOutboxEvent(t *testing.T, db *database.DB, eventType, payload, status string) int64 {
	t.Helper()
	res, err := db.Exec(`
		INSERT INTO outbox_events (event_type, payload, status, created_at, attempts)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, 0)`, eventType, payload, status)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func queryPositionStatus(t *testing.T, db *database.DB, id int64) string {
	t.Helper()
	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM positions WHERE id = ?`, id).Scan(&status))
	return status
}

func queryCloseRequestStatus(t *testing.T, db *database.DB, id int64) string {
	t.Helper()
	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM close_requests WHERE id = ?`, id).Scan(&status))
	return status
}

func queryOrderStatus(t *testing.T, db *database.DB, id int64) (string, int64) {
	t.Helper()
	var status string
	var filledQty int64
	require.NoError(t, db.QueryRow(`SELECT status, filled_qty FROM orders WHERE order_id = ?`, id).Scan(&status, &filledQty))
	return status, filledQty
}
