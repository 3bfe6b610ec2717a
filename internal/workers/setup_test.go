package workers

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentience-labs/resilience-core/internal/scheduler"
)

func TestLifecycleDrainsPendingOutboxEvents(t *testing.T) {
	db := newTestDB(t)
	manager := &stubOrderManager{brokerOrderID: "bo-1"}
	outboxWorker := NewOutboxWorker(db, manager, zerolog.Nop())
	reconciler := NewReconciler(db, &stubBrokerOrderQuerier{}, NewOrderUpdateHandler(db, zerolog.Nop()), testReconcilerConfig(), zerolog.Nop())
	sched := scheduler.New(zerolog.Nop())

	lifecycle := NewLifecycle(outboxWorker, reconciler, nil, sched, 5*time.Millisecond, zerolog.Nop())

	id := insertOutboxEvent(t, db, "SUBMIT_CLOSE_ORDER",
		`{"close_request_id":1,"position_id":1,"symbol":"AAPL","side":"sell","qty":5,"asset_type":"equity"}`,
		string(OutboxPending))

	require.NoError(t, lifecycle.Start())
	defer lifecycle.Stop()

	require.Eventually(t, func() bool {
		var status string
		if err := db.QueryRow(`SELECT status FROM outbox_events WHERE id = ?`, id).Scan(&status); err != nil {
			return false
		}
		return status == string(OutboxDone)
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, manager.calls)
}

func TestLifecycleStopIsIdempotentAndWaitsForLoopExit(t *testing.T) {
	db := newTestDB(t)
	outboxWorker := NewOutboxWorker(db, &stubOrderManager{}, zerolog.Nop())
	reconciler := NewReconciler(db, &stubBrokerOrderQuerier{}, NewOrderUpdateHandler(db, zerolog.Nop()), testReconcilerConfig(), zerolog.Nop())
	sched := scheduler.New(zerolog.Nop())
	lifecycle := NewLifecycle(outboxWorker, reconciler, nil, sched, 5*time.Millisecond, zerolog.Nop())

	require.NoError(t, lifecycle.Start())
	lifecycle.Stop()
	lifecycle.Stop()
}

func TestSleepOrDoneReturnsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	sleepOrDone(ctx, time.Minute)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "a cancelled context must interrupt the sleep immediately")
}
