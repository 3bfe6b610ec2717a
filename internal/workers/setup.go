package workers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentience-labs/resilience-core/internal/scheduler"
)

// reconcilerJob adapts one Reconciler method to the scheduler.Job interface.
type reconcilerJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *reconcilerJob) Name() string { return j.name }
func (j *reconcilerJob) Run() error   { return j.run(context.Background()) }

// Lifecycle wires the outbox worker's polling loop and the reconciler's
// scheduled jobs into a scheduler.Scheduler, and owns starting/stopping
// them together.
type Lifecycle struct {
	outboxWorker *OutboxWorker
	reconciler   *Reconciler
	cleaner      *OutboxCleaner
	sched        *scheduler.Scheduler
	pollInterval time.Duration
	log          zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLifecycle constructs the worker lifecycle. sched is expected to already
// exist (shared with other scheduled jobs in the process); Start registers
// this package's jobs onto it but does not call sched.Start itself.
func NewLifecycle(outboxWorker *OutboxWorker, reconciler *Reconciler, cleaner *OutboxCleaner, sched *scheduler.Scheduler, pollInterval time.Duration, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		outboxWorker: outboxWorker,
		reconciler:   reconciler,
		cleaner:      cleaner,
		sched:        sched,
		pollInterval: pollInterval,
		log:          log.With().Str("component", "workers_lifecycle").Logger(),
	}
}

// Start registers reconciler/cleanup jobs with the scheduler and launches
// the outbox worker's polling goroutine. It does not call sched.Start;
// callers own the scheduler's own lifecycle.
func (l *Lifecycle) Start() error {
	jobs := []struct {
		schedule string
		job      *reconcilerJob
	}{
		{"0 */1 * * * *", &reconcilerJob{"detect_zombies", l.reconciler.DetectZombies}},
		{"0 */5 * * * *", &reconcilerJob{"recover_stuck_orders", l.reconciler.RecoverStuckOrders}},
		{"0 */2 * * * *", &reconcilerJob{"retry_partial_fills", l.reconciler.RetryPartialFills}},
		{"0 */10 * * * *", &reconcilerJob{"check_invariants", l.reconciler.CheckInvariants}},
	}
	for _, j := range jobs {
		if err := l.sched.AddJob(j.schedule, j.job); err != nil {
			return err
		}
	}

	if l.cleaner != nil {
		cleanupJob := &reconcilerJob{
			name: "outbox_cleanup",
			run: func(ctx context.Context) error {
				count, err := l.cleaner.Cleanup(ctx)
				if err != nil {
					return err
				}
				if count > 0 {
					l.log.Info().Int("count", count).Msg("cleaned up old outbox events")
				}
				return nil
			},
		}
		if err := l.sched.AddJob("0 0 3 * * *", cleanupJob); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.wg.Add(1)
	go l.runOutboxLoop(ctx)

	l.log.Info().Msg("worker lifecycle started")
	return nil
}

// Stop cancels the outbox polling goroutine and waits for it to exit. The
// underlying scheduler is stopped separately by its owner.
func (l *Lifecycle) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	l.log.Info().Msg("worker lifecycle stopped")
}

// runOutboxLoop continuously claims and processes outbox events, sleeping
// pollInterval whenever the queue is empty.
func (l *Lifecycle) runOutboxLoop(ctx context.Context) {
	defer l.wg.Done()
	l.log.Info().Msg("outbox worker started")

	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("outbox worker stopping")
			return
		default:
		}

		events, err := l.outboxWorker.ClaimPending(ctx, 1)
		if err != nil {
			l.log.Error().Err(err).Msg("failed to claim pending outbox events")
			sleepOrDone(ctx, l.pollInterval)
			continue
		}

		if len(events) == 0 {
			sleepOrDone(ctx, l.pollInterval)
			continue
		}

		for _, event := range events {
			if err := l.outboxWorker.ProcessEvent(ctx, event); err != nil {
				l.log.Error().Err(err).Int64("event_id", event.ID).Msg("failed to process outbox event")
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
