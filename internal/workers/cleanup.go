package workers

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sentience-labs/resilience-core/internal/database"
)

// archivedOutboxEvent is the msgpack-encoded record written to cold storage
// for a terminal (DONE or DEAD) outbox event before it is deleted from the
// live table. msgpack is used here, and only here: the WAL and fallback log
// remain JSONL, since those must stay human-greppable during an incident.
type archivedOutboxEvent struct {
	ID        int64           `msgpack:"id"`
	EventType string          `msgpack:"event_type"`
	Payload   []byte          `msgpack:"payload"`
	Status    string          `msgpack:"status"`
	CreatedAt time.Time       `msgpack:"created_at"`
	Attempts  int             `msgpack:"attempts"`
}

// S3Uploader is the minimal surface CleanupOutbox needs from an S3-compatible
// object store (AWS S3 or an S3-compatible endpoint such as Cloudflare R2).
type S3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// OutboxCleaner archives terminal outbox events to object storage in
// msgpack-encoded batches, then deletes them from the live table, keeping
// the outbox table from growing unbounded.
type OutboxCleaner struct {
	db       *database.DB
	uploader S3Uploader
	bucket   string
	olderThan time.Duration
	log      zerolog.Logger
}

// NewOutboxCleaner constructs a cleaner. uploader may be nil, in which case
// Cleanup deletes terminal events without archiving them — used when no
// S3_BACKUP_BUCKET is configured.
func NewOutboxCleaner(db *database.DB, uploader S3Uploader, bucket string, olderThan time.Duration, log zerolog.Logger) *OutboxCleaner {
	return &OutboxCleaner{
		db:        db,
		uploader:  uploader,
		bucket:    bucket,
		olderThan: olderThan,
		log:       log.With().Str("component", "outbox_cleaner").Logger(),
	}
}

// Cleanup archives and removes DONE/DEAD outbox events older than the
// configured retention window. Returns the number of events removed.
func (c *OutboxCleaner) Cleanup(ctx context.Context) (int, error) {
	threshold := time.Now().Add(-c.olderThan)

	events, err := c.fetchTerminalEvents(ctx, threshold)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	if c.uploader != nil && c.bucket != "" {
		if err := c.archiveBatch(ctx, events); err != nil {
			return 0, fmt.Errorf("workers: failed to archive outbox batch, leaving events in place: %w", err)
		}
	} else {
		c.log.Warn().Msg("no archival bucket configured, deleting terminal outbox events without archiving")
	}

	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := c.deleteEvents(ctx, ids); err != nil {
		return 0, err
	}

	c.log.Info().Int("count", len(events)).Msg("outbox cleanup completed")
	return len(events), nil
}

func (c *OutboxCleaner) fetchTerminalEvents(ctx context.Context, threshold time.Time) ([]OutboxEvent, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, event_type, payload, status, created_at, attempts
		FROM outbox_events WHERE status IN (?, ?) AND created_at < ?`,
		OutboxDone, OutboxDead, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.Status, &e.CreatedAt, &e.Attempts); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (c *OutboxCleaner) archiveBatch(ctx context.Context, events []OutboxEvent) error {
	archived := make([]archivedOutboxEvent, len(events))
	for i, e := range events {
		archived[i] = archivedOutboxEvent{
			ID:        e.ID,
			EventType: e.EventType,
			Payload:   []byte(e.Payload),
			Status:    string(e.Status),
			CreatedAt: e.CreatedAt,
			Attempts:  e.Attempts,
		}
	}

	body, err := msgpack.Marshal(archived)
	if err != nil {
		return fmt.Errorf("failed to msgpack-encode outbox batch: %w", err)
	}

	key := fmt.Sprintf("outbox-archive/%s.msgpack", time.Now().UTC().Format("2006-01-02-150405"))
	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to upload outbox archive to s3: %w", err)
	}
	return nil
}

func (c *OutboxCleaner) deleteEvents(ctx context.Context, ids []int64) error {
	return database.WithTransaction(c.db.Conn(), func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM outbox_events WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
}
