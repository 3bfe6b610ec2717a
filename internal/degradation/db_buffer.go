package degradation

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentience-labs/resilience-core/internal/database"
)

// BufferedWrite is a single write queued for persistence while the primary
// database is unavailable. IdempotentKey deduplicates retried writes (the
// same order event replayed twice must not double-insert).
type BufferedWrite struct {
	IdempotentKey string          `json:"idempotent_key"`
	Table         string          `json:"table"`
	Payload       json.RawMessage `json:"payload"`
	QueuedAtWall  time.Time       `json:"queued_at_wall"`
	QueuedAtMono  time.Time       `json:"-"`
	sizeBytes     int64
}

// FlushFunc persists one BufferedWrite inside an existing transaction. The
// caller (DBBuffer.Flush) handles commit/rollback.
type FlushFunc func(tx *sql.Tx, write BufferedWrite) error

// DBBuffer is the in-memory + WAL overflow buffer used while the primary
// database is unreachable. Admission is strictly greater-than the byte cap:
// a write that lands exactly on the cap is still admitted, only a write that
// would push the buffer past it is rejected.
type DBBuffer struct {
	maxEntries int
	maxBytes   int64
	walPath    string
	log        zerolog.Logger

	mu         sync.Mutex
	entries    []BufferedWrite
	seenKeys   map[string]bool
	totalBytes int64
	walFile    *os.File
}

// NewDBBuffer constructs a buffer backed by a JSONL write-ahead-log file at
// walPath. The WAL file is opened append-only, and any valid entries already
// in it are loaded into memory via Restore; this reads only the local file and
// never touches the database.
func NewDBBuffer(config DegradationConfig, walPath string, log zerolog.Logger) (*DBBuffer, error) {
	f, err := os.OpenFile(walPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("degradation: failed to open db buffer wal: %w", err)
	}
	b := &DBBuffer{
		maxEntries: config.DBBufferMaxEntries,
		maxBytes:   config.DBBufferMaxBytes,
		walPath:    walPath,
		log:        log.With().Str("component", "db_buffer").Logger(),
		seenKeys:   make(map[string]bool),
		walFile:    f,
	}
	if err := b.Restore(); err != nil {
		f.Close()
		return nil, fmt.Errorf("degradation: failed to restore db buffer wal: %w", err)
	}
	return b, nil
}

// Admit queues a write if there is room, deduplicating on IdempotentKey.
// Returns false (not an error) when the buffer is at capacity — callers
// should treat a full buffer as a DB_BUFFER_OVERFLOW condition and emit the
// corresponding SystemEvent themselves.
func (b *DBBuffer) Admit(write BufferedWrite) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seenKeys[write.IdempotentKey] {
		return true, nil
	}

	size := int64(len(write.Payload))
	write.sizeBytes = size

	// Strict admission bound: only a write that would push total bytes
	// *past* the cap is rejected. A write landing exactly on the cap is
	// still admitted.
	if len(b.entries) >= b.maxEntries {
		return false, nil
	}
	if b.totalBytes+size > b.maxBytes {
		return false, nil
	}

	if err := b.appendWALLocked(write); err != nil {
		return false, fmt.Errorf("degradation: failed to append wal entry: %w", err)
	}

	b.entries = append(b.entries, write)
	b.seenKeys[write.IdempotentKey] = true
	b.totalBytes += size
	return true, nil
}

func (b *DBBuffer) appendWALLocked(write BufferedWrite) error {
	line, err := json.Marshal(write)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := b.walFile.Write(line); err != nil {
		return err
	}
	return b.walFile.Sync()
}

// PendingCount returns the number of buffered entries awaiting flush.
func (b *DBBuffer) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// PendingBytes returns the total buffered payload size.
func (b *DBBuffer) PendingBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalBytes
}

// Restore replays the WAL file from disk into memory, e.g. on process
// restart after a crash with entries still unflushed. Corrupt trailing
// lines (a partial write from a crash mid-fsync) are logged and skipped
// rather than aborting the whole restore.
func (b *DBBuffer) Restore() error {
	f, err := os.Open(b.walPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("degradation: failed to open wal for restore: %w", err)
	}
	defer f.Close()

	b.mu.Lock()
	defer b.mu.Unlock()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	restored := 0
	for scanner.Scan() {
		var write BufferedWrite
		if err := json.Unmarshal(scanner.Bytes(), &write); err != nil {
			b.log.Warn().Err(err).Msg("skipping corrupt wal line during restore")
			continue
		}
		if b.seenKeys[write.IdempotentKey] {
			continue
		}
		write.sizeBytes = int64(len(write.Payload))
		b.entries = append(b.entries, write)
		b.seenKeys[write.IdempotentKey] = true
		b.totalBytes += write.sizeBytes
		restored++
	}
	b.log.Info().Int("restored", restored).Msg("db buffer restored from wal")
	return scanner.Err()
}

// Flush attempts to persist every buffered entry to the primary database in
// a single transaction, grouped by table name (admission order is kept within
// a table), handing each entry to flushFn. On success the buffer and its WAL file are cleared; on failure nothing is
// cleared and the caller should retry later.
func (b *DBBuffer) Flush(ctx context.Context, db *database.DB, flushFn FlushFunc) error {
	b.mu.Lock()
	entries := make([]BufferedWrite, len(b.entries))
	copy(entries, b.entries)
	b.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Table < entries[j].Table })

	err := database.WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		for _, entry := range entries {
			if err := flushFn(tx, entry); err != nil {
				return fmt.Errorf("failed to flush buffered write for table %s: %w", entry.Table, err)
			}
		}
		return nil
	})
	if err != nil {
		b.log.Error().Err(err).Int("entries", len(entries)).Msg("db buffer flush failed, entries retained")
		return err
	}

	b.mu.Lock()
	b.entries = nil
	b.seenKeys = make(map[string]bool)
	b.totalBytes = 0
	b.mu.Unlock()

	if err := b.truncateWAL(); err != nil {
		b.log.Warn().Err(err).Msg("failed to truncate wal after flush")
	}

	b.log.Info().Int("entries", len(entries)).Msg("db buffer flushed")
	return nil
}

func (b *DBBuffer) truncateWAL() error {
	if err := b.walFile.Close(); err != nil {
		return err
	}
	f, err := os.OpenFile(b.walPath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	b.walFile = f
	return nil
}

// Close releases the underlying WAL file handle.
func (b *DBBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.walFile.Close()
}
