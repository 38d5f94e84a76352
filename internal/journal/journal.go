// Package journal keeps a SQLite log of completed commands for inspection.
// It is write-behind: the main context hands records over without waiting
// on disk, and nothing in the log is ever replayed.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/scenebridge/internal/storage"
)

// Status values stored in command_log.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusDiscarded = "discarded"
)

var ErrNotFound = errors.New("journal record not found")

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one completed command.
type Record struct {
	CommandID   string        `json:"commandId"`
	Name        string        `json:"name"`
	Status      string        `json:"status"`
	ErrorKind   string        `json:"errorKind,omitempty"`
	Error       string        `json:"error,omitempty"`
	Generation  uint64        `json:"generation"`
	EnqueuedAt  time.Time     `json:"enqueuedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Duration    time.Duration `json:"durationMs"`
}

// Journal owns the database and a background writer.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger

	items chan item
	wg    sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	dropped int
}

// item is either a record to write or a flush marker.
type item struct {
	rec   Record
	flush chan struct{}
}

// Open opens the database at path and starts the writer. buffer bounds the
// number of records waiting to be written.
func Open(ctx context.Context, path string, buffer int, logger *slog.Logger) (*Journal, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if buffer <= 0 {
		buffer = 1024
	}
	j := &Journal{
		db:     db,
		logger: logger.With("component", "journal"),
		items:  make(chan item, buffer),
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j, nil
}

// Record queues r for writing and never blocks. When the buffer is full the
// record is dropped and counted.
func (j *Journal) Record(r Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.items <- item{rec: r}:
	default:
		j.dropped++
		j.logger.Warn("Journal buffer full, dropping record", "command_id", r.CommandID, "dropped", j.dropped)
	}
}

// Dropped is the number of records lost to a full buffer.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for it := range j.items {
		if it.flush != nil {
			close(it.flush)
			continue
		}
		if err := j.insert(context.Background(), it.rec); err != nil {
			j.logger.Error("Failed to write journal record", "command_id", it.rec.CommandID, "error", err)
		}
	}
}

func (j *Journal) insert(ctx context.Context, r Record) error {
	_, err := j.db.ExecContext(ctx, `
INSERT INTO command_log(id, name, status, error_kind, error, generation, enqueued_at, completed_at, duration_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status,
  error_kind = excluded.error_kind,
  error = excluded.error,
  completed_at = excluded.completed_at,
  duration_ms = excluded.duration_ms;
`,
		r.CommandID, r.Name, r.Status, nullString(r.ErrorKind), nullString(r.Error), int64(r.Generation),
		r.EnqueuedAt.UTC().Format(timeLayout), r.CompletedAt.UTC().Format(timeLayout),
		r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert command_log: %w", err)
	}
	return nil
}

// Flush waits until every record queued before the call is written.
func (j *Journal) Flush(ctx context.Context) error {
	done := make(chan struct{})
	for {
		j.mu.Lock()
		if j.closed {
			j.mu.Unlock()
			return nil
		}
		select {
		case j.items <- item{flush: done}:
			j.mu.Unlock()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			j.mu.Unlock()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Recent returns up to limit records, newest first. name filters when set.
func (j *Journal) Recent(ctx context.Context, name string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, name, status, error_kind, error, generation, enqueued_at, completed_at, duration_ms FROM command_log`
	args := []any{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY completed_at DESC, rowid DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query command_log: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command_log: %w", err)
	}
	return out, nil
}

// Get returns the record for one command id.
func (j *Journal) Get(ctx context.Context, id string) (*Record, error) {
	row := j.db.QueryRowContext(ctx, `SELECT id, name, status, error_kind, error, generation, enqueued_at, completed_at, duration_ms FROM command_log WHERE id = ?;`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Prune deletes records completed before now-retention.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention).Format(timeLayout)
	res, err := j.db.ExecContext(ctx, `DELETE FROM command_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune command_log: %w", err)
	}
	return res.RowsAffected()
}

// Close stops accepting records, drains the buffer and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.items)
	j.mu.Unlock()

	j.wg.Wait()
	return j.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		r                     Record
		kind, msg             sql.NullString
		gen, durMs            int64
		enqueued, completedAt string
	)
	if err := s.Scan(&r.CommandID, &r.Name, &r.Status, &kind, &msg, &gen, &enqueued, &completedAt, &durMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan command_log: %w", err)
	}
	r.ErrorKind = kind.String
	r.Error = msg.String
	r.Generation = uint64(gen)
	r.Duration = time.Duration(durMs) * time.Millisecond
	r.EnqueuedAt, _ = time.Parse(timeLayout, enqueued)
	r.CompletedAt, _ = time.Parse(timeLayout, completedAt)
	return r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
