package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T, buffer int) *Journal {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"), buffer, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func record(id, name, status string, completed time.Time) Record {
	return Record{
		CommandID:   id,
		Name:        name,
		Status:      status,
		Generation:  2,
		EnqueuedAt:  completed.Add(-15 * time.Millisecond),
		CompletedAt: completed,
		Duration:    15 * time.Millisecond,
	}
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t, 16)
	now := time.Now().UTC()

	j.Record(record("a", "actor_spawn", StatusSucceeded, now.Add(-2*time.Second)))
	j.Record(record("b", "placement_validate", StatusSucceeded, now.Add(-time.Second)))
	failed := record("c", "actor_spawn", StatusFailed, now)
	failed.ErrorKind = "handler_failure"
	failed.Error = "asset not found"
	j.Record(failed)
	require.NoError(t, j.Flush(context.Background()))

	recent, err := j.Recent(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].CommandID)
	assert.Equal(t, "handler_failure", recent[0].ErrorKind)
	assert.Equal(t, 15*time.Millisecond, recent[0].Duration)
	assert.Equal(t, uint64(2), recent[0].Generation)
	assert.WithinDuration(t, now, recent[0].CompletedAt, time.Millisecond)

	spawns, err := j.Recent(context.Background(), "actor_spawn", 10)
	require.NoError(t, err)
	assert.Len(t, spawns, 2)

	limited, err := j.Recent(context.Background(), "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGetAndUpsert(t *testing.T) {
	j := openTestJournal(t, 16)
	now := time.Now().UTC()

	j.Record(record("x", "level_save", StatusSucceeded, now))
	discarded := record("x", "level_save", StatusDiscarded, now.Add(time.Second))
	j.Record(discarded)
	require.NoError(t, j.Flush(context.Background()))

	got, err := j.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, StatusDiscarded, got.Status)

	_, err = j.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrune(t *testing.T) {
	j := openTestJournal(t, 16)
	now := time.Now().UTC()

	j.Record(record("old", "help", StatusSucceeded, now.Add(-48*time.Hour)))
	j.Record(record("new", "help", StatusSucceeded, now))
	require.NoError(t, j.Flush(context.Background()))

	n, err := j.Prune(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = j.Prune(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	recent, err := j.Recent(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].CommandID)
}

func TestCloseDrainsAndIgnoresLateRecords(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(context.Background(), path, 16, logger)
	require.NoError(t, err)

	j.Record(record("a", "help", StatusSucceeded, time.Now()))
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	j.Record(record("b", "help", StatusSucceeded, time.Now()))
	require.NoError(t, j.Flush(context.Background()))

	reopened, err := Open(context.Background(), path, 16, logger)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "help", got.Name)
	_, err = reopened.Get(context.Background(), "b")
	assert.ErrorIs(t, err, ErrNotFound)
}
