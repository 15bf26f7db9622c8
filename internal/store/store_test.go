package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repsync/internal/model"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file should exist")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"queued_operations", "template_cache"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	// synchronous=FULL reads back as 2
	assert.NoError(t, s.verifyPragma("synchronous", "2"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_MigrationAddsOrderIndex(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_queued_operations_order'",
	).Scan(&name)
	require.NoError(t, err)
}

func TestOpen_ResumesClockAfterRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path, WithNow(frozenNow()))
	require.NoError(t, err)
	first, err := s1.Enqueue(ctx, upsertOp("user-a", model.TableWorkouts, "1"))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, WithNow(frozenNow()))
	require.NoError(t, err)
	defer s2.Close()

	second, err := s2.Enqueue(ctx, upsertOp("user-a", model.TableWorkouts, "2"))
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)

	ops, err := s2.List(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, recordIDs(t, ops))
}

func TestEnqueue_FailedInsertDoesNotConsumeSeq(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithNow(frozenNow()))

	first, err := s.Enqueue(ctx, upsertOp("user-a", model.TableWorkouts, "1"))
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Enqueue(cancelled, upsertOp("user-a", model.TableWorkouts, "2"))
	require.Error(t, err)

	third, err := s.Enqueue(ctx, upsertOp("user-a", model.TableWorkouts, "3"))
	require.NoError(t, err)
	assert.Equal(t, first.Seq+1, third.Seq)
}

func TestClose_Nil(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}
