package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/repsync/internal/config"
	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/remote"
	"github.com/roach88/repsync/internal/store"
	"github.com/roach88/repsync/internal/testutil"
)

// cliEnv is a temp database plus an in-process remote store.
type cliEnv struct {
	dir     string
	dbPath  string
	remote  *remote.Memory
	backend remote.Backend
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	for _, key := range []string{config.EnvDatabase, config.EnvUser, config.EnvRemote, config.EnvRedisURL} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	m := remote.NewMemory()
	return &cliEnv{
		dir:     dir,
		dbPath:  filepath.Join(dir, "repsync.db"),
		remote:  m,
		backend: m,
	}
}

// run executes the root command with args and returns stdout.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runContext(t, context.Background(), args...)
}

func (e *cliEnv) runContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{
		Backend: e.backend,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	cmd := newRootCommand(opts)

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{
		"--config", filepath.Join(e.dir, "config.toml"),
		"--db", e.dbPath,
	}, args...))

	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// openStore opens the env's queue database directly; it is closed at cleanup.
func (e *cliEnv) openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(e.dbPath, store.WithNow(testutil.NewClock().Now))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// enqueue writes ops for userID and closes the database again.
func (e *cliEnv) enqueue(t *testing.T, ops ...model.PendingOperation) []model.QueuedOperation {
	t.Helper()
	st, err := store.Open(e.dbPath, store.WithNow(testutil.NewClock().Now))
	require.NoError(t, err)
	defer st.Close()

	queued := make([]model.QueuedOperation, 0, len(ops))
	for _, op := range ops {
		q, err := st.Enqueue(context.Background(), op)
		require.NoError(t, err)
		queued = append(queued, q)
	}
	return queued
}

func upsertWorkout(userID, id, name string) model.PendingOperation {
	return model.PendingOperation{
		UserID:  userID,
		Table:   model.TableWorkouts,
		Action:  model.ActionUpsert,
		Payload: []byte(`{"id":"` + id + `","name":"` + name + `","source":"personal"}`),
	}
}

func deleteWorkout(userID, id string) model.PendingOperation {
	return model.PendingOperation{
		UserID:  userID,
		Table:   model.TableWorkouts,
		Action:  model.ActionDelete,
		Payload: model.DeletePayload(id),
	}
}
