package datastore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/repsync/internal/connectivity"
	"github.com/roach88/repsync/internal/engine"
	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/notify"
	"github.com/roach88/repsync/internal/remote"
	"github.com/roach88/repsync/internal/store"
	"github.com/roach88/repsync/internal/testutil"
)

var testNow = testutil.DefaultStart

type fixture struct {
	db      *store.Store
	remote  *remote.Memory
	monitor *connectivity.Monitor
	toasts  *notify.Recorder
	ds      *Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "repsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newFixtureWithDB(t, db, opts...)
}

// newFixtureWithDB builds a store over db; opts are applied after the
// test defaults.
func newFixtureWithDB(t *testing.T, db *store.Store, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		db:      db,
		remote:  remote.NewMemory(),
		monitor: connectivity.NewMonitor(true),
		toasts:  &notify.Recorder{},
	}
	defaults := []Option{
		WithSink(f.toasts),
		WithNow(func() time.Time { return testNow }),
		WithRetryPolicy(engine.NoRetry()),
	}
	f.ds = New(f.remote, db, db, f.monitor, append(defaults, opts...)...)
	t.Cleanup(f.ds.Logout)
	return f
}

func (f *fixture) login(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, f.ds.Login(context.Background(), remote.Session{UserID: userID, AccessToken: "token"}))
}

// failRemote makes every personal write fail.
func (f *fixture) failRemote(err error) {
	f.remote.FailWith(func(remote.Call) error { return err })
}

func (f *fixture) queued(t *testing.T, userID string) []model.QueuedOperation {
	t.Helper()
	ops, err := f.db.List(context.Background(), userID)
	require.NoError(t, err)
	return ops
}

func publishExercise(t *testing.T, m *remote.Memory, id, name string) {
	t.Helper()
	testutil.PublishExercise(t, m, id, name)
}

func publishTemplate(t *testing.T, m *remote.Memory, id, name string, created time.Time) {
	t.Helper()
	testutil.PublishTemplate(t, m, id, name, created)
}

func wait(t *testing.T, p *engine.Pending) engine.Result {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("mutation did not settle")
	}
	return p.Wait()
}

// heldRetry is a two-attempt policy whose wait between attempts blocks
// until release is closed. entered is closed when the wait begins.
type heldRetry struct {
	entered chan struct{}
	release chan struct{}
}

func newHeldRetry() *heldRetry {
	return &heldRetry{entered: make(chan struct{}), release: make(chan struct{})}
}

func (h *heldRetry) policy() engine.RetryPolicy {
	var once sync.Once
	return engine.RetryPolicy{
		MaxAttempts: 2,
		Sleep: func(ctx context.Context, d time.Duration) error {
			once.Do(func() { close(h.entered) })
			<-h.release
			return nil
		},
	}
}

func (h *heldRetry) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-h.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("remote retry never started")
	}
}
