package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/testutil"
)

// createTestStore opens a fresh database file under t.TempDir().
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// frozenNow returns a clock that always reports the same instant.
func frozenNow() func() time.Time {
	return testutil.NewClock().Now
}

// upsertOp builds a pending upsert of a row with the given id.
func upsertOp(userID string, table model.Table, id string) model.PendingOperation {
	return model.PendingOperation{
		UserID:  userID,
		Table:   table,
		Action:  model.ActionUpsert,
		Payload: []byte(`{"id":"` + id + `","name":"row ` + id + `"}`),
	}
}

// deleteOp builds a pending delete of the given id.
func deleteOp(userID string, table model.Table, id string) model.PendingOperation {
	return model.PendingOperation{
		UserID:  userID,
		Table:   table,
		Action:  model.ActionDelete,
		Payload: model.DeletePayload(id),
	}
}

// recordIDs extracts payload ids in order.
func recordIDs(t *testing.T, ops []model.QueuedOperation) []string {
	t.Helper()
	ids := make([]string, 0, len(ops))
	for _, op := range ops {
		id, err := op.RecordID()
		if err != nil {
			t.Fatalf("RecordID() failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}
