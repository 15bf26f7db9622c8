package remote

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repsync/internal/model"
)

func TestMemory_UpsertDeletePersonal(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := m.Connect(Session{UserID: "user-a"})

	row := json.RawMessage(`{"id":"w1","name":"Push"}`)
	require.NoError(t, c.Upsert(ctx, model.TableWorkouts, "w1", row))

	got, ok := m.PersonalRow(model.TableWorkouts, "user-a", "w1")
	require.True(t, ok)
	assert.JSONEq(t, string(row), string(got))

	rows, err := c.ListPersonal(ctx, model.TableWorkouts)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	// other users are isolated
	other, err := m.Connect(Session{UserID: "user-b"}).ListPersonal(ctx, model.TableWorkouts)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, c.Delete(ctx, model.TableWorkouts, "w1"))
	require.NoError(t, c.Delete(ctx, model.TableWorkouts, "w1"), "delete is idempotent")
	_, ok = m.PersonalRow(model.TableWorkouts, "user-a", "w1")
	assert.False(t, ok)
}

func TestMemory_AnonymousIsRejected(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := m.Connect(Anonymous)

	err := c.Upsert(ctx, model.TableWorkouts, "w1", json.RawMessage(`{"id":"w1"}`))
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.True(t, IsRejected(err))

	_, err = c.ListPersonal(ctx, model.TableWorkouts)
	assert.True(t, IsRejected(err))

	// curated content is readable without a session
	_, err = c.ListOfficial(ctx, model.TableExerciseDefinitions)
	assert.NoError(t, err)
}

func TestMemory_RejectsMismatchedRow(t *testing.T) {
	c := NewMemory().Connect(Session{UserID: "user-a"})

	err := c.Upsert(context.Background(), model.TableWorkouts, "w1", json.RawMessage(`{"id":"w2"}`))
	assert.True(t, IsRejected(err))

	err = c.Upsert(context.Background(), model.Table("nope"), "w1", json.RawMessage(`{"id":"w1"}`))
	assert.True(t, IsRejected(err))
}

func TestMemory_FaultHook(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := m.Connect(Session{UserID: "user-a"})

	boom := errors.New("network down")
	m.FailWith(func(call Call) error {
		if call.ID == "w2" {
			return boom
		}
		return nil
	})

	require.NoError(t, c.Upsert(ctx, model.TableWorkouts, "w1", json.RawMessage(`{"id":"w1"}`)))
	assert.ErrorIs(t, c.Upsert(ctx, model.TableWorkouts, "w2", json.RawMessage(`{"id":"w2"}`)), boom)

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, Call{Method: "upsert", Table: model.TableWorkouts, ID: "w2", UserID: "user-a"}, calls[1])

	m.FailWith(nil)
	assert.NoError(t, c.Upsert(ctx, model.TableWorkouts, "w2", json.RawMessage(`{"id":"w2"}`)))
}

func TestMemory_SubscribeOfficial(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := m.Connect(Anonymous)

	var changes []Change
	cancel, err := c.Subscribe(ctx, model.TableExerciseDefinitions, func(ch Change) {
		changes = append(changes, ch)
	})
	require.NoError(t, err)

	require.NoError(t, m.PublishOfficial(ctx, model.TableExerciseDefinitions, "e1", json.RawMessage(`{"id":"e1","name":"Squat"}`)))
	require.NoError(t, m.PublishOfficial(ctx, model.TableExerciseDefinitions, "e1", json.RawMessage(`{"id":"e1","name":"Back Squat"}`)))
	require.NoError(t, m.RemoveOfficial(ctx, model.TableExerciseDefinitions, "e1"))
	// other tables are not delivered
	require.NoError(t, m.PublishOfficial(ctx, model.TableWorkoutTemplates, "t1", json.RawMessage(`{"id":"t1"}`)))

	assert.Equal(t, []Change{
		{Table: model.TableExerciseDefinitions, Kind: ChangeInsert, ID: "e1"},
		{Table: model.TableExerciseDefinitions, Kind: ChangeUpdate, ID: "e1"},
		{Table: model.TableExerciseDefinitions, Kind: ChangeDelete, ID: "e1"},
	}, changes)

	cancel()
	cancel()
	require.NoError(t, m.PublishOfficial(ctx, model.TableExerciseDefinitions, "e2", json.RawMessage(`{"id":"e2"}`)))
	assert.Len(t, changes, 3)
}

func TestMemory_ListOfficialSortedByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"e3", "e1", "e2"} {
		require.NoError(t, m.PublishOfficial(ctx, model.TableExerciseDefinitions, id, json.RawMessage(`{"id":"`+id+`"}`)))
	}

	rows, err := m.Connect(Anonymous).ListOfficial(ctx, model.TableExerciseDefinitions)
	require.NoError(t, err)
	var ids []string
	for _, row := range rows {
		id, err := model.PayloadID(row)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"e1", "e2", "e3"}, ids)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewMemory().Connect(Session{UserID: "user-a"})
	assert.ErrorIs(t, c.Upsert(ctx, model.TableWorkouts, "w1", json.RawMessage(`{"id":"w1"}`)), context.Canceled)
	assert.ErrorIs(t, c.Ping(ctx), context.Canceled)
}

func TestRejectedError_Message(t *testing.T) {
	err := &RejectedError{Table: model.TableWorkouts, ID: "w1", Reason: "row too large"}
	assert.Equal(t, "remote rejected workouts/w1: row too large", err.Error())
	assert.Equal(t, "remote rejected: not authenticated", ErrUnauthenticated.Error())
	assert.False(t, IsRejected(errors.New("timeout")))
}
