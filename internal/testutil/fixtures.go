package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/remote"
)

// Publisher seeds curated content. Both remote.Memory and remote.Redis
// implement it.
type Publisher interface {
	PublishOfficial(ctx context.Context, table model.Table, id string, row json.RawMessage) error
}

// PublishExercise publishes a curated exercise with the given id and name.
func PublishExercise(t testing.TB, p Publisher, id, name string) {
	t.Helper()
	publish(t, p, model.TableExerciseDefinitions, id, model.ExerciseDef{ID: id, Name: name})
}

// PublishTemplate publishes a curated template created at created.
func PublishTemplate(t testing.TB, p Publisher, id, name string, created time.Time) {
	t.Helper()
	publish(t, p, model.TableWorkoutTemplates, id, model.WorkoutTemplate{ID: id, Name: name, CreatedAt: created})
}

// SeedPersonal writes rec into userID's scope of backend as if it had been
// synced from another device.
func SeedPersonal(t testing.TB, backend remote.Backend, userID string, table model.Table, id string, rec any) {
	t.Helper()
	row, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal %s/%s: %v", table, id, err)
	}
	client := backend.Connect(remote.Session{UserID: userID, AccessToken: "token"})
	if err := client.Upsert(context.Background(), table, id, row); err != nil {
		t.Fatalf("seed %s/%s: %v", table, id, err)
	}
}

func publish(t testing.TB, p Publisher, table model.Table, id string, rec any) {
	t.Helper()
	row, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal %s/%s: %v", table, id, err)
	}
	if err := p.PublishOfficial(context.Background(), table, id, row); err != nil {
		t.Fatalf("publish %s/%s: %v", table, id, err)
	}
}

// ErrUnreachable is what Unreachable clients return from every call.
var ErrUnreachable = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

// Unreachable wraps a backend so that every client it hands out behaves
// like a remote store that cannot be reached: Ping and writes fail with
// ErrUnreachable.
type Unreachable struct {
	remote.Backend
}

// Connect returns an unreachable client for s.
func (u Unreachable) Connect(s remote.Session) remote.Client {
	return unreachableClient{Client: u.Backend.Connect(s)}
}

type unreachableClient struct {
	remote.Client
}

func (unreachableClient) Ping(context.Context) error { return ErrUnreachable }

func (unreachableClient) Upsert(context.Context, model.Table, string, json.RawMessage) error {
	return ErrUnreachable
}

func (unreachableClient) Delete(context.Context, model.Table, string) error {
	return ErrUnreachable
}
