package datastore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/repsync/internal/engine"
	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/notify"
	"github.com/roach88/repsync/internal/remote"
)

// SaveWorkout creates or replaces a workout. An empty id gets a new one.
func (s *Store) SaveWorkout(ctx context.Context, w model.Workout) (*engine.Pending, error) {
	if model.IsOfficial(w) {
		return nil, s.rejectReadOnly(model.TableWorkouts, w.ID)
	}
	now := s.now().UTC()
	if w.ID == "" {
		w.ID = model.NewID()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	if w.StartedAt.IsZero() {
		w.StartedAt = now
	}
	w.UpdatedAt = now
	return upsert(ctx, s, s.workouts, model.TableWorkouts, w, func(w model.Workout, userID string) model.Workout {
		w.UserID = userID
		return asPersonalWorkout(w)
	})
}

// DeleteWorkout removes a workout.
func (s *Store) DeleteWorkout(ctx context.Context, id string) (*engine.Pending, error) {
	return remove(ctx, s, s.workouts, model.TableWorkouts, id)
}

// SaveExercise creates or replaces a personal exercise definition.
// Curated definitions are rejected.
func (s *Store) SaveExercise(ctx context.Context, e model.ExerciseDef) (*engine.Pending, error) {
	if model.IsOfficial(e) || s.exerciseCatalog.IsOfficial(e.ID) {
		return nil, s.rejectReadOnly(model.TableExerciseDefinitions, e.ID)
	}
	if e.ID == "" {
		e.ID = model.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	return upsert(ctx, s, s.exercises, model.TableExerciseDefinitions, e, func(e model.ExerciseDef, userID string) model.ExerciseDef {
		e.UserID = userID
		return asPersonalExercise(e)
	})
}

// DeleteExercise removes a personal exercise definition.
// Curated definitions are rejected.
func (s *Store) DeleteExercise(ctx context.Context, id string) (*engine.Pending, error) {
	if s.exerciseCatalog.IsOfficial(id) {
		return nil, s.rejectReadOnly(model.TableExerciseDefinitions, id)
	}
	return remove(ctx, s, s.exercises, model.TableExerciseDefinitions, id)
}

// SaveTemplate creates or replaces a personal workout template.
// Curated templates are rejected.
func (s *Store) SaveTemplate(ctx context.Context, t model.WorkoutTemplate) (*engine.Pending, error) {
	if model.IsOfficial(t) || s.templateCatalog.IsOfficial(t.ID) {
		return nil, s.rejectReadOnly(model.TableWorkoutTemplates, t.ID)
	}
	if t.ID == "" {
		t.ID = model.NewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	return upsert(ctx, s, s.templates, model.TableWorkoutTemplates, t, func(t model.WorkoutTemplate, userID string) model.WorkoutTemplate {
		t.UserID = userID
		return asPersonalTemplate(t)
	})
}

// DeleteTemplate removes a personal workout template.
// Curated templates are rejected.
func (s *Store) DeleteTemplate(ctx context.Context, id string) (*engine.Pending, error) {
	if s.templateCatalog.IsOfficial(id) {
		return nil, s.rejectReadOnly(model.TableWorkoutTemplates, id)
	}
	return remove(ctx, s, s.templates, model.TableWorkoutTemplates, id)
}

func (s *Store) rejectReadOnly(table model.Table, id string) error {
	s.sink.PushToast(notify.Toast{Kind: notify.KindWarning, Message: notify.MsgReadOnly})
	return engine.NewReadOnlyError(table, id)
}

// current returns the session user, client and generation, or
// ErrNotLoggedIn.
func (s *Store) current() (string, remote.Client, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.Authenticated() {
		return "", nil, 0, ErrNotLoggedIn
	}
	return s.session.UserID, s.client, s.gen.Load(), nil
}

func upsert[T model.Entity](
	ctx context.Context,
	s *Store,
	coll *collection[T],
	table model.Table,
	item T,
	own func(T, string) T,
) (*engine.Pending, error) {
	userID, client, gen, err := s.current()
	if err != nil {
		return nil, err
	}
	item = own(item, userID)
	id := item.EntityID()

	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", table, id, err)
	}

	var snap snapshot[T]
	m := s.mutation(userID, client, table, model.ActionUpsert, id, payload)
	m.OptimisticUpdate = s.bound(gen, m.Name, func() { snap = coll.put(item) })
	m.Rollback = s.bound(gen, m.Name, func() { coll.restore(id, snap) })
	return s.dispatch(ctx, m), nil
}

func remove[T model.Entity](
	ctx context.Context,
	s *Store,
	coll *collection[T],
	table model.Table,
	id string,
) (*engine.Pending, error) {
	if id == "" {
		return nil, fmt.Errorf("delete %s: id is required", table)
	}
	userID, client, gen, err := s.current()
	if err != nil {
		return nil, err
	}

	var snap snapshot[T]
	m := s.mutation(userID, client, table, model.ActionDelete, id, model.DeletePayload(id))
	m.OptimisticUpdate = s.bound(gen, m.Name, func() { snap = coll.remove(id) })
	m.Rollback = s.bound(gen, m.Name, func() { coll.restore(id, snap) })
	return s.dispatch(ctx, m), nil
}

// mutation fills in the remote, queue and notice callbacks shared by
// every action.
func (s *Store) mutation(userID string, client remote.Client, table model.Table, action model.Action, id string, payload json.RawMessage) engine.Mutation {
	return engine.Mutation{
		Name: fmt.Sprintf("%s %s/%s", action, table, id),
		RemoteOperation: func(ctx context.Context) error {
			if action == model.ActionDelete {
				return client.Delete(ctx, table, id)
			}
			return client.Upsert(ctx, table, id, payload)
		},
		EnqueueOfflineOperation: func(ctx context.Context) error {
			_, err := s.queue.Enqueue(ctx, model.PendingOperation{
				UserID:  userID,
				Table:   table,
				Action:  action,
				Payload: payload,
			})
			return err
		},
		IsOffline: s.monitor.IsOffline,
		OnOfflineQueued: func() {
			s.sink.PushToast(notify.Toast{Kind: notify.KindInfo, Message: notify.MsgOfflineQueued})
		},
		OnRemoteError: func(err error) {
			s.sink.PushToast(notify.Toast{Kind: notify.KindError, Message: err.Error()})
		},
		OnQueueError: func(err error) {
			s.sink.PushToast(notify.Toast{Kind: notify.KindError, Message: "Could not save change: " + err.Error()})
		},
	}
}
