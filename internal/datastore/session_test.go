package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repsync/internal/engine"
	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/notify"
	"github.com/roach88/repsync/internal/remote"
	"github.com/roach88/repsync/internal/store"
	"github.com/roach88/repsync/internal/testutil"
)

func TestLogin_RejectsAnonymous(t *testing.T) {
	f := newFixture(t)
	err := f.ds.Login(context.Background(), remote.Anonymous)
	assert.ErrorIs(t, err, remote.ErrUnauthenticated)
}

func TestLogin_DrainsQueueFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.db.Enqueue(ctx, model.PendingOperation{
		UserID:  "user-a",
		Table:   model.TableWorkouts,
		Action:  model.ActionUpsert,
		Payload: json.RawMessage(`{"id":"w1","name":"Queued earlier"}`),
	})
	require.NoError(t, err)

	f.login(t, "user-a")

	assert.Empty(t, f.queued(t, "user-a"))
	_, ok := f.remote.PersonalRow(model.TableWorkouts, "user-a", "w1")
	assert.True(t, ok)

	w, ok := f.ds.Workout("w1")
	require.True(t, ok, "fetched back after drain")
	assert.Equal(t, "Queued earlier", w.Name)
	assert.Equal(t, []notify.Toast{{Kind: notify.KindSuccess, Message: notify.MsgSynced}}, f.toasts.Toasts())
}

func TestLogin_OfflineKeepsQueuedEditsVisible(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.remote.Connect(remote.Session{UserID: "user-a"})
	require.NoError(t, client.Upsert(ctx, model.TableWorkouts, "w1", json.RawMessage(`{"id":"w1","name":"Remote"}`)))
	require.NoError(t, client.Upsert(ctx, model.TableWorkouts, "w2", json.RawMessage(`{"id":"w2","name":"Doomed"}`)))

	_, err := f.db.Enqueue(ctx, model.PendingOperation{
		UserID: "user-a", Table: model.TableWorkouts, Action: model.ActionUpsert,
		Payload: json.RawMessage(`{"id":"w1","name":"Edited offline"}`),
	})
	require.NoError(t, err)
	_, err = f.db.Enqueue(ctx, model.PendingOperation{
		UserID: "user-a", Table: model.TableWorkouts, Action: model.ActionDelete,
		Payload: model.DeletePayload("w2"),
	})
	require.NoError(t, err)

	// The drain fails, but reads still work.
	f.failRemote(errors.New("gateway timeout"))
	f.login(t, "user-a")

	assert.Len(t, f.queued(t, "user-a"), 2)
	workouts := f.ds.Workouts()
	require.Len(t, workouts, 1)
	assert.Equal(t, "Edited offline", workouts[0].Name)
}

func TestLogin_LoadsCuratedAndPersonalContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	publishExercise(t, f.remote, "e1", "Squat")
	publishTemplate(t, f.remote, "t-official", "Starter", testNow)

	client := f.remote.Connect(remote.Session{UserID: "user-a"})
	require.NoError(t, client.Upsert(ctx, model.TableExerciseDefinitions, "e1",
		json.RawMessage(`{"id":"e1","name":"Squat (custom)","source":"personal"}`)))

	f.login(t, "user-a")

	exercises := f.ds.Exercises()
	require.Len(t, exercises, 1)
	assert.Equal(t, "Squat (custom)", exercises[0].Name)
	assert.False(t, exercises[0].ReadOnly)

	templates := f.ds.Templates()
	require.Len(t, templates, 1)
	assert.True(t, templates[0].ReadOnly)
	assert.Equal(t, model.SourceOfficial, templates[0].Source)
}

func TestLogin_MergesTemplateCacheWithRemote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.db.SaveTemplates(ctx, "user-a", []model.WorkoutTemplate{
		{ID: "t1", Name: "Push (stale)", Source: model.SourcePersonal},
		{ID: "t2", Name: "Cached only", Source: model.SourcePersonal},
	}))
	client := f.remote.Connect(remote.Session{UserID: "user-a"})
	require.NoError(t, client.Upsert(ctx, model.TableWorkoutTemplates, "t1",
		json.RawMessage(`{"id":"t1","name":"Push"}`)))

	f.login(t, "user-a")

	byID := map[string]string{}
	for _, tpl := range f.ds.PersonalTemplates() {
		byID[tpl.ID] = tpl.Name
	}
	assert.Equal(t, map[string]string{"t1": "Push", "t2": "Cached only"}, byID)

	cached, err := f.db.LoadTemplates(ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, cached, 2, "union written back")
}

func TestLogin_FollowsCuratedChanges(t *testing.T) {
	f := newFixture(t)
	publishExercise(t, f.remote, "e1", "Squat")
	f.login(t, "user-a")

	publishExercise(t, f.remote, "e2", "Bench")
	assert.Equal(t, []string{"e2", "e1"}, exerciseIDs(f.ds.Exercises()))

	require.NoError(t, f.remote.RemoveOfficial(context.Background(), model.TableExerciseDefinitions, "e1"))
	assert.Equal(t, []string{"e2"}, exerciseIDs(f.ds.Exercises()))
	assert.True(t, f.ds.ExerciseCatalog().IsOfficial("e2"))
}

func TestReconnect_TriggersSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, "user-a")

	f.monitor.Set(false)
	f.failRemote(errors.New("offline"))
	p, err := f.ds.SaveWorkout(ctx, model.Workout{ID: "w1", Name: "On the train"})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeQueued, wait(t, p).Outcome)
	require.Len(t, f.queued(t, "user-a"), 1)

	f.failRemote(nil)
	f.monitor.Set(true)
	f.ds.Wait()

	assert.Empty(t, f.queued(t, "user-a"))
	_, ok := f.remote.PersonalRow(model.TableWorkouts, "user-a", "w1")
	assert.True(t, ok)
	assert.Len(t, f.toasts.OfKind(notify.KindSuccess), 1)
}

func TestLogout_ConnectsAnonymousClient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	publishExercise(t, f.remote, "e1", "Squat")
	f.login(t, "user-a")

	p, err := f.ds.SaveWorkout(ctx, model.Workout{ID: "w1"})
	require.NoError(t, err)
	wait(t, p)
	before := f.ds.Client()

	f.ds.Logout()

	assert.Equal(t, remote.Anonymous, f.ds.Session())
	assert.False(t, f.ds.Client().Session().Authenticated())
	assert.True(t, before.Session().Authenticated(), "old handle is not mutated")
	assert.Empty(t, f.ds.Workouts())
	assert.Equal(t, []string{"e1"}, exerciseIDs(f.ds.Exercises()), "curated content stays")

	_, err = f.ds.SaveWorkout(ctx, model.Workout{ID: "w2"})
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	// no follow after logout
	publishExercise(t, f.remote, "e2", "Bench")
	assert.Equal(t, []string{"e1"}, exerciseIDs(f.ds.Exercises()))
}

func TestRefreshCatalog_BackfillsEmptyPersonalStream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, "user-a")
	require.Empty(t, f.ds.PersonalExercises())

	client := f.remote.Connect(remote.Session{UserID: "user-a"})
	require.NoError(t, client.Upsert(ctx, model.TableExerciseDefinitions, "p1",
		json.RawMessage(`{"id":"p1","name":"Curl"}`)))
	publishTemplate(t, f.remote, "t1", "Starter", testNow)

	require.NoError(t, f.ds.RefreshCatalog(ctx))
	assert.Equal(t, []string{"p1"}, exerciseIDs(f.ds.PersonalExercises()))
	assert.Len(t, f.ds.Templates(), 1)
}

func TestQueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "repsync.db")

	db, err := store.Open(path)
	require.NoError(t, err)
	f := newFixtureWithDB(t, db)
	f.login(t, "user-a")
	f.monitor.Set(false)
	f.failRemote(errors.New("offline"))

	p, err := f.ds.SaveWorkout(ctx, model.Workout{ID: "w1", Name: "Before restart"})
	require.NoError(t, err)
	wait(t, p)
	f.ds.Logout()
	require.NoError(t, db.Close())

	reopened, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })
	g := newFixtureWithDB(t, reopened)
	g.login(t, "user-a")

	assert.Empty(t, g.queued(t, "user-a"))
	w, ok := g.ds.Workout("w1")
	require.True(t, ok)
	assert.Equal(t, "Before restart", w.Name)
}

func TestSync_SkipsWhileOffline(t *testing.T) {
	f := newFixture(t)
	f.login(t, "user-a")
	f.monitor.Set(false)

	report := f.ds.Sync(context.Background())
	assert.Equal(t, engine.StopSkippedOffline, report.Stop)
}

func TestLogin_SwitchingUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, "user-a")
	p, err := f.ds.SaveWorkout(ctx, model.Workout{ID: "w-a"})
	require.NoError(t, err)
	wait(t, p)

	f.login(t, "user-b")
	assert.Equal(t, "user-b", f.ds.Session().UserID)
	assert.Empty(t, f.ds.Workouts())
}

func TestLogout_InFlightRollbackStaysWithItsSession(t *testing.T) {
	ctx := context.Background()
	held := newHeldRetry()
	f := newFixture(t, WithRetryPolicy(held.policy()))
	testutil.SeedPersonal(t, f.remote, "user-a", model.TableWorkoutTemplates, "ta",
		model.WorkoutTemplate{ID: "ta", UserID: "user-a", Name: "A's plan"})

	f.login(t, "user-a")
	require.Len(t, f.ds.PersonalTemplates(), 1)

	f.failRemote(errors.New("connection reset"))
	p, err := f.ds.DeleteTemplate(ctx, "ta")
	require.NoError(t, err)
	assert.Empty(t, f.ds.PersonalTemplates())
	held.waitEntered(t)

	// Switch users while the delete is still retrying.
	f.login(t, "user-b")
	close(held.release)

	res := wait(t, p)
	assert.Equal(t, engine.OutcomeRolledBack, res.Outcome)
	f.ds.Wait()

	assert.Equal(t, "user-b", f.ds.Session().UserID)
	assert.Empty(t, f.ds.PersonalTemplates())
	assert.Empty(t, f.ds.Templates())
	cached, err := f.db.LoadTemplates(ctx, "user-b")
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestWait_CoversDispatchedMutations(t *testing.T) {
	ctx := context.Background()
	held := newHeldRetry()
	f := newFixture(t, WithRetryPolicy(held.policy()))
	f.login(t, "user-a")
	f.failRemote(errors.New("connection reset"))

	p, err := f.ds.SaveWorkout(ctx, model.Workout{ID: "w1", Name: "Legs"})
	require.NoError(t, err)
	held.waitEntered(t)

	go close(held.release)
	f.ds.Wait()

	select {
	case <-p.Done():
	default:
		t.Fatal("Wait returned before the mutation settled")
	}
	assert.Equal(t, engine.OutcomeRolledBack, p.Wait().Outcome)
}

func TestLogin_QueuedDeleteBehindRejectedOpStaysApplied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedPersonal(t, f.remote, "user-a", model.TableExerciseDefinitions, "x1",
		model.ExerciseDef{ID: "x1", UserID: "user-a", Name: "Curl"})

	_, err := f.db.Enqueue(ctx, model.PendingOperation{
		UserID: "user-a", Table: model.TableWorkouts, Action: model.ActionUpsert,
		Payload: json.RawMessage(`{"id":"w1","name":"Bad"}`),
	})
	require.NoError(t, err)
	_, err = f.db.Enqueue(ctx, model.PendingOperation{
		UserID: "user-a", Table: model.TableExerciseDefinitions, Action: model.ActionDelete,
		Payload: model.DeletePayload("x1"),
	})
	require.NoError(t, err)

	f.remote.FailWith(func(c remote.Call) error {
		if c.Table == model.TableWorkouts {
			return &remote.RejectedError{Table: c.Table, ID: c.ID, Reason: "invalid workout"}
		}
		return nil
	})
	f.login(t, "user-a")

	require.Len(t, f.queued(t, "user-a"), 2)
	assert.Empty(t, f.ds.PersonalExercises())
	assert.Empty(t, exerciseIDs(f.ds.Exercises()))

	// An explicit refresh backfills the empty stream with the same overlay.
	require.NoError(t, f.ds.RefreshCatalog(ctx))
	assert.Empty(t, f.ds.PersonalExercises())
}
