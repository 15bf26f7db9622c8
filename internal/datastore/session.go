package datastore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/repsync/internal/engine"
	"github.com/roach88/repsync/internal/merge"
	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/remote"
)

// Login starts a session for sess.
//
// In order: connect a client for the user, drain the user's queue, load
// the cached personal templates, fetch personal and curated content,
// follow curated changes and reconcile again whenever connectivity
// returns. Fetch failures are logged and leave cached state in place.
func (s *Store) Login(ctx context.Context, sess remote.Session) error {
	if !sess.Authenticated() {
		return fmt.Errorf("login: %w", remote.ErrUnauthenticated)
	}
	s.Logout()

	client := s.backend.Connect(sess)
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.session = sess
	s.client = client
	s.stopCtx = cancel
	s.mu.Unlock()
	owner := sess.UserID
	s.cacheUser.Store(&owner)

	log := s.logger.With("user_id", sess.UserID)
	log.Info("session started")

	report := s.reconciler.Drain(ctx, client, sess.UserID)
	log.Debug("initial reconcile", "drained", len(report.Drained), "stop", report.Stop)

	var cached []model.WorkoutTemplate
	if s.cache != nil {
		var err error
		if cached, err = s.cache.LoadTemplates(ctx, sess.UserID); err != nil {
			log.Warn("template cache load failed", "error", err)
		}
	}
	s.templates.replace(cached)

	if err := s.loadPersonal(ctx, client, cached); err != nil {
		log.Warn("personal content fetch failed", "error", err)
	}
	if err := s.refreshCurated(ctx, client); err != nil {
		log.Warn("catalog fetch failed", "error", err)
	}

	var stops []func()
	cancelExercises, err := merge.Follow(sessionCtx, client, model.TableExerciseDefinitions,
		officialFetcher(client, model.TableExerciseDefinitions, asOfficialExercise), s.exerciseCatalog, s.logger)
	if err != nil {
		log.Warn("exercise catalog follow failed", "error", err)
	} else {
		stops = append(stops, cancelExercises)
	}
	cancelTemplates, err := merge.Follow(sessionCtx, client, model.TableWorkoutTemplates,
		officialFetcher(client, model.TableWorkoutTemplates, asOfficialTemplate), s.templateCatalog, s.logger)
	if err != nil {
		log.Warn("template catalog follow failed", "error", err)
	} else {
		stops = append(stops, cancelTemplates)
	}

	stops = append(stops, s.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		s.mu.Lock()
		if sessionCtx.Err() != nil {
			s.mu.Unlock()
			return
		}
		s.bg.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.bg.Done()
			s.Sync(sessionCtx)
		}()
	}))

	s.mu.Lock()
	s.stop = stops
	s.mu.Unlock()
	return nil
}

// Logout ends the session. The store keeps curated content, drops
// personal content and connects an anonymous client. Queued operations
// stay on disk for the user's next session.
func (s *Store) Logout() {
	s.mu.Lock()
	stops := s.stop
	wasUser := s.session.UserID
	s.gen.Add(1)
	// no reconnect sync can be started once the session context is done
	if s.stopCtx != nil {
		s.stopCtx()
	}
	s.stop = nil
	s.stopCtx = nil
	s.session = remote.Anonymous
	s.client = s.backend.Connect(remote.Anonymous)
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	s.bg.Wait()

	// Mutations still in flight keep running against the old user's
	// client and queue, but can no longer touch these collections.
	s.sessionMu.Lock()
	s.cacheUser.Store(nil)
	s.workouts.replace(nil)
	s.exercises.replace(nil)
	s.templates.replace(nil)
	s.sessionMu.Unlock()

	if wasUser != "" {
		s.logger.Info("session ended", "user_id", wasUser)
	}
}

// Sync drains the current user's queue.
func (s *Store) Sync(ctx context.Context) engine.Report {
	s.mu.Lock()
	client, userID := s.client, s.session.UserID
	s.mu.Unlock()
	return s.reconciler.Drain(ctx, client, userID)
}

// RefreshCatalog re-fetches curated exercises and templates. When the
// user is logged in and a personal stream is still empty, it is
// backfilled from the remote store with still-queued operations
// replayed on top.
func (s *Store) RefreshCatalog(ctx context.Context) error {
	client := s.Client()
	if err := s.refreshCurated(ctx, client); err != nil {
		return err
	}

	if !client.Session().Authenticated() {
		return nil
	}
	if s.exercises.size() > 0 && s.templates.size() > 0 {
		return nil
	}
	pending, err := s.queue.List(ctx, client.Session().UserID)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}
	if s.exercises.size() == 0 {
		items, err := fetchPersonal(ctx, client, model.TableExerciseDefinitions, asPersonalExercise)
		if err != nil {
			return err
		}
		s.exercises.replace(overlay(items, pending, model.TableExerciseDefinitions, asPersonalExercise, s.logger))
	}
	if s.templates.size() == 0 {
		items, err := fetchPersonal(ctx, client, model.TableWorkoutTemplates, asPersonalTemplate)
		if err != nil {
			return err
		}
		s.templates.replace(overlay(items, pending, model.TableWorkoutTemplates, asPersonalTemplate, s.logger))
	}
	return nil
}

func (s *Store) refreshCurated(ctx context.Context, client remote.Client) error {
	if err := merge.Refresh(ctx, officialFetcher(client, model.TableExerciseDefinitions, asOfficialExercise), s.exerciseCatalog); err != nil {
		return err
	}
	return merge.Refresh(ctx, officialFetcher(client, model.TableWorkoutTemplates, asOfficialTemplate), s.templateCatalog)
}

// loadPersonal fetches the user's rows and replays still-queued operations
// on top, so edits made offline in an earlier process stay visible.
func (s *Store) loadPersonal(ctx context.Context, client remote.Client, cached []model.WorkoutTemplate) error {
	userID := client.Session().UserID
	pending, err := s.queue.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}

	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	workouts, err := fetchPersonal(ctx, client, model.TableWorkouts, asPersonalWorkout)
	if err != nil {
		keep(err)
	} else {
		s.workouts.replace(overlay(workouts, pending, model.TableWorkouts, asPersonalWorkout, s.logger))
	}

	exercises, err := fetchPersonal(ctx, client, model.TableExerciseDefinitions, asPersonalExercise)
	if err != nil {
		keep(err)
	} else {
		s.exercises.replace(overlay(exercises, pending, model.TableExerciseDefinitions, asPersonalExercise, s.logger))
	}

	templates, err := fetchPersonal(ctx, client, model.TableWorkoutTemplates, asPersonalTemplate)
	if err != nil {
		keep(err)
		templates = nil
	}
	union := merge.UnionByID(templates, cached)
	s.templates.replace(overlay(union, pending, model.TableWorkoutTemplates, asPersonalTemplate, s.logger))

	return firstErr
}

func officialFetcher[T model.Entity](client remote.Client, table model.Table, tag func(T) T) merge.Fetcher[T] {
	return func(ctx context.Context) ([]T, error) {
		rows, err := client.ListOfficial(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("list official %s: %w", table, err)
		}
		return decodeRows(rows, tag)
	}
}

func fetchPersonal[T model.Entity](ctx context.Context, client remote.Client, table model.Table, tag func(T) T) ([]T, error) {
	rows, err := client.ListPersonal(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("list personal %s: %w", table, err)
	}
	return decodeRows(rows, tag)
}

func decodeRows[T any](rows []json.RawMessage, tag func(T) T) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var item T
		if err := json.Unmarshal(row, &item); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, tag(item))
	}
	return out, nil
}
