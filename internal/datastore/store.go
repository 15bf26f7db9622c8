package datastore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/repsync/internal/connectivity"
	"github.com/roach88/repsync/internal/engine"
	"github.com/roach88/repsync/internal/merge"
	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/notify"
	"github.com/roach88/repsync/internal/remote"
)

// ErrNotLoggedIn is returned by actions that need a user session.
var ErrNotLoggedIn = errors.New("not logged in")

// Queue is the durable operation queue.
type Queue interface {
	engine.Queue
	Enqueue(ctx context.Context, op model.PendingOperation) (model.QueuedOperation, error)
}

// TemplateCache mirrors a user's personal templates to local storage.
type TemplateCache interface {
	LoadTemplates(ctx context.Context, userID string) ([]model.WorkoutTemplate, error)
	SaveTemplates(ctx context.Context, userID string, templates []model.WorkoutTemplate) error
}

// Store holds the application's collections and session.
type Store struct {
	backend    remote.Backend
	queue      Queue
	cache      TemplateCache
	monitor    *connectivity.Monitor
	executor   *engine.Executor
	reconciler *engine.Reconciler
	sink       notify.Sink
	logger     *slog.Logger
	now        func() time.Time

	retry   engine.RetryPolicy
	compact bool

	mu      sync.Mutex
	session remote.Session
	client  remote.Client
	stop    []func()
	stopCtx context.CancelFunc
	bg      sync.WaitGroup

	// gen changes on every logout. Local writes made on behalf of a
	// mutation only apply while its generation is current; sessionMu
	// orders them against logout clearing the collections.
	gen       atomic.Uint64
	sessionMu sync.Mutex
	cacheUser atomic.Pointer[string]
	inflight  sync.WaitGroup

	workouts  *collection[model.Workout]
	exercises *collection[model.ExerciseDef]
	templates *collection[model.WorkoutTemplate]

	exerciseCatalog *merge.Catalog[model.ExerciseDef]
	templateCatalog *merge.Catalog[model.WorkoutTemplate]
}

// Option configures a Store.
type Option func(*Store)

// WithSink sets where user notices go.
func WithSink(sink notify.Sink) Option {
	return func(s *Store) {
		s.sink = sink
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithNow overrides the wall clock used for record timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithRetryPolicy sets the policy applied around remote operations.
func WithRetryPolicy(p engine.RetryPolicy) Option {
	return func(s *Store) {
		s.retry = p
	}
}

// WithCompaction toggles queue compaction before reconciliation.
func WithCompaction(enabled bool) Option {
	return func(s *Store) {
		s.compact = enabled
	}
}

// New creates a Store with an anonymous session.
func New(backend remote.Backend, queue Queue, cache TemplateCache, monitor *connectivity.Monitor, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		queue:     queue,
		cache:     cache,
		monitor:   monitor,
		sink:      notify.Discard,
		logger:    slog.Default(),
		now:       time.Now,
		retry:     engine.DefaultRetryPolicy(),
		compact:   true,
		session:   remote.Anonymous,
		workouts:  newCollection[model.Workout](),
		exercises: newCollection[model.ExerciseDef](),
		templates: newCollection[model.WorkoutTemplate](),

		exerciseCatalog: merge.NewCatalog(merge.ExercisesByName()),
		templateCatalog: merge.NewCatalog(merge.TemplatesNewestFirst()),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.client = backend.Connect(remote.Anonymous)
	s.executor = engine.NewExecutor(
		engine.WithRetryPolicy(s.retry),
		engine.WithExecutorLogger(s.logger),
	)
	s.reconciler = engine.NewReconciler(queue, monitor,
		engine.WithSink(s.sink),
		engine.WithCompaction(s.compact),
		engine.WithReconcilerLogger(s.logger),
	)

	s.exercises.onChange = s.exerciseCatalog.SetPersonal
	s.templates.onChange = func(items []model.WorkoutTemplate) {
		s.templateCatalog.SetPersonal(items)
		s.mirrorTemplates(items)
	}
	return s
}

// Session returns the current session.
func (s *Store) Session() remote.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Client returns the current session-scoped remote client.
func (s *Store) Client() remote.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Workouts returns the user's workouts.
func (s *Store) Workouts() []model.Workout {
	return s.workouts.list()
}

// Workout looks up one workout.
func (s *Store) Workout(id string) (model.Workout, bool) {
	return s.workouts.get(id)
}

// PersonalExercises returns the user's own exercise definitions.
func (s *Store) PersonalExercises() []model.ExerciseDef {
	return s.exercises.list()
}

// PersonalTemplates returns the user's own templates.
func (s *Store) PersonalTemplates() []model.WorkoutTemplate {
	return s.templates.list()
}

// Exercises returns the merged exercise catalog.
func (s *Store) Exercises() []model.ExerciseDef {
	return s.exerciseCatalog.Items()
}

// Templates returns the merged template catalog.
func (s *Store) Templates() []model.WorkoutTemplate {
	return s.templateCatalog.Items()
}

// ExerciseCatalog exposes the merged exercise catalog for change listeners.
func (s *Store) ExerciseCatalog() *merge.Catalog[model.ExerciseDef] {
	return s.exerciseCatalog
}

// TemplateCatalog exposes the merged template catalog for change listeners.
func (s *Store) TemplateCatalog() *merge.Catalog[model.WorkoutTemplate] {
	return s.templateCatalog
}

// mirrorTemplates writes the personal templates to the local cache of
// the user whose templates the collection holds.
// Runs under the template collection lock, so writes land in order.
func (s *Store) mirrorTemplates(items []model.WorkoutTemplate) {
	owner := s.cacheUser.Load()
	if owner == nil || s.cache == nil {
		return
	}
	userID := *owner
	if err := s.cache.SaveTemplates(context.Background(), userID, items); err != nil {
		s.logger.Warn("template cache write failed", "user_id", userID, "error", err)
	}
}

// Wait blocks until dispatched mutations have settled and background
// reconciliation passes have finished.
func (s *Store) Wait() {
	s.inflight.Wait()
	s.bg.Wait()
}

// bound wraps a local write so it only runs while session gen is current.
func (s *Store) bound(gen uint64, name string, fn func()) func() {
	return func() {
		s.sessionMu.Lock()
		defer s.sessionMu.Unlock()
		if s.gen.Load() != gen {
			s.logger.Debug("session ended, local write skipped", "mutation", name)
			return
		}
		fn()
	}
}

// dispatch hands m to the executor and tracks it until it settles.
func (s *Store) dispatch(ctx context.Context, m engine.Mutation) *engine.Pending {
	s.inflight.Add(1)
	p := s.executor.Dispatch(context.WithoutCancel(ctx), m)
	go func() {
		<-p.Done()
		s.inflight.Done()
	}()
	return p
}
