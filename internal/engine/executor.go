package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/repsync/internal/remote"
)

// Mutation describes one state-changing action.
//
// OptimisticUpdate, Rollback, RemoteOperation, EnqueueOfflineOperation and
// IsOffline are required. The On* hooks are optional.
type Mutation struct {
	// Name labels the mutation in logs and errors, e.g. "upsert workouts/w1".
	Name string

	OptimisticUpdate        func()
	Rollback                func()
	RemoteOperation         func(ctx context.Context) error
	EnqueueOfflineOperation func(ctx context.Context) error
	IsOffline               func() bool

	OnOfflineQueued func()
	OnRemoteError   func(err error)
	OnQueueError    func(err error)
}

func (m Mutation) validate() error {
	var missing string
	switch {
	case m.OptimisticUpdate == nil:
		missing = "OptimisticUpdate"
	case m.Rollback == nil:
		missing = "Rollback"
	case m.RemoteOperation == nil:
		missing = "RemoteOperation"
	case m.EnqueueOfflineOperation == nil:
		missing = "EnqueueOfflineOperation"
	case m.IsOffline == nil:
		missing = "IsOffline"
	default:
		return nil
	}
	return &SyncError{
		Code:    ErrCodeInvalidMutation,
		Message: "mutation " + m.Name + " has no " + missing,
	}
}

// Outcome is how a mutation settled.
type Outcome string

const (
	// OutcomeSynced means the remote store applied the mutation.
	OutcomeSynced Outcome = "synced"
	// OutcomeQueued means the mutation was queued for replay; local state kept.
	OutcomeQueued Outcome = "queued"
	// OutcomeRolledBack means the remote store failed while online.
	OutcomeRolledBack Outcome = "rolled_back"
	// OutcomeQueueFailed means the mutation could not be queued and was undone.
	OutcomeQueueFailed Outcome = "queue_failed"
	// OutcomeInvalid means the mutation was never started.
	OutcomeInvalid Outcome = "invalid"
)

// Result reports the outcome of a mutation. Err is nil for OutcomeSynced
// and OutcomeQueued.
type Result struct {
	Outcome Outcome
	Err     error
}

// Executor runs mutations through the optimistic protocol.
//
// Thread-safety: an Executor holds no mutable state and may be shared.
// Callers own the synchronization of the state their callbacks touch.
type Executor struct {
	retry  RetryPolicy
	logger *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRetryPolicy sets the policy applied around every remote operation.
func WithRetryPolicy(p RetryPolicy) ExecutorOption {
	return func(e *Executor) {
		e.retry = p
	}
}

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an Executor using DefaultRetryPolicy.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		retry:  DefaultRetryPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs m to completion on the calling goroutine.
func (e *Executor) Execute(ctx context.Context, m Mutation) Result {
	if err := m.validate(); err != nil {
		return Result{Outcome: OutcomeInvalid, Err: err}
	}
	m.OptimisticUpdate()
	return e.settle(ctx, m)
}

// Pending is a mutation whose remote leg is still running.
type Pending struct {
	done   chan struct{}
	result Result
}

// Done is closed once the mutation settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the mutation settled and returns its Result.
func (p *Pending) Wait() Result {
	<-p.done
	return p.result
}

// Dispatch applies the optimistic update before returning and settles the
// rest of the protocol on a new goroutine.
func (e *Executor) Dispatch(ctx context.Context, m Mutation) *Pending {
	p := &Pending{done: make(chan struct{})}
	if err := m.validate(); err != nil {
		p.result = Result{Outcome: OutcomeInvalid, Err: err}
		close(p.done)
		return p
	}

	m.OptimisticUpdate()
	go func() {
		defer close(p.done)
		p.result = e.settle(ctx, m)
	}()
	return p
}

func (e *Executor) settle(ctx context.Context, m Mutation) Result {
	err := e.retry.Do(ctx, m.RemoteOperation, func(err error) bool {
		return !remote.IsRejected(err) && !m.IsOffline()
	})
	if err == nil {
		return Result{Outcome: OutcomeSynced}
	}

	if m.IsOffline() {
		qerr := m.EnqueueOfflineOperation(ctx)
		if qerr != nil {
			m.Rollback()
			e.logger.Error("offline queue write failed, rolled back",
				"mutation", m.Name,
				"error", qerr,
			)
			if m.OnQueueError != nil {
				m.OnQueueError(qerr)
			}
			return Result{Outcome: OutcomeQueueFailed, Err: NewQueueWriteError(m.Name, qerr)}
		}

		e.logger.Debug("remote unreachable, mutation queued",
			"mutation", m.Name,
			"error", err,
		)
		if m.OnOfflineQueued != nil {
			m.OnOfflineQueued()
		}
		return Result{Outcome: OutcomeQueued}
	}

	m.Rollback()
	e.logger.Warn("remote operation failed, rolled back",
		"mutation", m.Name,
		"error", err,
	)
	if m.OnRemoteError != nil {
		m.OnRemoteError(err)
	}
	return Result{Outcome: OutcomeRolledBack, Err: NewRemoteRejectedError(m.Name, err)}
}
