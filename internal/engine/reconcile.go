package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/repsync/internal/connectivity"
	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/notify"
	"github.com/roach88/repsync/internal/remote"
)

// Queue is the part of the durable operation queue a Reconciler needs.
// List must return operations in replay order.
type Queue interface {
	List(ctx context.Context, userID string) ([]model.QueuedOperation, error)
	Remove(ctx context.Context, id string) error
	Compact(ctx context.Context, userID string) (int, error)
}

// StopReason says why a reconciliation pass ended.
type StopReason string

const (
	// StopNone means the queue was drained.
	StopNone StopReason = "none"
	// StopOffline means connectivity dropped during the pass.
	StopOffline StopReason = "offline"
	// StopFailed means an operation failed for a non-connectivity reason.
	StopFailed StopReason = "failed"
	// StopBusy means another pass was already running.
	StopBusy StopReason = "busy"
	// StopSkippedOffline means the pass never started because the client was offline.
	StopSkippedOffline StopReason = "skipped_offline"
)

// Report summarizes one reconciliation pass.
type Report struct {
	UserID    string
	Drained   []string
	Remaining int
	Compacted int
	Stop      StopReason
	Err       error
}

// Reconciler drains the durable operation queue against the remote store.
type Reconciler struct {
	queue   Queue
	oracle  connectivity.Oracle
	sink    notify.Sink
	logger  *slog.Logger
	compact bool
	running atomic.Bool
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithCompaction enables or disables collapsing same-record operations
// before each pass. Enabled by default.
func WithCompaction(enabled bool) ReconcilerOption {
	return func(r *Reconciler) {
		r.compact = enabled
	}
}

// WithSink sets where the "synced" notice goes.
func WithSink(sink notify.Sink) ReconcilerOption {
	return func(r *Reconciler) {
		r.sink = sink
	}
}

// WithReconcilerLogger sets the reconciler's logger.
func WithReconcilerLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// NewReconciler creates a Reconciler over q, consulting oracle for connectivity.
func NewReconciler(q Queue, oracle connectivity.Oracle, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		queue:   q,
		oracle:  oracle,
		sink:    notify.Discard,
		logger:  slog.Default(),
		compact: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Running reports whether a pass is in flight.
func (r *Reconciler) Running() bool {
	return r.running.Load()
}

// Drain replays the queued operations of userID through w, in order,
// removing each one after the remote store confirmed it. A second call
// while a pass is running returns immediately with StopBusy.
func (r *Reconciler) Drain(ctx context.Context, w remote.Writer, userID string) Report {
	report := Report{UserID: userID, Stop: StopNone}

	if !r.running.CompareAndSwap(false, true) {
		report.Stop = StopBusy
		return report
	}
	defer r.running.Store(false)

	if userID == "" {
		report.Stop = StopFailed
		report.Err = &SyncError{Code: ErrCodeReconcileFailed, Message: "no user to reconcile"}
		return report
	}
	if r.oracle.IsOffline() {
		report.Stop = StopSkippedOffline
		return report
	}

	if r.compact {
		n, err := r.queue.Compact(ctx, userID)
		if err != nil {
			r.logger.Warn("queue compaction failed", "user_id", userID, "error", err)
		}
		report.Compacted = n
	}

	ops, err := r.queue.List(ctx, userID)
	if err != nil {
		report.Stop = StopFailed
		report.Err = &SyncError{Code: ErrCodeReconcileFailed, Message: "list queue", Err: err}
		r.logger.Error("reconcile: list queue", "user_id", userID, "error", err)
		return report
	}

	for i, op := range ops {
		if err := r.replay(ctx, w, op); err != nil {
			report.Remaining = len(ops) - i
			if r.oracle.IsOffline() {
				report.Stop = StopOffline
				r.logger.Debug("reconcile paused, offline",
					"user_id", userID,
					"op_id", op.ID,
					"remaining", report.Remaining,
				)
				break
			}
			report.Stop = StopFailed
			report.Err = NewReconcileError(op, err)
			r.logger.Error("reconcile stopped",
				"user_id", userID,
				"op_id", op.ID,
				"table", op.Table,
				"error", err,
			)
			break
		}
		report.Drained = append(report.Drained, op.ID)
	}

	if len(report.Drained) > 0 {
		r.logger.Info("reconciled offline operations",
			"user_id", userID,
			"drained", len(report.Drained),
			"remaining", report.Remaining,
		)
		r.sink.PushToast(notify.Toast{Kind: notify.KindSuccess, Message: notify.MsgSynced})
	}
	return report
}

// replay applies op's remote effect and then removes it from the queue.
func (r *Reconciler) replay(ctx context.Context, w remote.Writer, op model.QueuedOperation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := op.RecordID()
	if err != nil {
		return err
	}

	switch op.Action {
	case model.ActionUpsert:
		err = w.Upsert(ctx, op.Table, id, op.Payload)
	case model.ActionDelete:
		err = w.Delete(ctx, op.Table, id)
	default:
		err = fmt.Errorf("unknown action %q", op.Action)
	}
	if err != nil {
		return err
	}

	if err := r.queue.Remove(ctx, op.ID); err != nil {
		return fmt.Errorf("remove replayed op: %w", err)
	}
	return nil
}
