package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/repsync/internal/model"
)

// SyncError represents a failure surfaced by the mutation pipeline.
//
// Sync errors include:
//   - Read-only: a curated record was targeted by a local mutation
//   - Queue write: an offline operation could not be persisted
//   - Remote rejected: the remote store refused while online
//   - Reconcile failed: a queued operation could not be replayed
//   - Invalid mutation: a Mutation is missing a required callback
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// Table and RecordID identify the affected record, when known.
	Table    model.Table
	RecordID string

	// OpID identifies the queued operation (for reconcile errors).
	OpID string

	// Err is the underlying cause.
	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeReadOnly indicates a mutation of curated content.
	ErrCodeReadOnly SyncErrorCode = "READ_ONLY"

	// ErrCodeQueueWriteFailed indicates the durable queue could not persist an operation.
	ErrCodeQueueWriteFailed SyncErrorCode = "QUEUE_WRITE_FAILED"

	// ErrCodeRemoteRejected indicates a remote failure while online.
	ErrCodeRemoteRejected SyncErrorCode = "REMOTE_REJECTED"

	// ErrCodeReconcileFailed indicates a queued operation failed to replay.
	ErrCodeReconcileFailed SyncErrorCode = "RECONCILE_FAILED"

	// ErrCodeInvalidMutation indicates a malformed Mutation.
	ErrCodeInvalidMutation SyncErrorCode = "INVALID_MUTATION"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.OpID != "":
		msg = fmt.Sprintf("%s (op=%s)", msg, e.OpID)
	case e.Table != "" && e.RecordID != "":
		msg = fmt.Sprintf("%s (%s/%s)", msg, e.Table, e.RecordID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code SyncErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsReadOnly returns true if the error is a read-only violation.
// Uses errors.As to handle wrapped errors.
func IsReadOnly(err error) bool {
	return hasCode(err, ErrCodeReadOnly)
}

// IsQueueWriteError returns true if the error is a durable queue write failure.
func IsQueueWriteError(err error) bool {
	return hasCode(err, ErrCodeQueueWriteFailed)
}

// IsRemoteRejected returns true if the remote store failed while online.
func IsRemoteRejected(err error) bool {
	return hasCode(err, ErrCodeRemoteRejected)
}

// IsReconcileError returns true if the error came from a reconciliation pass.
func IsReconcileError(err error) bool {
	return hasCode(err, ErrCodeReconcileFailed)
}

// IsInvalidMutation returns true if the error reports a malformed Mutation.
func IsInvalidMutation(err error) bool {
	return hasCode(err, ErrCodeInvalidMutation)
}

// NewReadOnlyError creates a SyncError for a mutation of curated content.
func NewReadOnlyError(table model.Table, id string) *SyncError {
	return &SyncError{
		Code:     ErrCodeReadOnly,
		Message:  "official content is read-only",
		Table:    table,
		RecordID: id,
	}
}

// NewQueueWriteError creates a SyncError for a failed offline enqueue.
func NewQueueWriteError(name string, err error) *SyncError {
	return &SyncError{
		Code:    ErrCodeQueueWriteFailed,
		Message: fmt.Sprintf("could not queue %s", name),
		Err:     err,
	}
}

// NewRemoteRejectedError creates a SyncError for a remote failure while online.
func NewRemoteRejectedError(name string, err error) *SyncError {
	return &SyncError{
		Code:    ErrCodeRemoteRejected,
		Message: fmt.Sprintf("remote failed %s", name),
		Err:     err,
	}
}

// NewReconcileError creates a SyncError for a failed replay of op.
func NewReconcileError(op model.QueuedOperation, err error) *SyncError {
	return &SyncError{
		Code:    ErrCodeReconcileFailed,
		Message: fmt.Sprintf("replay %s %s", op.Action, op.Table),
		Table:   op.Table,
		OpID:    op.ID,
		Err:     err,
	}
}
