// Package remote defines the remote store the sync engine talks to and
// ships two backends: an in-process Memory store and a Redis store.
//
// A Client is bound to one Session at construction. Logging out means
// connecting a new Client with the Anonymous session, never mutating the
// session of an existing Client.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/repsync/internal/model"
)

// Session identifies who a Client acts for.
type Session struct {
	UserID      string
	AccessToken string
}

// Anonymous is the unauthenticated session.
var Anonymous = Session{}

// Authenticated reports whether the session belongs to a user.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// ChangeKind is the kind of row change carried by a notification.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is a push notification about one row of a curated table.
type Change struct {
	Table model.Table `json:"table"`
	Kind  ChangeKind  `json:"kind"`
	ID    string      `json:"id"`
}

// Writer applies personal remote effects. Both operations are idempotent.
type Writer interface {
	Upsert(ctx context.Context, table model.Table, id string, row json.RawMessage) error
	Delete(ctx context.Context, table model.Table, id string) error
}

// Reader fetches rows of a table.
type Reader interface {
	// ListOfficial returns the curated rows of a table, ordered by id.
	ListOfficial(ctx context.Context, table model.Table) ([]json.RawMessage, error)
	// ListPersonal returns the session user's rows of a table, ordered by id.
	ListPersonal(ctx context.Context, table model.Table) ([]json.RawMessage, error)
}

// Subscriber delivers change notifications for curated tables.
type Subscriber interface {
	// Subscribe calls fn for every change to table until cancel is called
	// or ctx ends. The subscription is active when Subscribe returns.
	Subscribe(ctx context.Context, table model.Table, fn func(Change)) (cancel func(), err error)
}

// Client is a session-scoped handle on the remote store.
type Client interface {
	Writer
	Reader
	Subscriber
	Session() Session
	Ping(ctx context.Context) error
}

// Backend creates session-scoped clients.
type Backend interface {
	Connect(s Session) Client
}

// RejectedError means the remote store refused an operation for a reason
// other than connectivity. Retrying it will not help.
type RejectedError struct {
	Table  model.Table
	ID     string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("remote rejected %s/%s: %s", e.Table, e.ID, e.Reason)
	}
	return fmt.Sprintf("remote rejected: %s", e.Reason)
}

// ErrUnauthenticated is returned for personal operations on an anonymous session.
var ErrUnauthenticated = &RejectedError{Reason: "not authenticated"}

// IsRejected reports whether err is a remote refusal.
// Uses errors.As to handle wrapped errors.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// checkRow validates that row is a JSON object keyed by id.
func checkRow(table model.Table, id string, row json.RawMessage) error {
	if !table.Valid() {
		return &RejectedError{Table: table, ID: id, Reason: "unknown table"}
	}
	rowID, err := model.PayloadID(row)
	if err != nil {
		return &RejectedError{Table: table, ID: id, Reason: err.Error()}
	}
	if rowID != id {
		return &RejectedError{Table: table, ID: id, Reason: fmt.Sprintf("row id %q does not match key", rowID)}
	}
	return nil
}
