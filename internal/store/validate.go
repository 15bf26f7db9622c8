package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/repsync/internal/model"
)

// rowSchema describes what a well-formed stored row looks like.
const rowSchema = `
#QueuedOperation: {
	id:        string & =~"."
	user_id:   string & =~"."
	table:     "workouts" | "exercise_definitions" | "workout_templates"
	action:    "upsert" | "delete"
	payload:   {id: string & =~".", ...}
	timestamp: int & >=0
	seq:       int & >=1
}

#WorkoutTemplate: {
	id:   string & =~"."
	name: string
	...
}

#TemplateCache: [...#WorkoutTemplate]
`

// RowValidator checks rows read back from SQLite against the CUE schema.
//
// A cue.Context is not safe for concurrent use, so calls are serialised.
type RowValidator struct {
	mu        sync.Mutex
	ctx       *cue.Context
	operation cue.Value
	templates cue.Value
}

// NewRowValidator compiles the row schema.
func NewRowValidator() (*RowValidator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(rowSchema)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile row schema: %w", err)
	}

	return &RowValidator{
		ctx:       ctx,
		operation: schema.LookupPath(cue.ParsePath("#QueuedOperation")),
		templates: schema.LookupPath(cue.ParsePath("#TemplateCache")),
	}, nil
}

// Row is the tagged result of reading one queue row: either a valid
// operation or the reason it was rejected.
type Row struct {
	ID  string
	Op  model.QueuedOperation
	Err error
}

// Valid reports whether the row passed validation.
func (r Row) Valid() bool {
	return r.Err == nil
}

// storedRow mirrors the columns of queued_operations.
type storedRow struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Table     string          `json:"table"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	Seq       int64           `json:"seq"`
}

// CheckOperation validates a raw row and converts it to a QueuedOperation.
func (v *RowValidator) CheckOperation(raw storedRow) Row {
	row := Row{ID: raw.ID}

	data, err := json.Marshal(raw)
	if err != nil {
		row.Err = fmt.Errorf("corrupt row %s: %w", raw.ID, err)
		return row
	}
	if err := v.check(v.operation, data); err != nil {
		row.Err = fmt.Errorf("corrupt row %s: %w", raw.ID, err)
		return row
	}

	row.Op = model.QueuedOperation{
		ID:        raw.ID,
		UserID:    raw.UserID,
		Table:     model.Table(raw.Table),
		Action:    model.Action(raw.Action),
		Payload:   raw.Payload,
		Timestamp: raw.Timestamp,
		Seq:       raw.Seq,
	}
	return row
}

// CheckTemplates validates a cached template blob.
func (v *RowValidator) CheckTemplates(data []byte) error {
	return v.check(v.templates, data)
}

func (v *RowValidator) check(schema cue.Value, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	value := v.ctx.CompileBytes(data)
	if err := value.Err(); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if err := schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
