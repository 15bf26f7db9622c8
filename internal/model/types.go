package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source says who owns a record.
type Source string

const (
	// SourcePersonal marks a record owned and editable by one user.
	SourcePersonal Source = "personal"
	// SourceOfficial marks centrally curated, read-only content.
	SourceOfficial Source = "official"
)

// Table names a logical remote collection.
type Table string

const (
	TableWorkouts            Table = "workouts"
	TableExerciseDefinitions Table = "exercise_definitions"
	TableWorkoutTemplates    Table = "workout_templates"
)

// Tables lists every table the engine knows, in a stable order.
var Tables = []Table{TableWorkouts, TableExerciseDefinitions, TableWorkoutTemplates}

// Valid reports whether t is a known table.
func (t Table) Valid() bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}

// Action is the remote effect of a queued operation.
type Action string

const (
	ActionUpsert Action = "upsert"
	ActionDelete Action = "delete"
)

// Valid reports whether a is upsert or delete.
func (a Action) Valid() bool {
	return a == ActionUpsert || a == ActionDelete
}

// Entity is implemented by every record kind that can be mutated.
type Entity interface {
	EntityID() string
	EntitySource() Source
}

// IsOfficial reports whether e is curated content.
func IsOfficial(e Entity) bool {
	return e.EntitySource() == SourceOfficial
}

// Set is one logged set within a workout exercise.
type Set struct {
	Reps        int   `json:"reps"`
	WeightGrams int64 `json:"weight_grams"`
	Completed   bool  `json:"completed"`
}

// WorkoutExercise is an exercise performed within a workout.
type WorkoutExercise struct {
	ExerciseID string `json:"exercise_id"`
	Sets       []Set  `json:"sets"`
}

// Workout is a logged training session.
type Workout struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	Name      string            `json:"name"`
	Notes     string            `json:"notes,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	Exercises []WorkoutExercise `json:"exercises"`
	Source    Source            `json:"source"`
	ReadOnly  bool              `json:"read_only"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (w Workout) EntityID() string     { return w.ID }
func (w Workout) EntitySource() Source { return w.Source }

// ExerciseDef is an entry of the exercise catalog.
type ExerciseDef struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id,omitempty"`
	Name           string    `json:"name"`
	Category       string    `json:"category,omitempty"`
	Equipment      string    `json:"equipment,omitempty"`
	PrimaryMuscles []string  `json:"primary_muscles,omitempty"`
	Source         Source    `json:"source"`
	ReadOnly       bool      `json:"read_only"`
	CreatedAt      time.Time `json:"created_at"`
}

func (e ExerciseDef) EntityID() string     { return e.ID }
func (e ExerciseDef) EntitySource() Source { return e.Source }

// TemplateExercise is a planned exercise inside a template.
type TemplateExercise struct {
	ExerciseID string `json:"exercise_id"`
	Sets       int    `json:"sets"`
	Reps       int    `json:"reps"`
}

// WorkoutTemplate is a reusable workout plan.
type WorkoutTemplate struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id,omitempty"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Exercises   []TemplateExercise `json:"exercises"`
	Source      Source             `json:"source"`
	ReadOnly    bool               `json:"read_only"`
	CreatedAt   time.Time          `json:"created_at"`
}

func (t WorkoutTemplate) EntityID() string     { return t.ID }
func (t WorkoutTemplate) EntitySource() Source { return t.Source }

// PendingOperation is an operation before the queue assigns identity and order.
type PendingOperation struct {
	UserID  string
	Table   Table
	Action  Action
	Payload json.RawMessage
}

// QueuedOperation is a durable record of one pending remote effect.
//
// Replay order is (Timestamp, Seq, ID) ascending. Timestamp alone can tie
// within one millisecond; Seq is a strictly increasing logical counter.
type QueuedOperation struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Table     Table           `json:"table"`
	Action    Action          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	Seq       int64           `json:"seq"`
}

// RecordID extracts payload.id, the key of the remote effect.
func (op QueuedOperation) RecordID() (string, error) {
	return PayloadID(op.Payload)
}

// PayloadID extracts the "id" field of a JSON row.
func PayloadID(payload json.RawMessage) (string, error) {
	var keyed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &keyed); err != nil {
		return "", fmt.Errorf("decode payload id: %w", err)
	}
	if keyed.ID == "" {
		return "", fmt.Errorf("payload has no id")
	}
	return keyed.ID, nil
}

// DeletePayload builds the {"id": ...} payload of a delete operation.
func DeletePayload(id string) json.RawMessage {
	data, _ := json.Marshal(struct {
		ID string `json:"id"`
	}{ID: id})
	return data
}
