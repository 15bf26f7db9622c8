package datastore

import (
	"encoding/json"
	"log/slog"

	"github.com/roach88/repsync/internal/model"
)

func asOfficialExercise(e model.ExerciseDef) model.ExerciseDef {
	e.Source, e.ReadOnly = model.SourceOfficial, true
	return e
}

func asOfficialTemplate(t model.WorkoutTemplate) model.WorkoutTemplate {
	t.Source, t.ReadOnly = model.SourceOfficial, true
	return t
}

func asPersonalWorkout(w model.Workout) model.Workout {
	w.Source, w.ReadOnly = model.SourcePersonal, false
	return w
}

func asPersonalExercise(e model.ExerciseDef) model.ExerciseDef {
	e.Source, e.ReadOnly = model.SourcePersonal, false
	return e
}

func asPersonalTemplate(t model.WorkoutTemplate) model.WorkoutTemplate {
	t.Source, t.ReadOnly = model.SourcePersonal, false
	return t
}

// overlay applies the queued operations of table to items, in queue order.
func overlay[T model.Entity](items []T, pending []model.QueuedOperation, table model.Table, tag func(T) T, logger *slog.Logger) []T {
	c := newCollection[T]()
	c.replace(items)
	for _, op := range pending {
		if op.Table != table {
			continue
		}
		switch op.Action {
		case model.ActionUpsert:
			var item T
			if err := json.Unmarshal(op.Payload, &item); err != nil {
				logger.Warn("ignoring undecodable queued payload", "op_id", op.ID, "error", err)
				continue
			}
			c.put(tag(item))
		case model.ActionDelete:
			id, err := op.RecordID()
			if err != nil {
				continue
			}
			c.remove(id)
		}
	}
	return c.list()
}
