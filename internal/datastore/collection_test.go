package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/repsync/internal/model"
)

func workoutIDs(c *collection[model.Workout]) []string {
	var ids []string
	for _, w := range c.list() {
		ids = append(ids, w.ID)
	}
	return ids
}

func TestCollection_RestoreAfterPut(t *testing.T) {
	c := newCollection[model.Workout]()
	c.put(model.Workout{ID: "w1", Name: "a"})

	snap := c.put(model.Workout{ID: "w1", Name: "b"})
	c.restore("w1", snap)
	got, _ := c.get("w1")
	assert.Equal(t, "a", got.Name)

	snap = c.put(model.Workout{ID: "w2"})
	c.restore("w2", snap)
	assert.Equal(t, []string{"w1"}, workoutIDs(c))
}

func TestCollection_RestoreAfterRemove(t *testing.T) {
	c := newCollection[model.Workout]()
	c.replace([]model.Workout{{ID: "w1"}, {ID: "w2"}, {ID: "w3"}})

	snap := c.remove("w1")
	assert.Equal(t, []string{"w2", "w3"}, workoutIDs(c))
	c.restore("w1", snap)
	assert.Equal(t, []string{"w1", "w2", "w3"}, workoutIDs(c))

	snap = c.remove("missing")
	assert.False(t, snap.existed)
	c.restore("missing", snap)
	assert.Equal(t, 3, c.size())
}

func TestCollection_OnChangeSeesEveryWrite(t *testing.T) {
	c := newCollection[model.Workout]()
	var sizes []int
	c.onChange = func(items []model.Workout) { sizes = append(sizes, len(items)) }

	c.put(model.Workout{ID: "w1"})
	c.put(model.Workout{ID: "w2"})
	c.remove("w1")
	c.remove("w1")
	c.replace(nil)

	assert.Equal(t, []int{1, 2, 1, 0}, sizes)
}

func TestCollection_ReplaceDeduplicates(t *testing.T) {
	c := newCollection[model.Workout]()
	c.replace([]model.Workout{{ID: "w1", Name: "old"}, {ID: "w2"}, {ID: "w1", Name: "new"}})

	assert.Equal(t, []string{"w1", "w2"}, workoutIDs(c))
	got, _ := c.get("w1")
	assert.Equal(t, "new", got.Name)
}
