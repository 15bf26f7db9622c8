package datastore

import (
	"sync"

	"github.com/roach88/repsync/internal/model"
)

// collection is an ordered in-memory set of records keyed by id.
//
// onChange runs with the collection locked, after every write, so
// observers see snapshots in write order. It must not call back into the
// collection.
type collection[T model.Entity] struct {
	mu       sync.Mutex
	items    []T
	index    map[string]int
	onChange func(items []T)
}

func newCollection[T model.Entity]() *collection[T] {
	return &collection[T]{index: make(map[string]int)}
}

// snapshot is the pre-mutation state of one record: the rollback target.
type snapshot[T any] struct {
	prev    T
	existed bool
	pos     int
}

// put inserts or replaces item.
func (c *collection[T]) put(item T) snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := item.EntityID()
	if i, ok := c.index[id]; ok {
		snap := snapshot[T]{prev: c.items[i], existed: true, pos: i}
		c.items[i] = item
		c.changedLocked()
		return snap
	}
	c.index[id] = len(c.items)
	c.items = append(c.items, item)
	c.changedLocked()
	return snapshot[T]{}
}

// remove deletes the record with id, if present.
func (c *collection[T]) remove(id string) snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return snapshot[T]{}
	}
	snap := snapshot[T]{prev: c.items[i], existed: true, pos: i}
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.reindexLocked()
	c.changedLocked()
	return snap
}

// restore returns the record with id to the state captured in snap.
// A record that did not exist is removed; one that did is put back at its
// original position.
func (c *collection[T]) restore(id string, snap snapshot[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, present := c.index[id]
	switch {
	case !snap.existed && present:
		c.items = append(c.items[:i], c.items[i+1:]...)
	case snap.existed && present:
		c.items[i] = snap.prev
	case snap.existed:
		pos := min(snap.pos, len(c.items))
		c.items = append(c.items, snap.prev)
		copy(c.items[pos+1:], c.items[pos:])
		c.items[pos] = snap.prev
	default:
		return
	}
	c.reindexLocked()
	c.changedLocked()
}

// replace swaps the whole contents.
func (c *collection[T]) replace(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make([]T, 0, len(items))
	c.index = make(map[string]int, len(items))
	for _, item := range items {
		if i, dup := c.index[item.EntityID()]; dup {
			c.items[i] = item
			continue
		}
		c.index[item.EntityID()] = len(c.items)
		c.items = append(c.items, item)
	}
	c.changedLocked()
}

func (c *collection[T]) get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

func (c *collection[T]) list() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *collection[T]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *collection[T]) reindexLocked() {
	c.index = make(map[string]int, len(c.items))
	for i, item := range c.items {
		c.index[item.EntityID()] = i
	}
}

func (c *collection[T]) changedLocked() {
	if c.onChange == nil {
		return
	}
	out := make([]T, len(c.items))
	copy(out, c.items)
	c.onChange(out)
}
