package merge

import (
	"sort"
	"sync"

	"github.com/roach88/repsync/internal/model"
)

// Catalog holds the official and personal streams of one entity kind and
// the merged view derived from them.
//
// Thread-safety: all methods are safe for concurrent use. Listeners run on
// the goroutine that replaced an input, after the lock is released.
type Catalog[T model.Entity] struct {
	mu       sync.RWMutex
	less     Less[T]
	official []T
	personal []T
	merged   []T
	byID     map[string]int

	lmu       sync.Mutex
	listeners map[int]func([]T)
	nextID    int
}

// NewCatalog creates an empty catalog ordered by less.
func NewCatalog[T model.Entity](less Less[T]) *Catalog[T] {
	c := &Catalog[T]{
		less:      less,
		listeners: make(map[int]func([]T)),
	}
	c.recomputeLocked()
	return c
}

// SetOfficial replaces the curated stream and recomputes the view.
func (c *Catalog[T]) SetOfficial(items []T) {
	c.mu.Lock()
	c.official = clone(items)
	view := c.recomputeLocked()
	c.mu.Unlock()
	c.notify(view)
}

// SetPersonal replaces the personal stream and recomputes the view.
func (c *Catalog[T]) SetPersonal(items []T) {
	c.mu.Lock()
	c.personal = clone(items)
	view := c.recomputeLocked()
	c.mu.Unlock()
	c.notify(view)
}

// Reset drops both streams.
func (c *Catalog[T]) Reset() {
	c.mu.Lock()
	c.official = nil
	c.personal = nil
	view := c.recomputeLocked()
	c.mu.Unlock()
	c.notify(view)
}

// Items returns a copy of the merged view.
func (c *Catalog[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.merged)
}

// Official returns a copy of the curated stream.
func (c *Catalog[T]) Official() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.official)
}

// Personal returns a copy of the personal stream.
func (c *Catalog[T]) Personal() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.personal)
}

// Len returns the number of merged entries.
func (c *Catalog[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.merged)
}

// Get looks up a merged entry by id.
func (c *Catalog[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.merged[i], true
}

// IsOfficial reports whether the merged entry with id is curated content.
func (c *Catalog[T]) IsOfficial(id string) bool {
	item, ok := c.Get(id)
	return ok && model.IsOfficial(item)
}

// OnChange registers fn to receive the merged view after every recompute.
// The returned function removes the listener.
func (c *Catalog[T]) OnChange(fn func(items []T)) (remove func()) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	return func() {
		c.lmu.Lock()
		defer c.lmu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Catalog[T]) recomputeLocked() []T {
	c.merged = Merge(c.official, c.personal, c.less)
	c.byID = make(map[string]int, len(c.merged))
	for i, item := range c.merged {
		c.byID[item.EntityID()] = i
	}
	return clone(c.merged)
}

func (c *Catalog[T]) notify(view []T) {
	c.lmu.Lock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func([]T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.lmu.Unlock()

	for _, fn := range fns {
		fn(view)
	}
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
