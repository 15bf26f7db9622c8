package testutil

import (
	"sync"
	"time"
)

// DefaultStart is the instant a Clock created with NewClock starts at.
var DefaultStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Clock is a settable wall clock for tests. Pass Clock.Now wherever a
// component takes a `func() time.Time`.
//
// Unlike time.Now, the clock only moves when told to. Step makes every
// Now call advance it, which gives each caller a distinct instant.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewClock creates a clock frozen at DefaultStart.
func NewClock() *Clock {
	return NewClockAt(DefaultStart)
}

// NewClockAt creates a clock frozen at start.
func NewClockAt(start time.Time) *Clock {
	return &Clock{start: start, now: start}
}

// Now returns the current instant, then advances by the step if one is set.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	at := c.now
	c.now = c.now.Add(c.step)
	return at
}

// Peek returns the current instant without stepping.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock by d. A negative d moves it backwards, which is
// how tests simulate a wall clock being corrected.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Step makes every later Now call advance the clock by d. Zero freezes it.
func (c *Clock) Step(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
}

// Reset returns the clock to its start instant and freezes it.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
	c.step = 0
}
