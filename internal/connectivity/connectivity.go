// Package connectivity tracks whether the remote store is reachable.
//
// Oracle is the synchronous, best-effort check the executor and the
// reconciler consult. Monitor is a settable Oracle that reports
// offline/online transitions to listeners, and Prober keeps a Monitor
// current by pinging the remote store on an interval.
package connectivity

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Oracle reports current network reachability.
type Oracle interface {
	IsOffline() bool
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func() bool

// IsOffline calls f.
func (f OracleFunc) IsOffline() bool { return f() }

// Monitor holds the last known connectivity state.
type Monitor struct {
	online atomic.Bool

	mu        sync.Mutex
	listeners map[int]func(online bool)
	nextID    int
}

// NewMonitor creates a Monitor starting in the given state.
func NewMonitor(online bool) *Monitor {
	m := &Monitor{listeners: make(map[int]func(bool))}
	m.online.Store(online)
	return m
}

// IsOffline implements Oracle.
func (m *Monitor) IsOffline() bool {
	return !m.online.Load()
}

// Set records the current state. Listeners run synchronously, in
// subscription order, only when the state actually changes.
// Returns true if the state changed.
func (m *Monitor) Set(online bool) bool {
	if m.online.Swap(online) == online {
		return false
	}
	for _, fn := range m.snapshot() {
		fn(online)
	}
	return true
}

// Subscribe registers fn for state transitions. The returned function
// removes the listener and is safe to call more than once.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Monitor) snapshot() []func(bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fns := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	return fns
}

// DefaultProbeInterval is how often a Prober checks reachability.
const DefaultProbeInterval = 5 * time.Second

// Prober periodically runs a probe and feeds the result into a Monitor.
type Prober struct {
	monitor  *Monitor
	probe    func(ctx context.Context) error
	interval time.Duration
	logger   *slog.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithInterval sets the time between probes.
func WithInterval(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *slog.Logger) ProberOption {
	return func(p *Prober) {
		p.logger = logger
	}
}

// NewProber creates a Prober. A probe returning nil means online.
func NewProber(m *Monitor, probe func(ctx context.Context) error, opts ...ProberOption) *Prober {
	p := &Prober{
		monitor:  m,
		probe:    probe,
		interval: DefaultProbeInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check runs the probe once, bounded by the probe interval, and updates
// the Monitor. It returns the resulting online state.
func (p *Prober) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	err := p.probe(probeCtx)
	online := err == nil
	if p.monitor.Set(online) {
		if online {
			p.logger.Info("connectivity restored")
		} else {
			p.logger.Warn("connectivity lost", "error", err)
		}
	}
	return online
}

// Run checks immediately and then on every interval until ctx ends.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
