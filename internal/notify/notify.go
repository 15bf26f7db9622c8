// Package notify carries user-facing notices from the sync engine to the
// presentation layer. Delivery is fire-and-forget.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Kind classifies a toast.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Standard messages surfaced by the engine and the data store.
const (
	MsgOfflineQueued = "Saved locally, will sync when back online"
	MsgSynced        = "Offline changes synced"
	MsgReadOnly      = "Official content is read-only"
)

// Toast is one user-facing notice.
type Toast struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Sink receives toasts. Implementations must not block.
type Sink interface {
	PushToast(t Toast)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Toast)

// PushToast calls f.
func (f SinkFunc) PushToast(t Toast) { f(t) }

// Discard drops every toast.
var Discard Sink = SinkFunc(func(Toast) {})

// LogSink writes toasts to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// PushToast logs t at a level matching its kind.
func (s LogSink) PushToast(t Toast) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch t.Kind {
	case KindWarning:
		level = slog.LevelWarn
	case KindError:
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, t.Message, "toast", string(t.Kind))
}

// Recorder keeps every toast it receives. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

// PushToast records t.
func (r *Recorder) PushToast(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

// Toasts returns a copy of the recorded toasts.
func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.toasts))
	copy(out, r.toasts)
	return out
}

// OfKind returns the recorded toasts of kind k.
func (r *Recorder) OfKind(k Kind) []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Toast
	for _, t := range r.toasts {
		if t.Kind == k {
			out = append(out, t)
		}
	}
	return out
}

// Reset forgets recorded toasts.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = nil
}
