package notify

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	r.PushToast(Toast{Kind: KindInfo, Message: MsgOfflineQueued})
	r.PushToast(Toast{Kind: KindError, Message: "boom"})
	r.PushToast(Toast{Kind: KindSuccess, Message: MsgSynced})

	assert.Len(t, r.Toasts(), 3)
	assert.Equal(t, []Toast{{Kind: KindError, Message: "boom"}}, r.OfKind(KindError))
	assert.Empty(t, r.OfKind(KindWarning))

	r.Reset()
	assert.Empty(t, r.Toasts())
}

func TestRecorder_Concurrent(t *testing.T) {
	var r Recorder
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.PushToast(Toast{Kind: KindInfo, Message: "x"})
		}()
	}
	wg.Wait()
	assert.Len(t, r.Toasts(), 50)
}

func TestLogSink_LevelByKind(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := LogSink{Logger: logger}

	sink.PushToast(Toast{Kind: KindWarning, Message: MsgReadOnly})
	sink.PushToast(Toast{Kind: KindError, Message: "remote rejected"})
	sink.PushToast(Toast{Kind: KindSuccess, Message: MsgSynced})

	out := buf.String()
	assert.Contains(t, out, `level=WARN msg="Official content is read-only" toast=warning`)
	assert.Contains(t, out, `level=ERROR msg="remote rejected" toast=error`)
	assert.Contains(t, out, `level=INFO msg="Offline changes synced" toast=success`)
}

func TestSinkFunc(t *testing.T) {
	var got Toast
	var s Sink = SinkFunc(func(t Toast) { got = t })
	s.PushToast(Toast{Kind: KindInfo, Message: "hi"})
	assert.Equal(t, Toast{Kind: KindInfo, Message: "hi"}, got)

	assert.NotPanics(t, func() { Discard.PushToast(Toast{}) })
}
