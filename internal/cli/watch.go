package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/repsync/internal/connectivity"
	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/notify"
	"github.com/roach88/repsync/internal/remote"
)

// WatchEvent is one line of `watch` output.
type WatchEvent struct {
	Event   string      `json:"event"` // "toast" | "connectivity" | "catalog"
	Kind    notify.Kind `json:"kind,omitempty"`
	Message string      `json:"message,omitempty"`
	Online  *bool       `json:"online,omitempty"`
	Table   model.Table `json:"table,omitempty"`
	Count   int         `json:"count,omitempty"`
}

// eventWriter serialises events from concurrent listeners onto one writer.
// Write failures are logged; a closed pipe must not stop the session.
type eventWriter struct {
	mu     sync.Mutex
	w      io.Writer
	asJSON bool
	logger *slog.Logger
}

func (e *eventWriter) emit(ev WatchEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.asJSON {
		err = json.NewEncoder(e.w).Encode(ev)
	} else {
		err = e.writeText(ev)
	}
	if err != nil {
		e.logger.Warn("failed to write watch event", "event", ev.Event, "error", err)
	}
}

func (e *eventWriter) writeText(ev WatchEvent) error {
	var err error
	switch ev.Event {
	case "toast":
		_, err = fmt.Fprintf(e.w, "[%s] %s\n", ev.Kind, ev.Message)
	case "connectivity":
		state := "offline"
		if ev.Online != nil && *ev.Online {
			state = "online"
		}
		_, err = fmt.Fprintf(e.w, "connectivity: %s\n", state)
	case "catalog":
		_, err = fmt.Fprintf(e.w, "%s: %d entries\n", ev.Table, ev.Count)
	default:
		_, err = fmt.Fprintln(e.w, ev.Message)
	}
	return err
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow connectivity and curated content, syncing automatically",
		Long: `Start a session and keep it running until interrupted.

The remote store is probed periodically. Whenever it becomes reachable again
the user's queued operations are replayed. Curated exercise and template
changes are followed live and every catalog update is printed.

Example:
  repsync watch --user u1
  repsync watch --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, cmd)
		},
	}
	return cmd
}

func runWatch(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts)

	logger := opts.Logger
	if logger == nil {
		logger = newLogger(opts.Verbose)
	}
	ctx, stop := signalContext(cmd, logger)
	defer stop()

	a, err := openApp(ctx, opts, true)
	if err != nil {
		return fail(f, CodeRemote, err)
	}
	defer a.Close()

	out := &eventWriter{w: cmd.OutOrStdout(), asJSON: opts.Format == "json", logger: a.logger}

	monitor := connectivity.NewMonitor(false)
	unsubscribe := monitor.Subscribe(func(online bool) {
		out.emit(WatchEvent{Event: "connectivity", Online: &online})
	})
	defer unsubscribe()

	prober := a.prober(monitor, a.backend.Connect(remote.Anonymous))
	prober.Check(ctx)

	sink := notify.SinkFunc(func(t notify.Toast) {
		out.emit(WatchEvent{Event: "toast", Kind: t.Kind, Message: t.Message})
	})
	ds := a.dataStore(monitor, sink)

	removeExercises := ds.ExerciseCatalog().OnChange(func(items []model.ExerciseDef) {
		out.emit(WatchEvent{Event: "catalog", Table: model.TableExerciseDefinitions, Count: len(items)})
	})
	defer removeExercises()
	removeTemplates := ds.TemplateCatalog().OnChange(func(items []model.WorkoutTemplate) {
		out.emit(WatchEvent{Event: "catalog", Table: model.TableWorkoutTemplates, Count: len(items)})
	})
	defer removeTemplates()

	if err := loadCatalog(ctx, ds, a.cfg.User); err != nil {
		return fail(f, CodeRemote, WrapExitError(ExitCommandError, "failed to start session", err))
	}
	defer ds.Logout()

	a.logger.Info("watching", "user_id", a.cfg.User, "probe_interval", a.cfg.ProbeInterval.String())
	f.VerboseLog("Watching for changes. Press Ctrl-C to stop.")

	if err := prober.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "watch error", err)
	}

	a.logger.Info("watch stopped")
	return nil
}
