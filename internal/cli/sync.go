package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/repsync/internal/connectivity"
	"github.com/roach88/repsync/internal/engine"
	"github.com/roach88/repsync/internal/notify"
	"github.com/roach88/repsync/internal/remote"
)

// SyncResult holds the output of the sync command.
type SyncResult struct {
	UserID    string            `json:"user_id"`
	Online    bool              `json:"online"`
	Drained   []string          `json:"drained"`
	Compacted int               `json:"compacted"`
	Remaining int               `json:"remaining"`
	Stop      engine.StopReason `json:"stop"`
	Error     string            `json:"error,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay the user's queued operations against the remote store",
		Long: `Run one reconciliation pass for the configured user.

The remote store is probed first. When it is reachable, queued operations are
compacted (unless disabled in the config) and replayed oldest first; the pass
stops at the first operation that fails and leaves it and everything after it
queued.

Exit codes:
  0 - Queue fully drained
  1 - Pass stopped early (offline or an operation failed)
  2 - Command error (config, database or remote unavailable)

Examples:
  repsync sync --user u1
  repsync sync --user u1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
	return cmd
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts)
	ctx := commandContext(cmd)

	a, err := openApp(ctx, opts, true)
	if err != nil {
		return fail(f, CodeRemote, err)
	}
	defer a.Close()

	userID, err := a.requireUser()
	if err != nil {
		return fail(f, CodeConfig, err)
	}

	client := a.backend.Connect(remote.Session{UserID: userID})
	monitor := connectivity.NewMonitor(false)
	online := a.prober(monitor, client).Check(ctx)

	reconciler := engine.NewReconciler(a.queue, monitor,
		engine.WithCompaction(a.cfg.Compaction),
		engine.WithSink(notify.LogSink{Logger: a.logger}),
		engine.WithReconcilerLogger(a.logger),
	)
	report := reconciler.Drain(ctx, client, userID)

	result := SyncResult{
		UserID:    userID,
		Online:    online,
		Drained:   report.Drained,
		Compacted: report.Compacted,
		Remaining: report.Remaining,
		Stop:      report.Stop,
	}
	if result.Drained == nil {
		result.Drained = []string{}
	}
	if report.Err != nil {
		result.Error = report.Err.Error()
	}
	if report.Stop == engine.StopSkippedOffline {
		if n, err := a.queue.Count(ctx, userID); err == nil {
			result.Remaining = n
		}
	}

	if err := f.Render(result, func(w io.Writer) { writeSyncReport(w, result) }); err != nil {
		return err
	}

	switch report.Stop {
	case engine.StopNone:
		return nil
	case engine.StopSkippedOffline, engine.StopOffline:
		return NewExitError(ExitFailure, fmt.Sprintf("remote store unreachable: %d operation(s) still queued", result.Remaining))
	default:
		err := report.Err
		if err == nil {
			err = errors.New(string(report.Stop))
		}
		return WrapExitError(ExitFailure, "sync stopped", err)
	}
}

func writeSyncReport(w io.Writer, r SyncResult) {
	state := "online"
	if !r.Online {
		state = "offline"
	}
	fmt.Fprintf(w, "User %s (%s)\n", r.UserID, state)
	if r.Compacted > 0 {
		fmt.Fprintf(w, "  compacted: %d superseded operation(s)\n", r.Compacted)
	}
	fmt.Fprintf(w, "  drained:   %d\n", len(r.Drained))
	fmt.Fprintf(w, "  remaining: %d\n", r.Remaining)
	if r.Stop != engine.StopNone {
		fmt.Fprintf(w, "  stopped:   %s\n", r.Stop)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  error:     %s\n", r.Error)
	}
}
