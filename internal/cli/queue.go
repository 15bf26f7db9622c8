package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/repsync/internal/model"
)

// QueueOptions holds flags for the queue commands.
type QueueOptions struct {
	*RootOptions
	AllUsers bool
}

// QueueEntry is one queued operation as shown by `queue list`.
type QueueEntry struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Table     model.Table  `json:"table"`
	Action    model.Action `json:"action"`
	RecordID  string       `json:"record_id"`
	Timestamp int64        `json:"timestamp"`
	Seq       int64        `json:"seq"`
}

// QueueListResult holds the output of `queue list`.
type QueueListResult struct {
	UserID     string       `json:"user_id,omitempty"`
	Operations []QueueEntry `json:"operations"`
}

// QueueCountResult holds the output of `queue count`.
type QueueCountResult struct {
	UserID string `json:"user_id,omitempty"`
	Count  int    `json:"count"`
}

// QueueCompactResult holds the output of `queue compact`.
type QueueCompactResult struct {
	UserID  string `json:"user_id"`
	Removed int    `json:"removed"`
}

// QueuePurgeResult holds the output of `queue purge-corrupt`.
type QueuePurgeResult struct {
	Purged []string `json:"purged"`
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the durable operation queue",
		Long: `Inspect and maintain the durable operation queue on this device.

Operations are listed in replay order (timestamp, then sequence number).

Examples:
  repsync queue list --user u1
  repsync queue list --all
  repsync queue count --user u1 --format json
  repsync queue remove 01926d3e-...
  repsync queue compact --user u1
  repsync queue purge-corrupt`,
	}

	cmd.PersistentFlags().BoolVar(&opts.AllUsers, "all", false, "list or count operations of every user")

	cmd.AddCommand(newQueueListCommand(opts))
	cmd.AddCommand(newQueueCountCommand(opts))
	cmd.AddCommand(newQueueRemoveCommand(opts))
	cmd.AddCommand(newQueueCompactCommand(opts))
	cmd.AddCommand(newQueuePurgeCommand(opts))

	return cmd
}

// scopeUser returns the user to scope a listing to ("" for every user).
func (o *QueueOptions) scopeUser(a *app) (string, error) {
	if o.AllUsers {
		return "", nil
	}
	return a.requireUser()
}

func newQueueListCommand(opts *QueueOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List queued operations in replay order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, opts.RootOptions)
			ctx := commandContext(cmd)

			a, err := openApp(ctx, opts.RootOptions, false)
			if err != nil {
				return fail(f, CodeConfig, err)
			}
			defer a.Close()

			userID, err := opts.scopeUser(a)
			if err != nil {
				return fail(f, CodeConfig, err)
			}

			ops, err := a.queue.List(ctx, userID)
			if err != nil {
				return fail(f, CodeDatabase, WrapExitError(ExitCommandError, "failed to list queue", err))
			}

			result := QueueListResult{UserID: userID, Operations: make([]QueueEntry, 0, len(ops))}
			for _, op := range ops {
				result.Operations = append(result.Operations, toQueueEntry(op))
			}
			return f.Render(result, func(w io.Writer) { writeQueueList(w, result) })
		},
	}
}

func newQueueCountCommand(opts *QueueOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "count",
		Short:         "Count queued operations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, opts.RootOptions)
			ctx := commandContext(cmd)

			a, err := openApp(ctx, opts.RootOptions, false)
			if err != nil {
				return fail(f, CodeConfig, err)
			}
			defer a.Close()

			userID, err := opts.scopeUser(a)
			if err != nil {
				return fail(f, CodeConfig, err)
			}

			n, err := a.queue.Count(ctx, userID)
			if err != nil {
				return fail(f, CodeDatabase, WrapExitError(ExitCommandError, "failed to count queue", err))
			}

			result := QueueCountResult{UserID: userID, Count: n}
			return f.Render(result, func(w io.Writer) { fmt.Fprintln(w, n) })
		},
	}
}

func newQueueRemoveCommand(opts *QueueOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <id>",
		Short:         "Remove one queued operation by id",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, opts.RootOptions)
			ctx := commandContext(cmd)

			a, err := openApp(ctx, opts.RootOptions, false)
			if err != nil {
				return fail(f, CodeConfig, err)
			}
			defer a.Close()

			if err := a.queue.Remove(ctx, args[0]); err != nil {
				return fail(f, CodeDatabase, WrapExitError(ExitCommandError, "failed to remove operation", err))
			}
			a.logger.Info("removed queued operation", "op_id", args[0])

			return f.Render(map[string]string{"removed": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Removed %s\n", args[0])
			})
		},
	}
}

func newQueueCompactCommand(opts *QueueOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "compact",
		Short:         "Collapse operations on the same record to the latest one",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, opts.RootOptions)
			ctx := commandContext(cmd)

			a, err := openApp(ctx, opts.RootOptions, false)
			if err != nil {
				return fail(f, CodeConfig, err)
			}
			defer a.Close()

			userID, err := a.requireUser()
			if err != nil {
				return fail(f, CodeConfig, err)
			}

			removed, err := a.queue.Compact(ctx, userID)
			if err != nil {
				return fail(f, CodeDatabase, WrapExitError(ExitCommandError, "failed to compact queue", err))
			}

			result := QueueCompactResult{UserID: userID, Removed: removed}
			return f.Render(result, func(w io.Writer) {
				fmt.Fprintf(w, "Compacted queue for %s: %d superseded operation(s) removed\n", userID, removed)
			})
		},
	}
}

func newQueuePurgeCommand(opts *QueueOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "purge-corrupt",
		Short:         "Delete queued rows that fail schema validation",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, opts.RootOptions)
			ctx := commandContext(cmd)

			a, err := openApp(ctx, opts.RootOptions, false)
			if err != nil {
				return fail(f, CodeConfig, err)
			}
			defer a.Close()

			purged, err := a.queue.PurgeCorrupt(ctx)
			if err != nil {
				return fail(f, CodeDatabase, WrapExitError(ExitCommandError, "failed to purge corrupt rows", err))
			}

			result := QueuePurgeResult{Purged: purged}
			return f.Render(result, func(w io.Writer) {
				if len(purged) == 0 {
					fmt.Fprintln(w, "No corrupt rows found.")
					return
				}
				fmt.Fprintf(w, "Purged %d corrupt row(s):\n", len(purged))
				for _, id := range purged {
					fmt.Fprintf(w, "  %s\n", id)
				}
			})
		},
	}
}

func toQueueEntry(op model.QueuedOperation) QueueEntry {
	recordID, err := op.RecordID()
	if err != nil {
		recordID = "?"
	}
	return QueueEntry{
		ID:        op.ID,
		UserID:    op.UserID,
		Table:     op.Table,
		Action:    op.Action,
		RecordID:  recordID,
		Timestamp: op.Timestamp,
		Seq:       op.Seq,
	}
}

func writeQueueList(w io.Writer, result QueueListResult) {
	if len(result.Operations) == 0 {
		fmt.Fprintln(w, "Queue is empty.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tQUEUED AT\tUSER\tTABLE\tACTION\tRECORD\tID")
	for _, op := range result.Operations {
		queuedAt := time.UnixMilli(op.Timestamp).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			op.Seq, queuedAt, op.UserID, op.Table, op.Action, op.RecordID, op.ID)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d operation(s) queued\n", len(result.Operations))
}
