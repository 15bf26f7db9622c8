package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/repsync/internal/connectivity"
	"github.com/roach88/repsync/internal/datastore"
	"github.com/roach88/repsync/internal/engine"
	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/notify"
	"github.com/roach88/repsync/internal/remote"
)

// RecordOptions holds flags for the save commands.
type RecordOptions struct {
	*RootOptions
	Data string
}

// MutationResult holds the output of a save or delete command.
type MutationResult struct {
	UserID   string         `json:"user_id"`
	Table    model.Table    `json:"table"`
	Action   model.Action   `json:"action"`
	RecordID string         `json:"record_id"`
	Online   bool           `json:"online"`
	Outcome  engine.Outcome `json:"outcome,omitempty"`
	Queued   int            `json:"queued"`
	Notices  []notify.Toast `json:"notices"`
	Error    string         `json:"error,omitempty"`
}

// recordKind binds one entity type to its data store actions.
type recordKind struct {
	noun   string
	table  model.Table
	save   func(ctx context.Context, ds *datastore.Store, data string) (string, *engine.Pending, error)
	delete func(*datastore.Store, context.Context, string) (*engine.Pending, error)
}

var recordKinds = []recordKind{
	{
		noun:   "workout",
		table:  model.TableWorkouts,
		save:   saveWith((*datastore.Store).SaveWorkout),
		delete: (*datastore.Store).DeleteWorkout,
	},
	{
		noun:   "exercise",
		table:  model.TableExerciseDefinitions,
		save:   saveWith((*datastore.Store).SaveExercise),
		delete: (*datastore.Store).DeleteExercise,
	},
	{
		noun:   "template",
		table:  model.TableWorkoutTemplates,
		save:   saveWith((*datastore.Store).SaveTemplate),
		delete: (*datastore.Store).DeleteTemplate,
	},
}

// NewRecordCommands creates the workout, exercise and template command groups.
func NewRecordCommands(rootOpts *RootOptions) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(recordKinds))
	for _, kind := range recordKinds {
		cmds = append(cmds, newRecordCommand(rootOpts, kind))
	}
	return cmds
}

func newRecordCommand(rootOpts *RootOptions, kind recordKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind.noun,
		Short: fmt.Sprintf("Save or delete a personal %s", kind.noun),
		Long: fmt.Sprintf(`Save or delete one of the user's own %[1]ss.

The change is applied locally first and then sent to the remote store. When
the remote store is unreachable it is kept in the queue and replayed by the
next sync; when the remote store refuses it the change is rolled back.
Curated (official) records are read-only.

Exit codes:
  0 - Change synced or queued
  1 - Change rejected or rolled back
  2 - Command error (config, database or remote unavailable)

Examples:
  repsync %[1]s save --user u1 --data '{"id":"r1","name":"Leg day"}'
  repsync %[1]s delete r1 --user u1`, kind.noun),
	}

	cmd.AddCommand(newRecordSaveCommand(rootOpts, kind))
	cmd.AddCommand(newRecordDeleteCommand(rootOpts, kind))
	return cmd
}

func newRecordSaveCommand(rootOpts *RootOptions, kind recordKind) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "save",
		Short:         fmt.Sprintf("Create or replace a %s", kind.noun),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutation(rootOpts, cmd, kind, model.ActionUpsert,
				func(ctx context.Context, ds *datastore.Store) (string, *engine.Pending, error) {
					return kind.save(ctx, ds, opts.Data)
				})
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "", fmt.Sprintf("%s as JSON; a missing id is generated", kind.noun))
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newRecordDeleteCommand(rootOpts *RootOptions, kind recordKind) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         fmt.Sprintf("Delete a %s", kind.noun),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return runMutation(rootOpts, cmd, kind, model.ActionDelete,
				func(ctx context.Context, ds *datastore.Store) (string, *engine.Pending, error) {
					p, err := kind.delete(ds, ctx, id)
					return id, p, err
				})
		},
	}
}

// saveWith adapts a typed save action to raw JSON input.
func saveWith[T model.Entity](save func(*datastore.Store, context.Context, T) (*engine.Pending, error)) func(context.Context, *datastore.Store, string) (string, *engine.Pending, error) {
	return func(ctx context.Context, ds *datastore.Store, data string) (string, *engine.Pending, error) {
		rec, err := decodeRecord[T](data)
		if err != nil {
			return "", nil, err
		}
		p, err := save(ds, ctx, rec)
		return rec.EntityID(), p, err
	}
}

// decodeRecord parses data into T, filling in a new id when it has none.
func decodeRecord[T model.Entity](data string) (T, error) {
	var rec T
	var fields map[string]any
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return rec, fmt.Errorf("invalid --data JSON: %w", err)
	}
	if id, _ := fields["id"].(string); id == "" {
		fields["id"] = model.NewID()
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return rec, fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("invalid --data JSON: %w", err)
	}
	return rec, nil
}

func runMutation(
	opts *RootOptions,
	cmd *cobra.Command,
	kind recordKind,
	action model.Action,
	run func(ctx context.Context, ds *datastore.Store) (string, *engine.Pending, error),
) error {
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

	monitor := connectivity.NewMonitor(false)
	online := a.prober(monitor, a.backend.Connect(remote.Session{UserID: userID})).Check(ctx)

	notices := &notify.Recorder{}
	logSink := notify.LogSink{Logger: a.logger}
	ds := a.dataStore(monitor, notify.SinkFunc(func(t notify.Toast) {
		notices.PushToast(t)
		logSink.PushToast(t)
	}))
	defer ds.Logout()

	if err := ds.Login(ctx, remote.Session{UserID: userID}); err != nil {
		return fail(f, CodeRemote, WrapExitError(ExitCommandError, "failed to start session", err))
	}

	result := MutationResult{UserID: userID, Table: kind.table, Action: action, Online: online}

	id, pending, err := run(ctx, ds)
	result.RecordID = id
	var outcomeErr error
	switch {
	case err != nil && engine.IsReadOnly(err):
		outcomeErr = err
	case err != nil:
		return fail(f, CodeSync, WrapExitError(ExitCommandError, fmt.Sprintf("failed to %s %s", action, kind.noun), err))
	default:
		res := pending.Wait()
		result.Outcome = res.Outcome
		if res.Outcome != engine.OutcomeSynced && res.Outcome != engine.OutcomeQueued {
			outcomeErr = res.Err
			if outcomeErr == nil {
				outcomeErr = fmt.Errorf("%s", res.Outcome)
			}
		}
	}
	if outcomeErr != nil {
		result.Error = outcomeErr.Error()
	}

	if n, err := a.queue.Count(ctx, userID); err == nil {
		result.Queued = n
	} else {
		a.logger.Warn("queue count failed", "user_id", userID, "error", err)
	}
	result.Notices = notices.Toasts()
	if result.Notices == nil {
		result.Notices = []notify.Toast{}
	}

	if err := f.Render(result, func(w io.Writer) { writeMutation(w, result) }); err != nil {
		return err
	}
	if outcomeErr != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s %s not applied", kind.noun, id), outcomeErr)
	}
	return nil
}

func writeMutation(w io.Writer, r MutationResult) {
	outcome := string(r.Outcome)
	if outcome == "" {
		outcome = "rejected"
	}
	fmt.Fprintf(w, "%s %s/%s: %s\n", r.Action, r.Table, r.RecordID, outcome)
	for _, n := range r.Notices {
		fmt.Fprintf(w, "  [%s] %s\n", n.Kind, n.Message)
	}
	fmt.Fprintf(w, "  queued: %d\n", r.Queued)
	if r.Error != "" {
		fmt.Fprintf(w, "  error:  %s\n", r.Error)
	}
}
