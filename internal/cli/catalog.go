package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/repsync/internal/connectivity"
	"github.com/roach88/repsync/internal/datastore"
	"github.com/roach88/repsync/internal/model"
	"github.com/roach88/repsync/internal/notify"
	"github.com/roach88/repsync/internal/remote"
)

// CatalogEntry is one row of a merged catalog.
type CatalogEntry struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Source   model.Source `json:"source"`
	ReadOnly bool         `json:"read_only"`
}

// CatalogResult holds the output of the catalog commands.
type CatalogResult struct {
	Table   model.Table    `json:"table"`
	UserID  string         `json:"user_id,omitempty"`
	Entries []CatalogEntry `json:"entries"`
}

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the merged exercise or template catalog",
		Long: `Show curated content merged with the user's own entries.

Curated entries come first, followed by the user's entries. Exercises are
ordered by name, templates newest first. Without a user only curated content
is shown.

Examples:
  repsync catalog exercises
  repsync catalog templates --user u1 --format json`,
	}

	cmd.AddCommand(newCatalogListCommand(rootOpts, "exercises", model.TableExerciseDefinitions))
	cmd.AddCommand(newCatalogListCommand(rootOpts, "templates", model.TableWorkoutTemplates))

	return cmd
}

func newCatalogListCommand(opts *RootOptions, use string, table model.Table) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         fmt.Sprintf("List merged %s", use),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(opts, cmd, table)
		},
	}
}

func runCatalog(opts *RootOptions, cmd *cobra.Command, table model.Table) error {
	f := newFormatter(cmd, opts)
	ctx := commandContext(cmd)

	a, err := openApp(ctx, opts, true)
	if err != nil {
		return fail(f, CodeRemote, err)
	}
	defer a.Close()

	monitor := connectivity.NewMonitor(false)
	a.prober(monitor, a.backend.Connect(remote.Anonymous)).Check(ctx)

	ds := a.dataStore(monitor, notify.LogSink{Logger: a.logger})
	defer ds.Logout()

	if err := loadCatalog(ctx, ds, a.cfg.User); err != nil {
		return fail(f, CodeRemote, WrapExitError(ExitCommandError, "failed to load catalog", err))
	}

	result := CatalogResult{Table: table, UserID: a.cfg.User, Entries: catalogEntries(ds, table)}
	return f.Render(result, func(w io.Writer) { writeCatalog(w, result) })
}

// loadCatalog logs userID in, or refreshes curated content only when no
// user is configured.
func loadCatalog(ctx context.Context, ds *datastore.Store, userID string) error {
	if userID == "" {
		return ds.RefreshCatalog(ctx)
	}
	return ds.Login(ctx, remote.Session{UserID: userID})
}

func catalogEntries(ds *datastore.Store, table model.Table) []CatalogEntry {
	entries := []CatalogEntry{}
	switch table {
	case model.TableExerciseDefinitions:
		for _, e := range ds.Exercises() {
			entries = append(entries, CatalogEntry{ID: e.ID, Name: e.Name, Source: e.Source, ReadOnly: e.ReadOnly})
		}
	case model.TableWorkoutTemplates:
		for _, t := range ds.Templates() {
			entries = append(entries, CatalogEntry{ID: t.ID, Name: t.Name, Source: t.Source, ReadOnly: t.ReadOnly})
		}
	}
	return entries
}

func writeCatalog(w io.Writer, result CatalogResult) {
	if len(result.Entries) == 0 {
		fmt.Fprintf(w, "No %s.\n", result.Table)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tID\tNAME")
	for _, e := range result.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Source, e.ID, e.Name)
	}
	tw.Flush()
}
