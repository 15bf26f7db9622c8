package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/repsync/internal/remote"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string
	User       string

	// Backend overrides the configured remote store (for testing).
	// If nil, the backend named in the config is dialled.
	Backend remote.Backend

	// Logger is installed by PersistentPreRunE. Tests may set it directly.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the repsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repsync",
		Short: "repsync - offline-first workout sync",
		Long: `Inspect and drive the offline-first sync engine of the workout log.

Mutations made while offline wait in a durable queue on this device and are
replayed in order once the remote store is reachable. Curated exercises and
templates are merged with the user's own content into one catalog.`,
		// main prints the error once and maps it to an exit code
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Logger == nil {
				opts.Logger = newLogger(opts.Verbose)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (.yaml, .yml or .toml; default ~/.config/repsync/config.toml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the SQLite queue database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.User, "user", "", "user id whose queue and content to use (overrides config)")

	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewRecordCommands(opts)...)

	return cmd
}

// newLogger builds the stderr text logger; --verbose lowers the level to Debug.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
