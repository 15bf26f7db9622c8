package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/repsync/internal/config"
	"github.com/roach88/repsync/internal/connectivity"
	"github.com/roach88/repsync/internal/datastore"
	"github.com/roach88/repsync/internal/notify"
	"github.com/roach88/repsync/internal/remote"
	"github.com/roach88/repsync/internal/store"
)

var errUserRequired = errors.New("no user configured (use --user, REPSYNC_USER or the config file)")

// app is the wiring shared by every command: resolved config, the queue
// database and, when the command talks to the remote store, a backend.
type app struct {
	cfg     config.Config
	queue   *store.Store
	backend remote.Backend
	logger  *slog.Logger
	closers []func() error
}

// resolveConfig layers the config file, the environment and the global flags.
func resolveConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.User != "" {
		cfg.User = opts.User
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openApp resolves config and opens the queue database. With withRemote it
// also connects the remote backend.
func openApp(ctx context.Context, opts *RootOptions, withRemote bool) (*app, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	a := &app{cfg: cfg, logger: logger}

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
	}
	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, store.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	a.queue = st
	a.closers = append(a.closers, st.Close)

	if !withRemote {
		return a, nil
	}

	backend, closeBackend, err := dialBackend(ctx, cfg, opts)
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to connect to remote store", err)
	}
	a.backend = backend
	if closeBackend != nil {
		a.closers = append(a.closers, closeBackend)
	}
	return a, nil
}

// dialBackend returns the configured remote backend and its closer, if any.
func dialBackend(ctx context.Context, cfg config.Config, opts *RootOptions) (remote.Backend, func() error, error) {
	if opts.Backend != nil {
		return opts.Backend, nil, nil
	}
	switch cfg.Remote.Backend {
	case config.BackendMemory:
		return remote.NewMemory(), nil, nil
	case config.BackendRedis:
		r, err := remote.DialRedis(ctx, cfg.Remote.RedisURL, cfg.Remote.Prefix)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}
}

// Close releases everything openApp acquired, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("error closing resource", "error", err)
		}
	}
	a.closers = nil
}

// requireUser returns the configured user or a command error.
func (a *app) requireUser() (string, error) {
	if a.cfg.User == "" {
		return "", WrapExitError(ExitCommandError, "user required", errUserRequired)
	}
	return a.cfg.User, nil
}

// prober builds a connectivity prober that pings the remote store with client.
func (a *app) prober(monitor *connectivity.Monitor, client remote.Client) *connectivity.Prober {
	return connectivity.NewProber(monitor, client.Ping,
		connectivity.WithInterval(a.cfg.ProbeInterval.Std()),
		connectivity.WithLogger(a.logger),
	)
}

// dataStore builds the application data store over the app's queue and backend.
func (a *app) dataStore(monitor *connectivity.Monitor, sink notify.Sink) *datastore.Store {
	return datastore.New(a.backend, a.queue, a.queue, monitor,
		datastore.WithSink(sink),
		datastore.WithLogger(a.logger),
		datastore.WithRetryPolicy(a.cfg.RetryPolicy()),
		datastore.WithCompaction(a.cfg.Compaction),
	)
}

// fail reports err through the formatter in JSON mode and returns it as an
// ExitError so the process exits with the right code.
func fail(f *OutputFormatter, code string, err error) error {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		exitErr = WrapExitError(ExitFailure, "command failed", err)
	}
	if f.Format == "json" {
		if outErr := f.Error(code, exitErr.Error(), nil); outErr != nil {
			return outErr
		}
	}
	return exitErr
}

// signalContext derives a context from the command that is cancelled on
// SIGINT or SIGTERM. The returned stop function must be called.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// commandContext returns the command's context or Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
