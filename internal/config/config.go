package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/roach88/repsync/internal/engine"
	"github.com/roach88/repsync/internal/remote"
)

// Remote backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

const (
	defaultConfigPath = "~/.config/repsync/config.toml"
	defaultDatabase   = "~/.local/share/repsync/repsync.db"
	defaultRedisURL   = "redis://localhost:6379/0"
	defaultProbe      = 5 * time.Second
)

// Environment variables read by ApplyEnv.
const (
	EnvDatabase = "REPSYNC_DB"
	EnvUser     = "REPSYNC_USER"
	EnvRemote   = "REPSYNC_REMOTE"
	EnvRedisURL = "REPSYNC_REDIS_URL"
)

// Config is the full repsync configuration.
type Config struct {
	Database      string       `yaml:"database" toml:"database"`
	User          string       `yaml:"user" toml:"user"`
	Remote        RemoteConfig `yaml:"remote" toml:"remote"`
	Retry         RetryConfig  `yaml:"retry" toml:"retry"`
	ProbeInterval Duration     `yaml:"probe_interval" toml:"probe_interval"`
	Compaction    bool         `yaml:"compaction" toml:"compaction"`
}

// RemoteConfig selects and addresses the remote store.
type RemoteConfig struct {
	Backend  string `yaml:"backend" toml:"backend"`
	RedisURL string `yaml:"redis_url" toml:"redis_url"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

// RetryConfig mirrors engine.RetryPolicy.
type RetryConfig struct {
	MaxAttempts   int      `yaml:"max_attempts" toml:"max_attempts"`
	InitialDelay  Duration `yaml:"initial_delay" toml:"initial_delay"`
	BackoffFactor float64  `yaml:"backoff_factor" toml:"backoff_factor"`
	MaxDelay      Duration `yaml:"max_delay" toml:"max_delay"`
}

// Default returns the built-in configuration.
func Default() Config {
	retry := engine.DefaultRetryPolicy()
	return Config{
		Database: mustExpand(defaultDatabase),
		Remote: RemoteConfig{
			Backend:  BackendRedis,
			RedisURL: defaultRedisURL,
			Prefix:   remote.DefaultRedisPrefix,
		},
		Retry: RetryConfig{
			MaxAttempts:   retry.MaxAttempts,
			InitialDelay:  Duration(retry.InitialDelay),
			BackoffFactor: retry.BackoffFactor,
			MaxDelay:      Duration(retry.MaxDelay),
		},
		ProbeInterval: Duration(defaultProbe),
		Compaction:    true,
	}
}

// Load reads the config file at path over the defaults. An empty path
// means ~/.config/repsync/config.toml.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.Database = strings.TrimSpace(cfg.Database)
	if cfg.Database == "" {
		cfg.Database = defaultDatabase
	}
	cfg.Database = mustExpand(cfg.Database)
	cfg.User = strings.TrimSpace(cfg.User)

	return cfg, nil
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv; empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabase); ok && strings.TrimSpace(v) != "" {
		c.Database = mustExpand(v)
	}
	if v, ok := lookup(EnvUser); ok && strings.TrimSpace(v) != "" {
		c.User = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvRemote); ok && strings.TrimSpace(v) != "" {
		c.Remote.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvRedisURL); ok && strings.TrimSpace(v) != "" {
		c.Remote.RedisURL = strings.TrimSpace(v)
	}
}

// Validate rejects impossible values.
func (c Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	switch c.Remote.Backend {
	case BackendRedis:
		if c.Remote.RedisURL == "" {
			errs = append(errs, errors.New("remote.redis_url is required for the redis backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("remote.backend %q must be %q or %q", c.Remote.Backend, BackendRedis, BackendMemory))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.InitialDelay < 0 {
		errs = append(errs, errors.New("retry.initial_delay must not be negative"))
	}
	if c.Retry.BackoffFactor < 1 {
		errs = append(errs, errors.New("retry.backoff_factor must be at least 1"))
	}
	if c.Retry.MaxDelay < c.Retry.InitialDelay {
		errs = append(errs, errors.New("retry.max_delay must not be below retry.initial_delay"))
	}
	if c.ProbeInterval <= 0 {
		errs = append(errs, errors.New("probe_interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// RetryPolicy converts the retry settings for the engine.
func (c Config) RetryPolicy() engine.RetryPolicy {
	return engine.RetryPolicy{
		MaxAttempts:   c.Retry.MaxAttempts,
		InitialDelay:  c.Retry.InitialDelay.Std(),
		BackoffFactor: c.Retry.BackoffFactor,
		MaxDelay:      c.Retry.MaxDelay.Std(),
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
