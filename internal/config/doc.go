// Package config loads repsync configuration.
//
// Resolution order, later sources winning:
//
//  1. Built-in defaults (Default)
//  2. A config file: YAML for .yaml/.yml, TOML for .toml
//  3. Environment: REPSYNC_DB, REPSYNC_USER, REPSYNC_REMOTE, REPSYNC_REDIS_URL
//  4. Command-line flags, applied by the CLI
//
// A missing config file is not an error; defaults are used instead.
// Fields absent from the file keep their default. Paths starting with ~
// are expanded to the home directory.
//
// Example config.toml:
//
//	database = "~/.local/share/repsync/repsync.db"
//	user = "user-a"
//	probe_interval = "5s"
//	compaction = true
//
//	[remote]
//	backend = "redis"
//	redis_url = "redis://localhost:6379/0"
//
//	[retry]
//	max_attempts = 3
//	initial_delay = "200ms"
//	backoff_factor = 2.0
//	max_delay = "5s"
package config
