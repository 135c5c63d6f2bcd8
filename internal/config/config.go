// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for syncd.
package config

// Config is the top-level configuration structure, decoded from a single
// TOML file. Unlike a multi-drive client, syncd manages exactly one sync
// root mapped to one remote project per config file; running several
// projects means running several config files.
type Config struct {
	Sync    SyncRootConfig `toml:"sync"`
	Filter  FilterConfig   `toml:"filter"`
	Watch   WatchConfig    `toml:"watch"`
	Queue   QueueConfig    `toml:"queue"`
	Logging LoggingConfig  `toml:"logging"`
	Network NetworkConfig  `toml:"network"`
}

// SyncRootConfig identifies the local directory and remote project being
// mirrored.
type SyncRootConfig struct {
	SyncDir       string `toml:"sync_dir"`
	RemoteProject string `toml:"remote_project"`
	TokenFile     string `toml:"token_file"`
}

// FilterConfig controls which files and directories are included in sync
// (spec.md §4.2 "Exclusions"). Patterns are gitignore-syntax, matched with
// github.com/sabhiram/go-gitignore against paths relative to the sync root.
type FilterConfig struct {
	IgnorePatterns []string `toml:"ignore_patterns"`
	IgnoreMarker   string   `toml:"ignore_marker"`
	SkipDotfiles   bool     `toml:"skip_dotfiles"`
	MaxFileSize    string   `toml:"max_file_size"`
}

// WatchConfig controls the local filesystem watcher (C2).
type WatchConfig struct {
	// DebounceInterval is the quiescence window (spec.md §4.2): how long the
	// notification stream must be quiet before a batch is closed and handed
	// to the consolidator.
	DebounceInterval string `toml:"debounce_interval"`
}

// QueueConfig controls the operations queue's retry policy (C4) and the
// remote poller's cadence (C3).
type QueueConfig struct {
	PollInterval   string `toml:"poll_interval"`
	RetryInitial   string `toml:"retry_initial"`
	RetryCeiling   string `toml:"retry_ceiling"`
	RetryMaxTries  int    `toml:"retry_max_tries"`
	RestartWindow  string `toml:"restart_window"`
	MaxRestarts    int    `toml:"max_restarts_per_window"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior used by internal/remoteapi.
type NetworkConfig struct {
	Endpoint       string `toml:"endpoint"`
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}
