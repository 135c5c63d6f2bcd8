package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks a decoded Config for internal consistency, returning a
// wrapped error describing every problem found (not just the first), in
// the teacher's internal/config/validate.go style.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Sync.SyncDir == "" {
		errs = append(errs, errors.New("sync.sync_dir must be set"))
	}

	if cfg.Sync.RemoteProject == "" {
		errs = append(errs, errors.New("sync.remote_project must be set"))
	}

	if cfg.Network.Endpoint == "" {
		errs = append(errs, errors.New("network.endpoint must be set"))
	}

	errs = append(errs, validateDuration("watch.debounce_interval", cfg.Watch.DebounceInterval)...)
	errs = append(errs, validateDuration("queue.poll_interval", cfg.Queue.PollInterval)...)
	errs = append(errs, validateDuration("queue.retry_initial", cfg.Queue.RetryInitial)...)
	errs = append(errs, validateDuration("queue.retry_ceiling", cfg.Queue.RetryCeiling)...)
	errs = append(errs, validateDuration("queue.restart_window", cfg.Queue.RestartWindow)...)
	errs = append(errs, validateDuration("network.connect_timeout", cfg.Network.ConnectTimeout)...)
	errs = append(errs, validateDuration("network.data_timeout", cfg.Network.DataTimeout)...)

	if cfg.Queue.RetryMaxTries < 1 {
		errs = append(errs, errors.New("queue.retry_max_tries must be >= 1"))
	}

	if cfg.Queue.MaxRestarts < 1 {
		errs = append(errs, errors.New("queue.max_restarts_per_window must be >= 1"))
	}

	if _, err := ParseSize(cfg.Filter.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("filter.max_file_size: %w", err))
	}

	if !validLogLevel(cfg.Logging.LogLevel) {
		errs = append(errs, fmt.Errorf("logging.log_level: invalid value %q", cfg.Logging.LogLevel))
	}

	if len(errs) == 0 {
		return nil
	}

	return errors.Join(errs...)
}

func validateDuration(field, value string) []error {
	if value == "" {
		return []error{fmt.Errorf("%s must be set", field)}
	}

	if _, err := time.ParseDuration(value); err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	return nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
