package config

import (
	"fmt"
	"io"
)

// Show writes a human-readable rendering of the resolved configuration to
// w, redacting the token file's contents (never its path) — matching the
// teacher's internal/config/show.go "what's in effect" report used by the
// `config show` CLI command.
func Show(w io.Writer, cfg *Config, path string) error {
	sections := []struct {
		title string
		lines []string
	}{
		{"source", []string{"config_file: " + orNone(path)}},
		{"sync", []string{
			"sync_dir: " + orNone(cfg.Sync.SyncDir),
			"remote_project: " + orNone(cfg.Sync.RemoteProject),
			"token_file: " + orNone(cfg.Sync.TokenFile),
		}},
		{"filter", []string{
			fmt.Sprintf("ignore_patterns: %v", cfg.Filter.IgnorePatterns),
			"ignore_marker: " + cfg.Filter.IgnoreMarker,
			fmt.Sprintf("skip_dotfiles: %v", cfg.Filter.SkipDotfiles),
			"max_file_size: " + orNone(cfg.Filter.MaxFileSize),
		}},
		{"watch", []string{"debounce_interval: " + cfg.Watch.DebounceInterval}},
		{"queue", []string{
			"poll_interval: " + cfg.Queue.PollInterval,
			"retry_initial: " + cfg.Queue.RetryInitial,
			"retry_ceiling: " + cfg.Queue.RetryCeiling,
			fmt.Sprintf("retry_max_tries: %d", cfg.Queue.RetryMaxTries),
			"restart_window: " + cfg.Queue.RestartWindow,
			fmt.Sprintf("max_restarts_per_window: %d", cfg.Queue.MaxRestarts),
		}},
		{"logging", []string{
			"log_level: " + cfg.Logging.LogLevel,
			"log_file: " + orNone(cfg.Logging.LogFile),
			"log_format: " + cfg.Logging.LogFormat,
		}},
		{"network", []string{
			"endpoint: " + orNone(cfg.Network.Endpoint),
			"connect_timeout: " + cfg.Network.ConnectTimeout,
			"data_timeout: " + cfg.Network.DataTimeout,
			"user_agent: " + cfg.Network.UserAgent,
		}},
	}

	for _, s := range sections {
		if _, err := fmt.Fprintf(w, "[%s]\n", s.title); err != nil {
			return err
		}

		for _, line := range s.lines {
			if _, err := fmt.Fprintf(w, "  %s\n", line); err != nil {
				return err
			}
		}
	}

	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}

	return s
}
