package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// statusSnapshot is the on-disk status record a running `sync --watch`
// daemon refreshes periodically, and `syncd status` reads without needing
// to talk to the daemon process directly — grounded on the teacher's
// status.go/format.go tabular reporting, adapted from a live-query model
// (OneDrive has no long-running daemon) to a file-based one (SPEC_FULL.md
// §10 "Status reporting").
type statusSnapshot struct {
	UpdatedAt        time.Time `json:"updated_at"`
	SyncDir          string    `json:"sync_dir"`
	RemoteProject    string    `json:"remote_project"`
	QueueDepth       int       `json:"queue_depth"`
	LastPollTime     time.Time `json:"last_poll_time"`
	PendingConflicts int64     `json:"pending_conflicts"`
	DroppedFSEvents  int64     `json:"dropped_fs_events"`
	DroppedIntents   int64     `json:"dropped_intents"`
	Committed        int64     `json:"committed"`
	FatalError       string    `json:"fatal_error,omitempty"`
}

// writeStatusSnapshot atomically writes s to path (write-to-temp +
// rename), matching internal/tokenfile.Save's durability pattern.
func writeStatusSnapshot(path string, s statusSnapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating status directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".status-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp status file: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("writing status file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("closing status file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming status file: %w", err)
	}

	return nil
}

// readStatusSnapshot reads a status snapshot written by writeStatusSnapshot.
// Returns (nil, nil) if no snapshot exists yet (daemon never ran).
func readStatusSnapshot(path string) (*statusSnapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil //nolint:nilnil // sentinel for "no snapshot yet"
	}

	if err != nil {
		return nil, fmt.Errorf("reading status file: %w", err)
	}

	var s statusSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding status file: %w", err)
	}

	return &s, nil
}

// statusFilePath returns the path to the status snapshot file in the
// application data directory.
func statusFilePath(dataDir string) string {
	return filepath.Join(dataDir, "status.json")
}

// pidFilePath returns the path to the daemon PID file in the application
// data directory.
func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "syncd.pid")
}
