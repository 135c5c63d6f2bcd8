package main

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensync/syncd/internal/config"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Short:       "Show whether syncd is running and its last known sync state",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	path := flagConfigPath
	if path == "" {
		path = config.ReadEnvOverrides().ConfigPath
	}

	if path == "" {
		path = config.DefaultConfigPath()
	}

	logger := buildLogger(nil)

	cfg, err := config.LoadOrDefault(path, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dataDir := config.DefaultDataDir()

	running, pid := daemonState(pidFilePath(dataDir))

	snap, err := readStatusSnapshot(statusFilePath(dataDir))
	if err != nil {
		return err
	}

	if flagJSON {
		return printStatusJSON(running, pid, cfg, snap)
	}

	printStatusText(running, pid, cfg, snap)

	return nil
}

// daemonState reports whether a `sync --watch` daemon is running by
// reading the PID file and probing the process with signal 0, matching
// the teacher's pidfile.go/status.go liveness check.
func daemonState(pidPath string) (running bool, pid int) {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return false, 0
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, pid
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false, pid
	}

	return true, pid
}

func printStatusText(running bool, pid int, cfg *config.Config, snap *statusSnapshot) {
	state := "stopped"
	if running {
		state = fmt.Sprintf("running (pid %d)", pid)
	}

	fmt.Printf("syncd: %s\n", state)

	rows := [][]string{
		{"sync_dir", orNoneStr(cfg.Sync.SyncDir)},
		{"remote_project", orNoneStr(cfg.Sync.RemoteProject)},
	}

	if snap == nil {
		printTable(os.Stdout, []string{"field", "value"}, rows)
		fmt.Println("no sync activity recorded yet")

		return
	}

	rows = append(rows,
		[]string{"last updated", formatTime(snap.UpdatedAt)},
		[]string{"last poll", pollTimeText(snap.LastPollTime)},
		[]string{"queue depth", fmt.Sprintf("%d", snap.QueueDepth)},
		[]string{"synced", fmt.Sprintf("%d", snap.Committed)},
		[]string{"dropped (fs)", fmt.Sprintf("%d", snap.DroppedFSEvents)},
		[]string{"dropped (intents)", fmt.Sprintf("%d", snap.DroppedIntents)},
		[]string{"conflicts", fmt.Sprintf("%d", snap.PendingConflicts)},
	)

	if snap.FatalError != "" {
		rows = append(rows, []string{"fatal error", snap.FatalError})
	}

	printTable(os.Stdout, []string{"field", "value"}, rows)
}

func pollTimeText(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	return formatTime(t)
}

func orNoneStr(s string) string {
	if s == "" {
		return "(not set)"
	}

	return s
}

type statusJSON struct {
	Running bool            `json:"running"`
	PID     int             `json:"pid,omitempty"`
	Config  *config.Config  `json:"config"`
	Status  *statusSnapshot `json:"status,omitempty"`
}

func printStatusJSON(running bool, pid int, cfg *config.Config, snap *statusSnapshot) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(statusJSON{Running: running, PID: pid, Config: cfg, Status: snap})
}
