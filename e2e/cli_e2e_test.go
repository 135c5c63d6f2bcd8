//go:build e2e

// Package e2e exercises the built syncd binary as a subprocess, the way
// the teacher's e2e suite drives its CLI end to end.
package e2e

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensync/syncd/testutil"
)

var binaryPath string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "syncd-e2e-*")
	if err != nil {
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	binaryPath = testutil.BuildBinary(tmpDir)

	os.Exit(m.Run())
}

func runCLI(t *testing.T, cfgPath string, args ...string) (stdout, stderr string) {
	t.Helper()

	fullArgs := []string{"--config", cfgPath}
	fullArgs = append(fullArgs, args...)

	cmd := exec.Command(binaryPath, fullArgs...)

	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	_ = cmd.Run()

	return outBuf.String(), errBuf.String()
}

func TestConfigShowReflectsFile(t *testing.T) {
	syncDir := t.TempDir()
	cfgPath := testutil.WriteTestConfig(t.TempDir(), syncDir, "myproject")

	stdout, stderr := runCLI(t, cfgPath, "config", "show")

	require.Empty(t, stderr)
	assert.Contains(t, stdout, syncDir)
	assert.Contains(t, stdout, "myproject")
}

func TestStatusWithNoDaemonRunning(t *testing.T) {
	syncDir := t.TempDir()
	cfgPath := testutil.WriteTestConfig(t.TempDir(), syncDir, "myproject")

	stdout, _ := runCLI(t, cfgPath, "status")

	assert.Contains(t, stdout, "stopped")
	assert.Contains(t, stdout, "no sync activity recorded yet")
}

func TestReloadWithNoDaemonRunningFails(t *testing.T) {
	syncDir := t.TempDir()
	cfgPath := testutil.WriteTestConfig(t.TempDir(), syncDir, "myproject")

	_, stderr := runCLI(t, cfgPath, "reload")

	assert.Contains(t, stderr, "no running daemon")
}

func TestConfigShowJSON(t *testing.T) {
	syncDir := t.TempDir()
	cfgPath := testutil.WriteTestConfig(t.TempDir(), syncDir, "myproject")

	stdout, stderr := runCLI(t, cfgPath, "--json", "config", "show")

	require.Empty(t, stderr)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(stdout), "{"))
}

func TestFindModuleRoot(t *testing.T) {
	root := testutil.FindModuleRoot(".")
	_, err := os.Stat(filepath.Join(root, "go.mod"))
	require.NoError(t, err)
}
