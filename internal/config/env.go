package config

import "os"

// Environment variable names for overrides, matching the teacher's
// SYNCD_-prefixed convention (internal/config/env.go used ONEDRIVE_GO_).
const (
	EnvConfig  = "SYNCD_CONFIG"
	EnvSyncDir = "SYNCD_SYNC_DIR"
)

// EnvOverrides holds values derived from environment variables. Resolved by
// ReadEnvOverrides; callers apply the relevant fields on top of file config.
type EnvOverrides struct {
	ConfigPath string // SYNCD_CONFIG: override config file path
	SyncDir    string // SYNCD_SYNC_DIR: sync directory override
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not mutate Config; callers merge the fields in.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		SyncDir:    os.Getenv(EnvSyncDir),
	}
}
