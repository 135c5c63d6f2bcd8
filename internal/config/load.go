package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unset fields keep the values from DefaultConfig (layer
// 0), matching the teacher's decode-into-defaults pattern in
// internal/config/load.go.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", slog.String("path", path))

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully", slog.String("path", path))

	return cfg, nil
}

// LoadOrDefault loads the config at path if it exists, otherwise returns
// DefaultConfig(). Used where no config file is required to exist yet
// (e.g. `syncd status`).
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path, logger)
}
