package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Environment variable overrides. These win over both defaults and the
// config file.
const (
	EnvDataRoot = "NEXAGENT_DATA_ROOT"
	EnvHost     = "NEXAGENT_HOST"
	EnvPort     = "NEXAGENT_PORT"
)

// Initialize loads, merges, and validates the configuration. path names the
// optional nexagent.yaml file; an absent file is not an error.
func Initialize(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Info("No config file found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			expanded := ExpandEnv(data)
			if err := yaml.Unmarshal(expanded, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			slog.Info("Loaded config file", "path", path)
		}
	}

	// Fill every unset field from defaults. File values win.
	if err := mergo.Merge(cfg, *Defaults()); err != nil {
		return nil, fmt.Errorf("failed to merge config defaults: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvDataRoot); v != "" {
		cfg.Storage.DataRoot = v
	}
	if v := os.Getenv(EnvHost); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		cfg.Server.Port = v
	}
}
