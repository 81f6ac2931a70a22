package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "ETLRUN_"

// Load reads and merges configuration from global and project paths, then
// applies ETLRUN_* environment overrides.
// Order of precedence (highest to lowest): environment, project config, global config, defaults.
// Missing files are not errors; malformed files return an error.
func Load(globalPath, projectPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Merge global config if exists
	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Merge project config if exists
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.etlrun/config.{yaml,yml,json}
// Project: .etlrun/config.{yaml,yml,json} (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	return Load(FindFile(filepath.Join(homeDir, ".etlrun")), FindFile(".etlrun"))
}

// FindFile returns the first config file present in dir, or "" if none.
func FindFile(dir string) string {
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// mergeConfigFile decodes a config file on top of base, so keys absent from
// the file keep their current value. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, base)
	} else {
		err = json.Unmarshal(data, base)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
