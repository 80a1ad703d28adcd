package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/mvanholl/vellum/pkg/expansion"
)

// AppConfig holds the host-side settings: where the vault lives, where the
// registry database is stored, and how chatty the logs are.
type AppConfig struct {
	VaultDir     string `json:"vault_dir"`
	DatabasePath string `json:"database_path"`
	LogLevel     string `json:"log_level"`
}

// Config is the top-level configuration struct.
type Config struct {
	App    *AppConfig        `json:"app_config"`
	Engine *expansion.Config `json:"engine_config"`
}

// DefaultAppConfig creates an application configuration with default values.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		VaultDir:     ".",
		DatabasePath: "./vellum.db?_journal_mode=WAL&_busy_timeout=5000",
		LogLevel:     "info",
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		App:    DefaultAppConfig(),
		Engine: expansion.DefaultConfig(),
	}

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The tool can still run with defaults; don't fail startup.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}
