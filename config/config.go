// Package config resolves fintrack settings from defaults, an optional YAML
// file and the environment. Command-line flags are applied on top by cmd.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/habedi/fintrack/db"
	"gopkg.in/yaml.v3"
)

const (
	EnvAPIURL = "FINTRACK_API_URL"
	EnvDBPath = "FINTRACK_DB_PATH"
)

// Config holds the settings of one CLI invocation.
type Config struct {
	APIBaseURL   string        `yaml:"api_url"`
	DBPath       string        `yaml:"db_path"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	// Concurrency bounds parallel requests of the dashboard.
	Concurrency int `yaml:"concurrency"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		APIBaseURL:   "http://localhost:8080",
		DBPath:       db.DefaultPath,
		Timeout:      30 * time.Second,
		MaxAttempts:  3,
		RetryBackoff: time.Second,
		Concurrency:  4,
	}
}

// DefaultPath is where Load looks when no file is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".fintrack", "config.yaml")
	}
	return filepath.Join(home, ".fintrack", "config.yaml")
}

// Load builds a Config from defaults, the YAML file at path and the environment.
// A missing file is only an error when explicit is true.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings for values the client cannot work with.
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("api_url must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff must not be negative, got %s", c.RetryBackoff)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}
