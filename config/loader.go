package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with layers and overrides.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  "KGRAPH",
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier
// ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	// Decoding each layer into the same struct only touches the keys the
	// document actually sets, so absent keys keep the previous layer's value.
	for _, path := range l.layers {
		data, err := safeReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	for _, override := range []struct {
		suffix string
		apply  func(string) error
	}{
		{"ARANGO_ENDPOINTS", func(v string) error {
			cfg.Arango.Endpoints = strings.Split(v, ",")
			return nil
		}},
		{"ARANGO_USERNAME", func(v string) error {
			cfg.Arango.Username = v
			return nil
		}},
		{"ARANGO_PASSWORD", func(v string) error {
			cfg.Arango.Password = v
			return nil
		}},
		{"ARANGO_DATABASE_PREFIX", func(v string) error {
			cfg.Arango.DatabasePrefix = v
			return nil
		}},
		{"METRICS_PORT", func(v string) error {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid metrics port %q: %w", v, err)
			}
			cfg.Metrics.Port = port
			return nil
		}},
		{"LOG_LEVEL", func(v string) error {
			cfg.Logging.Level = v
			return nil
		}},
		{"LOG_FORMAT", func(v string) error {
			cfg.Logging.Format = v
			return nil
		}},
	} {
		key := l.envPrefix + "_" + override.suffix
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return err
		}
		if err := override.apply(val); err != nil {
			return err
		}
	}
	return nil
}
