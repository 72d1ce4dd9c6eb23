package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/kgraph/graphdb"
	"github.com/c360/kgraph/pkg/security"
	"github.com/c360/kgraph/structure"
)

// Config represents the complete service configuration.
type Config struct {
	Arango          graphdb.ArangoConfig            `yaml:"arango"`
	Cache           structure.CacheConfig           `yaml:"cache"`
	CacheController structure.CacheControllerConfig `yaml:"cacheController"`
	Metrics         MetricsConfig                   `yaml:"metrics"`
	Security        security.Config                 `yaml:"security,omitempty"`
	Logging         LoggingConfig                   `yaml:"logging"`
	Pagination      PaginationConfig                `yaml:"pagination"`
	Warmup          WarmupConfig                    `yaml:"warmup"`
}

// MetricsConfig defines the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig defines structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// PaginationConfig bounds list results when callers do not set a window.
type PaginationConfig struct {
	DefaultSize int64 `yaml:"defaultSize"`
	MaxSize     int64 `yaml:"maxSize"`
}

// WarmupConfig controls the metadata cache warm-up at startup.
type WarmupConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// MarshalYAML writes the timeout as a duration string so saved documents can
// be read back; the decoder rejects bare nanosecond integers.
func (w WarmupConfig) MarshalYAML() (any, error) {
	return struct {
		Enabled bool   `yaml:"enabled"`
		Timeout string `yaml:"timeout"`
	}{w.Enabled, w.Timeout.String()}, nil
}

// DefaultConfig returns a single-node local setup.
func DefaultConfig() *Config {
	return &Config{
		Arango:          graphdb.DefaultArangoConfig(),
		Cache:           structure.DefaultCacheConfig(),
		CacheController: structure.DefaultCacheControllerConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Pagination: PaginationConfig{
			DefaultSize: 20,
			MaxSize:     2000,
		},
		Warmup: WarmupConfig{
			Enabled: true,
			Timeout: 5 * time.Minute,
		},
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if len(c.Arango.Endpoints) == 0 {
		return errors.New("arango.endpoints is required")
	}
	for i, endpoint := range c.Arango.Endpoints {
		if endpoint == "" {
			return fmt.Errorf("arango.endpoints[%d] is empty", i)
		}
	}
	if c.Arango.DatabasePrefix == "" {
		return errors.New("arango.databasePrefix is required")
	}

	if c.Cache.ReflectionCacheSize <= 0 {
		return fmt.Errorf("cache.reflectionCacheSize must be positive, got %d", c.Cache.ReflectionCacheSize)
	}
	if c.CacheController.DeferDelay < 0 {
		return errors.New("cacheController.deferDelay cannot be negative")
	}
	if c.CacheController.DeferLimit <= 0 {
		return fmt.Errorf("cacheController.deferLimit must be positive, got %d", c.CacheController.DeferLimit)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port %d is out of range", c.Metrics.Port)
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics.path is required when metrics are enabled")
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", c.Logging.Format)
	}

	if c.Pagination.DefaultSize <= 0 {
		return fmt.Errorf("pagination.defaultSize must be positive, got %d", c.Pagination.DefaultSize)
	}
	if c.Pagination.MaxSize < c.Pagination.DefaultSize {
		return fmt.Errorf("pagination.maxSize %d is below pagination.defaultSize %d",
			c.Pagination.MaxSize, c.Pagination.DefaultSize)
	}

	if err := c.validateSecurity(); err != nil {
		return fmt.Errorf("security configuration: %w", err)
	}

	return nil
}

// validateSecurity validates the security configuration.
func (c *Config) validateSecurity() error {
	if c.Security.TLS.Server.Enabled {
		if c.Security.TLS.Server.CertFile == "" {
			return errors.New("tls.server.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.Server.KeyFile == "" {
			return errors.New("tls.server.key_file is required when TLS is enabled")
		}
		if _, err := os.Stat(c.Security.TLS.Server.CertFile); err != nil {
			return fmt.Errorf("tls.server.cert_file: %w", err)
		}
		if _, err := os.Stat(c.Security.TLS.Server.KeyFile); err != nil {
			return fmt.Errorf("tls.server.key_file: %w", err)
		}
		if c.Security.TLS.Server.MinVersion != "" {
			if err := validateTLSVersion(c.Security.TLS.Server.MinVersion); err != nil {
				return fmt.Errorf("tls.server.min_version: %w", err)
			}
		}
	}

	for i, caFile := range c.Security.TLS.Client.CAFiles {
		if _, err := os.Stat(caFile); err != nil {
			return fmt.Errorf("tls.client.ca_files[%d]: %w", i, err)
		}
	}

	if c.Security.TLS.Client.InsecureSkipVerify {
		_, _ = fmt.Fprintf(
			os.Stderr,
			"WARNING: TLS certificate verification is disabled (insecure_skip_verify=true). This should only be used in development/testing!\n",
		)
	}

	if c.Security.TLS.Client.MinVersion != "" {
		if err := validateTLSVersion(c.Security.TLS.Client.MinVersion); err != nil {
			return fmt.Errorf("tls.client.min_version: %w", err)
		}
	}

	return nil
}

// validateTLSVersion checks if a TLS version string is valid.
func validateTLSVersion(version string) error {
	switch version {
	case "1.2", "1.3":
		return nil
	default:
		return fmt.Errorf("invalid TLS version %q (must be \"1.2\" or \"1.3\")", version)
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := yaml.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}

// SaveToFile saves the configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return safeWriteFile(path, data)
}

// String returns a YAML representation of the config.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// SafeConfig provides thread-safe access to configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
