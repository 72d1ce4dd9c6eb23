// Package config provides configuration management for the kgraph service.
//
// Configuration is loaded from YAML files with layer merging (base +
// overrides), environment variable substitution, and validation.
//
// # Core Components
//
// Config: Main configuration structure holding the ArangoDB connection,
// cache bounds, deferred eviction tuning, metrics server settings, security
// and logging configuration.
//
// SafeConfig: Thread-safe wrapper using RWMutex and deep cloning to prevent
// concurrent access issues and accidental mutations.
//
// Loader: Loads configuration with layer merging and KGRAPH_* environment
// variable overrides.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.yaml") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
