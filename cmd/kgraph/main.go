// Package main implements the entry point for the kgraph maintenance daemon.
// It connects to the backing ArangoDB cluster, warms the structural
// reflection caches, flushes deferred cache evictions on a schedule and
// serves Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/kgraph/config"
	"github.com/c360/kgraph/graphdb"
	"github.com/c360/kgraph/metric"
	"github.com/c360/kgraph/permissions"
	"github.com/c360/kgraph/pkg/retry"
	"github.com/c360/kgraph/structure"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "kgraph"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()
	databases, metricsServer, metricsRegistry, err := setupInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if metricsServer != nil {
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Stop(stopCtx); err != nil {
				slog.Warn("Metrics server stop failed", "error", err)
			}
		}()
	}

	repository, cacheController, err := setupRepositories(cfg, databases, metricsRegistry, logger)
	if err != nil {
		return err
	}

	if cfg.Warmup.Enabled {
		if err := warmCaches(ctx, cfg, repository, metricsRegistry, logger); err != nil {
			return err
		}
	}
	if metricsServer != nil {
		metricsServer.SetReady()
	}

	return runWithSignalHandling(ctx, cfg, cacheController)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting kgraph (graph metadata and instance store)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// initializeConfiguration loads and validates configuration
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// CLI logging flags win over the config file.
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	return cfg, nil
}

// setupInfrastructure connects the database and starts the metrics endpoint
func setupInfrastructure(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*graphdb.Databases, *metric.Server, *metric.MetricsRegistry, error) {
	metricsRegistry := metric.NewMetricsRegistry()

	databases, err := connectDatabases(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry, cfg.Security)
		if err := metricsServer.Start(); err != nil {
			return nil, nil, nil, err
		}
		slog.Info("Metrics endpoint up", "address", metricsServer.Address(), "path", cfg.Metrics.Path)
	}

	return databases, metricsServer, metricsRegistry, nil
}

// connectDatabases opens the per-stage databases, retrying while the cluster
// comes up.
func connectDatabases(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*graphdb.Databases, error) {
	slog.Info("Connecting to ArangoDB", "endpoints", cfg.Arango.Endpoints)

	databases, err := retry.DoWithResult(ctx, retry.Persistent(), func() (*graphdb.Databases, error) {
		return graphdb.ConnectArango(ctx, cfg.Arango, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to ArangoDB: %w", err)
	}

	slog.Info("ArangoDB connection established")
	return databases, nil
}

// setupRepositories wires the structure repository and its cache controller
func setupRepositories(
	cfg *config.Config,
	databases *graphdb.Databases,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*structure.Repository, *structure.CacheController, error) {
	repository, err := structure.NewRepository(structure.Dependencies{
		Databases: databases,
		Logger:    logger,
		Metrics:   metricsRegistry,
		Cache:     cfg.Cache,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create structure repository: %w", err)
	}

	cacheController, err := structure.NewCacheController(repository, cfg.CacheController, logger, metricsRegistry)
	if err != nil {
		return nil, nil, fmt.Errorf("create cache controller: %w", err)
	}

	return repository, cacheController, nil
}

// warmCaches pre-populates the reflection caches so first readers do not pay
// the reflection cost.
func warmCaches(
	ctx context.Context,
	cfg *config.Config,
	repository *structure.Repository,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) error {
	perms, err := permissions.NewController(permissions.NewAdminEngine(), logger)
	if err != nil {
		return fmt.Errorf("create maintenance permissions: %w", err)
	}

	metaData, err := structure.NewMetaDataController(repository, perms, logger, metricsRegistry)
	if err != nil {
		return fmt.Errorf("create metadata controller: %w", err)
	}

	warmupCtx, cancel := context.WithTimeout(ctx, cfg.Warmup.Timeout)
	defer cancel()

	slog.Info("Warming reflection caches", "timeout", cfg.Warmup.Timeout)
	start := time.Now()
	if err := metaData.InitializeCache(warmupCtx); err != nil {
		return fmt.Errorf("cache warmup: %w", err)
	}
	slog.Info("Reflection caches warm", "took", time.Since(start))

	return nil
}

// runWithSignalHandling runs the deferred eviction loop until a shutdown
// signal arrives
func runWithSignalHandling(ctx context.Context, cfg *config.Config, cacheController *structure.CacheController) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	slog.Info("kgraph started", "deferDelay", cfg.CacheController.DeferDelay, "deferLimit", cfg.CacheController.DeferLimit)
	cacheController.Run(signalCtx, cfg.CacheController.DeferDelay)

	slog.Info("Received shutdown signal")
	slog.Info("kgraph shutdown complete")
	return nil
}
