// Package cmd provides command-line interface functionality for the embedqueue application.
/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"embedqueue/internal/adapter/outbound/messaging"
	"embedqueue/internal/adapter/outbound/provider"
	"embedqueue/internal/adapter/outbound/repository"
	"embedqueue/internal/application/common/observability"
	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/application/registry"
	"embedqueue/internal/application/service"
	"embedqueue/internal/application/worker"
	"embedqueue/internal/config"
	"embedqueue/internal/port/outbound"
	"embedqueue/internal/version"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const (
	defaultHost = "localhost"
)

// newWorkerCmd creates and returns the worker command.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the queue worker service",
		Long: `Start the queue worker service that processes embedding work from the
durable PostgreSQL queue.

The worker service:
- Claims pending items in batches under a per-worker lease
- Calls the embedding provider with retry backoff and circuit breaking
- Defers rate-limited items and records performance outcomes
- Publishes item lifecycle events to NATS JetStream
- Sweeps leases abandoned by dead workers back to pending
- Aggregates hourly and daily performance rollups on a ticker

Configuration is loaded from config files and environment variables.`,
		Run: func(_ *cobra.Command, _ []string) {
			runWorkerService()
		},
	}
}

// workerRuntime bundles the long-running pieces of the worker process.
type workerRuntime struct {
	worker     *worker.EmbedWorker
	sweeper    *service.StaleWorkerSweeper
	aggregator *service.MetricsAggregator
	publisher  *messaging.NATSEventPublisher
	pool       *pgxpool.Pool
	metrics    *observability.Runtime
}

// runWorkerService starts and runs the worker service.
func runWorkerService() {
	cfg := GetConfig()

	slogger.InfoNoCtx("Starting queue worker service", slogger.Fields{
		"concurrency": cfg.Worker.Concurrency,
		"batch_size":  cfg.Worker.BatchSize,
	})

	runtime, err := createWorkerRuntime(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create worker service", slogger.Fields{"error": err.Error()})
		return
	}
	defer runtime.pool.Close()

	if err := startWorkerRuntime(runtime); err != nil {
		slogger.ErrorNoCtx("Failed to start worker service", slogger.Fields{"error": err.Error()})
		return
	}

	waitForShutdownAndStop(runtime)
}

// setupDatabaseConnection initializes the database connection with defaults.
func setupDatabaseConnection(cfg *config.Config) (*pgxpool.Pool, error) {
	dbConfig := repository.DatabaseConfigFromApp(cfg.Database)

	// Set defaults if not configured
	if dbConfig.Host == "" {
		dbConfig.Host = defaultHost
	}
	if dbConfig.Port == 0 {
		dbConfig.Port = 5432
	}
	if dbConfig.MaxConnections == 0 {
		dbConfig.MaxConnections = 10
	}
	if dbConfig.SSLMode == "" {
		dbConfig.SSLMode = "disable"
	}

	return repository.NewDatabaseConnection(dbConfig)
}

// createWorkerRuntime creates and wires the worker with all dependencies.
func createWorkerRuntime(cfg *config.Config) (*workerRuntime, error) {
	metrics, err := observability.NewRuntime("embedqueue-worker", version.Get().Version)
	if err != nil {
		return nil, err
	}
	metrics.Install()

	dbPool, err := setupDatabaseConnection(cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := messaging.NewNATSEventPublisher(cfg.NATS)
	if err != nil {
		dbPool.Close()
		return nil, err
	}
	if connectErr := publisher.Connect(); connectErr != nil {
		// Lifecycle events degrade until the publisher reconnects; item
		// processing does not depend on them.
		slogger.WarnNoCtx("Event publisher connect failed, continuing degraded", slogger.Fields{
			"error": connectErr.Error(),
		})
	}

	serviceRegistry := registry.NewServiceRegistry(
		repository.NewPostgreSQLQueueItemRepository(dbPool),
		repository.NewPostgreSQLWorkerRegistryRepository(dbPool),
		repository.NewPostgreSQLOutcomeRepository(dbPool),
		publisher,
		cfg,
	)

	embedWorker, err := serviceRegistry.Worker(createEmbeddingProvider(cfg))
	if err != nil {
		dbPool.Close()
		return nil, err
	}

	return &workerRuntime{
		worker:     embedWorker,
		sweeper:    serviceRegistry.StaleSweeper(),
		aggregator: serviceRegistry.MetricsAggregator(),
		publisher:  publisher,
		pool:       dbPool,
		metrics:    metrics,
	}, nil
}

// startWorkerRuntime starts the worker, the stale lease sweeper, and the
// rollup ticker.
func startWorkerRuntime(runtime *workerRuntime) error {
	ctx := context.Background()

	if _, err := runtime.worker.Start(ctx); err != nil {
		return err
	}

	if err := runtime.sweeper.Start(ctx); err != nil {
		return err
	}

	if err := runtime.aggregator.Start(ctx); err != nil {
		return err
	}

	slogger.InfoNoCtx("Worker service started successfully", nil)
	return nil
}

// waitForShutdownAndStop waits for shutdown signal and stops the service gracefully.
func waitForShutdownAndStop(runtime *workerRuntime) {
	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	slogger.InfoNoCtx("Received shutdown signal, initiating graceful shutdown", slogger.Fields{
		"signal": sig.String(),
	})

	// Create context with timeout for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop claiming and drain in-flight items first.
	if _, err := runtime.worker.Stop(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("Error during worker shutdown", slogger.Fields{"error": err.Error()})
	}

	runtime.aggregator.Stop()
	runtime.sweeper.Stop()

	if err := runtime.publisher.Disconnect(); err != nil {
		slogger.ErrorNoCtx("Error disconnecting event publisher", slogger.Fields{"error": err.Error()})
	}

	if err := runtime.metrics.Shutdown(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("Error shutting down runtime metrics", slogger.Fields{"error": err.Error()})
	}

	slogger.InfoNoCtx("Worker service shutdown completed successfully", nil)
}

// createEmbeddingProvider creates an embedding provider, preferring the real
// API client but falling back to the deterministic offline generator.
func createEmbeddingProvider(cfg *config.Config) outbound.EmbeddingProvider {
	providerCfg := cfg.Provider

	// Fallback to environment variables for backward compatibility
	if providerCfg.APIKey == "" {
		providerCfg.APIKey = os.Getenv("EMBEDDING_API_KEY")
	}

	if providerCfg.APIKey != "" {
		client, err := provider.NewClient(providerCfg)
		if err != nil {
			slogger.ErrorNoCtx("Failed to create provider client, falling back to offline generator", slogger.Fields{
				"error": err.Error(),
			})
		} else {
			slogger.InfoNoCtx("Using embedding provider API", slogger.Fields2(
				"endpoint", providerCfg.Endpoint,
				"model", providerCfg.Model,
			))
			return client
		}
	} else {
		slogger.WarnNoCtx("No provider API key found in configuration or environment (EMBEDQUEUE_PROVIDER_API_KEY or EMBEDDING_API_KEY), falling back to offline generator", nil)
	}

	// Fall back to the offline generator
	slogger.InfoNoCtx("Using deterministic offline embedding generator (fallback)", nil)
	return provider.NewStatic()
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newWorkerCmd())
}
