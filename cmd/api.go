/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"embedqueue/internal/adapter/inbound/api"
	ingress "embedqueue/internal/adapter/inbound/messaging"
	"embedqueue/internal/adapter/inbound/service"
	"embedqueue/internal/adapter/outbound/messaging"
	"embedqueue/internal/adapter/outbound/repository"
	"embedqueue/internal/application/common/observability"
	"embedqueue/internal/application/registry"
	"embedqueue/internal/application/worker"
	"embedqueue/internal/config"
	"embedqueue/internal/port/inbound"
	"embedqueue/internal/port/outbound"
	"embedqueue/internal/version"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServiceFactory creates and manages service instances. The database pool,
// the event publisher, and the service registry are created once and shared
// by everything the factory hands out.
type ServiceFactory struct {
	config *config.Config

	// Memoized pool state. A creation error does not stick: the next call
	// attempts creation again, so a recovered database comes back without
	// a restart.
	poolMutex        sync.Mutex
	pool             *pgxpool.Pool
	poolError        error
	creationDelay    time.Duration
	creationCount    int
	creationAttempts int

	publisherMutex sync.Mutex
	publisher      *messaging.NATSEventPublisher

	registryMutex sync.Mutex
	registry      *registry.ServiceRegistry

	workerMutex sync.Mutex
	worker      *worker.EmbedWorker

	runtimeMutex sync.Mutex
	runtime      *observability.Runtime
}

// NewServiceFactory creates a new ServiceFactory.
func NewServiceFactory(cfg *config.Config) *ServiceFactory {
	return &ServiceFactory{
		config: cfg,
	}
}

// GetDatabasePool returns the shared database pool, creating it on first use.
func (sf *ServiceFactory) GetDatabasePool() (*pgxpool.Pool, error) {
	sf.poolMutex.Lock()
	defer sf.poolMutex.Unlock()

	if sf.pool != nil {
		return sf.pool, nil
	}

	sf.creationAttempts++

	// Test hook that widens the creation window for concurrency tests.
	if sf.creationDelay > 0 {
		time.Sleep(sf.creationDelay)
	}

	pool, err := sf.createDatabasePool()
	if err != nil {
		sf.poolError = err
		return nil, err
	}

	sf.pool = pool
	sf.poolError = nil
	sf.creationCount++
	return pool, nil
}

// Close releases the memoized pool. Safe to call multiple times and before
// the pool was ever created.
func (sf *ServiceFactory) Close() error {
	sf.poolMutex.Lock()
	defer sf.poolMutex.Unlock()

	if sf.pool != nil {
		sf.pool.Close()
		sf.pool = nil
	}
	return nil
}

// GetPoolCreationCount reports how many pools this factory has created.
func (sf *ServiceFactory) GetPoolCreationCount() int {
	sf.poolMutex.Lock()
	defer sf.poolMutex.Unlock()
	return sf.creationCount
}

// GetPoolCreationAttempts reports how many creations were attempted,
// including failed ones.
func (sf *ServiceFactory) GetPoolCreationAttempts() int {
	sf.poolMutex.Lock()
	defer sf.poolMutex.Unlock()
	return sf.creationAttempts
}

// UpdateDatabaseConfig swaps the database settings used for the next pool
// creation. An already created pool is left untouched.
func (sf *ServiceFactory) UpdateDatabaseConfig(dbConfig *config.DatabaseConfig) {
	sf.poolMutex.Lock()
	defer sf.poolMutex.Unlock()
	sf.config.Database = *dbConfig
}

// createDatabasePool creates a database connection pool.
func (sf *ServiceFactory) createDatabasePool() (*pgxpool.Pool, error) {
	dbConfig := repository.DatabaseConfigFromApp(sf.config.Database)

	// Set defaults if not configured
	if dbConfig.Host == "" {
		dbConfig.Host = "localhost"
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

// getEventPublisher returns the shared NATS event publisher. Construction
// only validates configuration; Connect happens once at startup.
func (sf *ServiceFactory) getEventPublisher() (*messaging.NATSEventPublisher, error) {
	sf.publisherMutex.Lock()
	defer sf.publisherMutex.Unlock()

	if sf.publisher != nil {
		return sf.publisher, nil
	}

	publisher, err := messaging.NewNATSEventPublisher(sf.config.NATS)
	if err != nil {
		return nil, err
	}

	sf.publisher = publisher
	return publisher, nil
}

// buildDependencies creates the outbound adapters every service shares. The
// event publisher does not depend on the database, so it is returned even
// when the pool cannot be created.
func (sf *ServiceFactory) buildDependencies() (
	outbound.QueueRepository,
	outbound.WorkerRegistry,
	outbound.OutcomeRepository,
	outbound.EventPublisher,
	error,
) {
	publisher, err := sf.getEventPublisher()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	pool, err := sf.GetDatabasePool()
	if err != nil {
		return nil, nil, nil, publisher, err
	}

	queueRepo := repository.NewPostgreSQLQueueItemRepository(pool)
	workerRegistry := repository.NewPostgreSQLWorkerRegistryRepository(pool)
	outcomeRepo := repository.NewPostgreSQLOutcomeRepository(pool)

	return queueRepo, workerRegistry, outcomeRepo, publisher, nil
}

// getServiceRegistry returns the shared service registry, building the
// dependency set on first use.
func (sf *ServiceFactory) getServiceRegistry() (*registry.ServiceRegistry, error) {
	sf.registryMutex.Lock()
	defer sf.registryMutex.Unlock()

	if sf.registry != nil {
		return sf.registry, nil
	}

	queueRepo, workerRegistry, outcomeRepo, publisher, err := sf.buildDependencies()
	if err != nil {
		return nil, err
	}

	sf.registry = registry.NewServiceRegistry(queueRepo, workerRegistry, outcomeRepo, publisher, sf.config)
	return sf.registry, nil
}

// CreateHealthService creates a health service instance
func (sf *ServiceFactory) CreateHealthService() inbound.HealthService {
	queueRepo, _, _, publisher, err := sf.buildDependencies()
	if err != nil {
		// Nil dependencies are skipped during checks, so the endpoint
		// stays up while the database is unreachable.
		log.Printf("Failed to build health service dependencies, reporting without probes: %v", err)
	}

	return service.NewHealthServiceAdapter(queueRepo, publisher, version.Get().Version)
}

// CreateQueueService creates the enqueue and queue status service.
func (sf *ServiceFactory) CreateQueueService() inbound.QueueService {
	serviceRegistry, err := sf.getServiceRegistry()
	if err != nil {
		log.Fatalf("Failed to create queue service: %v", err)
	}
	return serviceRegistry.QueueService()
}

// CreateWorkerControl creates the embedded queue worker hosted by the API
// process. The worker starts stopped; POST /workers?action=start brings it
// up.
func (sf *ServiceFactory) CreateWorkerControl() inbound.WorkerControl {
	sf.workerMutex.Lock()
	defer sf.workerMutex.Unlock()

	if sf.worker != nil {
		return sf.worker
	}

	serviceRegistry, err := sf.getServiceRegistry()
	if err != nil {
		log.Fatalf("Failed to create worker control: %v", err)
	}

	embedWorker, err := serviceRegistry.Worker(createEmbeddingProvider(sf.config))
	if err != nil {
		log.Fatalf("Failed to create embedded worker: %v", err)
	}

	sf.worker = embedWorker
	return embedWorker
}

// CreateBreakerControl creates the circuit breaker status and reset service.
func (sf *ServiceFactory) CreateBreakerControl() inbound.CircuitBreakerControl {
	serviceRegistry, err := sf.getServiceRegistry()
	if err != nil {
		log.Fatalf("Failed to create breaker control: %v", err)
	}

	breakerControl, err := serviceRegistry.BreakerControl()
	if err != nil {
		log.Fatalf("Failed to create breaker control: %v", err)
	}
	return breakerControl
}

// CreateMetricsQuery creates the rollup query service.
func (sf *ServiceFactory) CreateMetricsQuery() inbound.MetricsQueryService {
	serviceRegistry, err := sf.getServiceRegistry()
	if err != nil {
		log.Fatalf("Failed to create metrics query service: %v", err)
	}
	return serviceRegistry.MetricsAggregator()
}

// CreateEnqueueConsumer creates the NATS ingress consumer that feeds producer
// enqueue requests into the queue service. Returns nil when the consumer
// cannot be built; the HTTP enqueue path still works without it.
func (sf *ServiceFactory) CreateEnqueueConsumer() *ingress.EnqueueConsumer {
	queueService := sf.CreateQueueService()

	consumer, err := ingress.NewEnqueueConsumer(ingress.EnqueueConsumerConfig{}, sf.config.NATS, queueService)
	if err != nil {
		log.Printf("Failed to create enqueue ingress consumer: %v", err)
		return nil
	}
	return consumer
}

// CreateErrorHandler creates an error handler instance
func (sf *ServiceFactory) CreateErrorHandler() api.ErrorHandler {
	return api.NewDefaultErrorHandler()
}

// getRuntime returns the shared OpenTelemetry runtime, installing it as the
// global meter provider on first use.
func (sf *ServiceFactory) getRuntime() (*observability.Runtime, error) {
	sf.runtimeMutex.Lock()
	defer sf.runtimeMutex.Unlock()

	if sf.runtime != nil {
		return sf.runtime, nil
	}

	runtime, err := observability.NewRuntime("embedqueue-api", version.Get().Version)
	if err != nil {
		return nil, err
	}

	runtime.Install()
	sf.runtime = runtime
	return runtime, nil
}

// CreateServer creates a fully configured server instance
func (sf *ServiceFactory) CreateServer() (*api.Server, error) {
	// Create all services
	healthService := sf.CreateHealthService()
	queueService := sf.CreateQueueService()
	workerControl := sf.CreateWorkerControl()
	breakerControl := sf.CreateBreakerControl()
	metricsQuery := sf.CreateMetricsQuery()
	errorHandler := sf.CreateErrorHandler()

	serverBuilder := api.NewServerBuilder(sf.config).
		WithHealthService(healthService).
		WithQueueService(queueService).
		WithWorkerControl(workerControl).
		WithBreakerControl(breakerControl).
		WithMetricsQuery(metricsQuery).
		WithErrorHandler(errorHandler)

	if runtime, err := sf.getRuntime(); err != nil {
		log.Printf("Runtime metrics unavailable: %v", err)
	} else {
		serverBuilder = serverBuilder.WithRuntimeCollector(runtime)
	}

	// Add middleware based on environment/config
	if sf.shouldEnableDefaultMiddleware() {
		serverBuilder = serverBuilder.WithDefaultMiddleware()
	}

	return serverBuilder.Build()
}

// shouldEnableDefaultMiddleware determines if the default middleware chain
// should be enabled. Unset means enabled.
func (sf *ServiceFactory) shouldEnableDefaultMiddleware() bool {
	return optionalFlag(sf.config.API.EnableDefaultMiddleware)
}

// shouldEnableCORSMiddleware reports whether CORS headers are enabled.
func (sf *ServiceFactory) shouldEnableCORSMiddleware() bool {
	return optionalFlag(sf.config.API.EnableCORS)
}

// shouldEnableSecurityMiddleware reports whether security headers are enabled.
func (sf *ServiceFactory) shouldEnableSecurityMiddleware() bool {
	return optionalFlag(sf.config.API.EnableSecurityHeaders)
}

// shouldEnableLoggingMiddleware reports whether request logging is enabled.
func (sf *ServiceFactory) shouldEnableLoggingMiddleware() bool {
	return optionalFlag(sf.config.API.EnableLogging)
}

// shouldEnableErrorHandlingMiddleware reports whether panic recovery is
// enabled.
func (sf *ServiceFactory) shouldEnableErrorHandlingMiddleware() bool {
	return optionalFlag(sf.config.API.EnableErrorHandling)
}

// optionalFlag treats an unset tri-state config switch as on.
func optionalFlag(flag *bool) bool {
	return flag == nil || *flag
}

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Start the HTTP API server that provides REST endpoints for
queue management and worker coordination.

The server provides endpoints for:
- Health checks
- Enqueueing embedding work and inspecting queue depth
- Worker start/stop/status control
- Circuit breaker status and reset
- Performance rollups and runtime metrics

The process also hosts a stopped queue worker, started on demand through
the worker control endpoint, and a NATS ingress consumer that accepts
enqueue requests published by producers.

Configuration is loaded from config files and environment variables.`,
	Run: runAPIServer,
}

func runAPIServer(cmd *cobra.Command, args []string) {
	// Load configuration
	cfg := config.New(viper.GetViper())

	// Create service factory
	serviceFactory := NewServiceFactory(cfg)

	// Create server using the factory
	server, err := serviceFactory.CreateServer()
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Bring up the event publisher before accepting traffic. A failed
	// connection degrades health rather than blocking startup; the
	// publisher reconnects on its own.
	if publisher, pubErr := serviceFactory.getEventPublisher(); pubErr == nil {
		if connectErr := publisher.Connect(); connectErr != nil {
			log.Printf("Event publisher connect failed, continuing degraded: %v", connectErr)
		}
	}

	// Start the NATS ingress consumer alongside the HTTP enqueue endpoint.
	consumer := serviceFactory.CreateEnqueueConsumer()
	if consumer != nil {
		if startErr := consumer.Start(context.Background()); startErr != nil {
			log.Printf("Enqueue ingress consumer failed to start: %v", startErr)
			consumer = nil
		}
	}

	// Start server with timeout
	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer startCancel()

	if err := server.Start(startCtx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Printf("API server started successfully on %s", server.Address())
	log.Printf("Server configuration: host=%s port=%s", server.Host(), server.Port())
	log.Printf("Middleware enabled: %d middleware components", server.MiddlewareCount())

	// Create a graceful shutdown handler
	gracefulShutdown(server, serviceFactory, consumer)
}

// gracefulShutdown handles graceful server shutdown with proper signal handling
func gracefulShutdown(server *api.Server, serviceFactory *ServiceFactory, consumer *ingress.EnqueueConsumer) {
	// Create a channel to receive OS signals
	sigChan := make(chan os.Signal, 1)

	// Register the channel to receive specific signals
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for a signal
	sig := <-sigChan
	log.Printf("Received signal: %v. Initiating graceful shutdown...", sig)

	// Create a context with timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
		os.Exit(1)
	}

	// Stop ingress before the worker so no new items arrive mid-drain.
	if consumer != nil {
		if err := consumer.Stop(shutdownCtx); err != nil {
			log.Printf("Error stopping enqueue ingress consumer: %v", err)
		}
	}

	// Drain the embedded worker; stopping an idle worker is a no-op.
	if _, err := serviceFactory.CreateWorkerControl().Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping embedded worker: %v", err)
	}

	if publisher, err := serviceFactory.getEventPublisher(); err == nil {
		if err := publisher.Disconnect(); err != nil {
			log.Printf("Error disconnecting event publisher: %v", err)
		}
	}

	if err := serviceFactory.Close(); err != nil {
		log.Printf("Error closing service factory: %v", err)
	}

	if runtime, err := serviceFactory.getRuntime(); err == nil {
		if err := runtime.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down runtime metrics: %v", err)
		}
	}

	log.Println("API server shut down gracefully")
}

func init() {
	rootCmd.AddCommand(apiCmd)
}
