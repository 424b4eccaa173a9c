// Package registry provides service registration and dependency injection for the application.
package registry

import (
	"sync"

	"embedqueue/internal/application/service"
	"embedqueue/internal/application/worker"
	"embedqueue/internal/config"
	"embedqueue/internal/port/outbound"
)

// ServiceRegistry provides centralized service creation and management.
// It acts as a service factory ensuring consistent dependency injection
// patterns across the application. Services with shared state, the circuit
// breaker, the rate-limit coordinator and the metrics aggregator, are
// memoized so every consumer observes the same instance.
type ServiceRegistry struct {
	queue     outbound.QueueRepository
	workers   outbound.WorkerRegistry
	outcomes  outbound.OutcomeRepository
	publisher outbound.EventPublisher
	cfg       *config.Config

	breakerOnce sync.Once
	breaker     *service.EmbeddingCircuitBreaker
	breakerErr  error

	coordinatorOnce sync.Once
	coordinator     *service.RateLimitCoordinator

	aggregatorOnce sync.Once
	aggregator     *service.MetricsAggregator
}

// NewServiceRegistry creates a new service registry with required dependencies.
// All dependencies must be non-nil or the function will panic.
func NewServiceRegistry(
	queue outbound.QueueRepository,
	workers outbound.WorkerRegistry,
	outcomes outbound.OutcomeRepository,
	publisher outbound.EventPublisher,
	cfg *config.Config,
) *ServiceRegistry {
	if queue == nil {
		panic("queue repository cannot be nil")
	}
	if workers == nil {
		panic("worker registry cannot be nil")
	}
	if outcomes == nil {
		panic("outcome repository cannot be nil")
	}
	if publisher == nil {
		panic("event publisher cannot be nil")
	}
	if cfg == nil {
		panic("config cannot be nil")
	}

	return &ServiceRegistry{
		queue:     queue,
		workers:   workers,
		outcomes:  outcomes,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Queue Services

// QueueService returns a configured queue item service.
func (r *ServiceRegistry) QueueService() *service.QueueItemService {
	return service.NewQueueItemService(r.queue, r.publisher)
}

// MetricsAggregator returns the process-wide metrics aggregator. The same
// instance serves both the rollup ticker and the query endpoints.
func (r *ServiceRegistry) MetricsAggregator() *service.MetricsAggregator {
	r.aggregatorOnce.Do(func() {
		r.aggregator = service.NewMetricsAggregator(r.outcomes, r.cfg.Metrics)
	})
	return r.aggregator
}

// Provider-facing services

// CircuitBreaker returns the process-wide circuit breaker guarding the
// embedding provider. Workers and the breaker control endpoint must share
// this instance, so it is created once.
func (r *ServiceRegistry) CircuitBreaker() (*service.EmbeddingCircuitBreaker, error) {
	r.breakerOnce.Do(func() {
		r.breaker, r.breakerErr = service.NewEmbeddingCircuitBreaker(service.CircuitBreakerSettings{
			FailureThreshold: r.cfg.CircuitBreaker.FailureThreshold,
			ResetTimeout:     r.cfg.CircuitBreaker.OpenTimeout,
		})
	})
	return r.breaker, r.breakerErr
}

// RateLimitCoordinator returns the process-wide rate-limit coordinator.
func (r *ServiceRegistry) RateLimitCoordinator() *service.RateLimitCoordinator {
	r.coordinatorOnce.Do(func() {
		r.coordinator = service.NewRateLimitCoordinator(r.queue, r.cfg.RateLimit)
	})
	return r.coordinator
}

// BreakerControl returns the operator control surface over the shared
// circuit breaker.
func (r *ServiceRegistry) BreakerControl() (*service.CircuitBreakerControlService, error) {
	breaker, err := r.CircuitBreaker()
	if err != nil {
		return nil, err
	}
	return service.NewCircuitBreakerControlService(breaker, r.queue), nil
}

// Worker Services

// ItemProcessor returns a processor routing items through the given
// embedding provider, the shared breaker and the shared coordinator.
func (r *ServiceRegistry) ItemProcessor(provider outbound.EmbeddingProvider) (*worker.ItemProcessor, error) {
	breaker, err := r.CircuitBreaker()
	if err != nil {
		return nil, err
	}

	return worker.NewItemProcessor(
		provider,
		r.queue,
		r.outcomes,
		r.publisher,
		breaker,
		r.RateLimitCoordinator(),
		worker.ItemProcessorConfig{
			ItemTimeout: r.cfg.Worker.ItemTimeout,
			RetryPolicy: outbound.RetryPolicy{
				BackoffBase: r.cfg.Retry.BackoffBase,
				BackoffCap:  r.cfg.Retry.BackoffCap,
			},
			CostPerMillionTokens: r.cfg.Provider.CostPerMillionTokens,
		},
	), nil
}

// Worker returns a stopped embed worker wired to the given provider.
func (r *ServiceRegistry) Worker(provider outbound.EmbeddingProvider) (*worker.EmbedWorker, error) {
	processor, err := r.ItemProcessor(provider)
	if err != nil {
		return nil, err
	}
	return worker.NewEmbedWorker(r.queue, r.workers, processor, r.publisher, r.cfg.Worker)
}

// StaleSweeper returns the liveness sweep releasing claims of dead workers.
func (r *ServiceRegistry) StaleSweeper() *service.StaleWorkerSweeper {
	return service.NewStaleWorkerSweeper(r.workers, r.queue, r.publisher, r.cfg.Worker)
}
