// Package inbound defines the inbound ports (interfaces) for the application layer.
// These ports represent the entry points into the application's core business logic.
package inbound

import (
	"context"

	"embedqueue/internal/application/dto"

	"github.com/google/uuid"
)

// QueueService defines the inbound port for queue operations. Both the HTTP
// API and the NATS ingress consumer drive enqueueing through this port so
// metadata validation happens exactly once, at the boundary.
type QueueService interface {
	EnqueueItem(ctx context.Context, request dto.EnqueueItemRequest) (*dto.EnqueueItemResponse, error)
	GetItem(ctx context.Context, id uuid.UUID) (*dto.QueueItemResponse, error)
	QueueStatus(ctx context.Context) (*dto.QueueStatusResponse, error)
}

// HealthService defines the inbound port for health check operations.
type HealthService interface {
	GetHealth(ctx context.Context) (*dto.HealthResponse, error)
}

// MetricsQueryService defines the inbound port for rollup queries.
type MetricsQueryService interface {
	GetRollups(ctx context.Context, query dto.MetricsRollupQuery) (*dto.MetricsRollupListResponse, error)
}

// CircuitBreakerControl defines the inbound port for breaker observability
// and the audited operator reset.
type CircuitBreakerControl interface {
	Status(ctx context.Context) (*dto.CircuitBreakerStatusResponse, error)
	Reset(ctx context.Context, request dto.CircuitBreakerResetRequest) (*dto.CircuitBreakerResetResponse, error)
}
