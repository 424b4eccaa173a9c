package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"embedqueue/internal/application/common"
	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/application/dto"
	"embedqueue/internal/port/outbound"
)

// backlogAdvisoryThreshold is the backlog size above which the breaker status
// starts advising operators to add workers.
const backlogAdvisoryThreshold = 1000

// CircuitBreakerControlService exposes breaker observability and the audited
// operator reset. Status combines the breaker snapshot with the current queue
// backlog so operators see both the provider's health and how much work is
// piling up behind it.
type CircuitBreakerControlService struct {
	breaker  *EmbeddingCircuitBreaker
	queue    outbound.QueueRepository
	validate *validator.Validate
	logger   *slogger.Logger
}

// NewCircuitBreakerControlService creates the breaker control service.
func NewCircuitBreakerControlService(
	breaker *EmbeddingCircuitBreaker,
	queue outbound.QueueRepository,
) *CircuitBreakerControlService {
	if breaker == nil {
		panic("NewCircuitBreakerControlService: breaker cannot be nil")
	}
	if queue == nil {
		panic("NewCircuitBreakerControlService: queue repository cannot be nil")
	}

	return &CircuitBreakerControlService{
		breaker:  breaker,
		queue:    queue,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slogger.WithComponent("breaker-control"),
	}
}

// Status reports the breaker state alongside the queue backlog.
func (s *CircuitBreakerControlService) Status(ctx context.Context) (*dto.CircuitBreakerStatusResponse, error) {
	snapshot := s.breaker.Snapshot()

	depth, err := s.queue.QueueDepth(ctx)
	if err != nil {
		return nil, common.WrapServiceError(common.OpQueueDepth, err)
	}

	return &dto.CircuitBreakerStatusResponse{
		IsHealthy:      snapshot.State == CircuitClosed,
		CircuitState:   snapshot.State.String(),
		FailureCount:   snapshot.ConsecutiveFailures,
		QueueSize:      depth.Backlog(),
		Recommendation: breakerRecommendation(snapshot, depth),
	}, nil
}

// Reset forces the breaker closed on behalf of an operator. The request must
// carry the acting operator and a reason; both are logged with the reset.
func (s *CircuitBreakerControlService) Reset(
	ctx context.Context,
	request dto.CircuitBreakerResetRequest,
) (*dto.CircuitBreakerResetResponse, error) {
	if err := s.validate.Struct(request); err != nil {
		return nil, validationErrorFrom(err)
	}

	previous := s.breaker.Reset(ctx, request.Actor, request.Reason)

	return &dto.CircuitBreakerResetResponse{
		Success:       true,
		PreviousState: previous.String(),
		Message:       fmt.Sprintf("circuit breaker forced closed (was %s)", previous),
	}, nil
}

func breakerRecommendation(snapshot CircuitBreakerSnapshot, depth outbound.QueueDepth) string {
	switch snapshot.State {
	case CircuitOpen:
		return "provider calls are failing; check provider status before resetting"
	case CircuitHalfOpen:
		return "recovery trial in progress; wait for it to settle before intervening"
	default:
		if snapshot.ConsecutiveFailures > 0 {
			return "recent provider failures below threshold; monitor before scaling workers"
		}
		if depth.Backlog() > backlogAdvisoryThreshold {
			return "breaker healthy but backlog is large; consider adding workers"
		}
		return "healthy; no action needed"
	}
}
