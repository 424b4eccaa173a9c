package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"embedqueue/internal/application/dto"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/port/outbound"
)

func TestCircuitBreakerControlService_Status(t *testing.T) {
	t.Run("healthy closed breaker", func(t *testing.T) {
		breaker := newTestBreaker(t, 3, time.Minute)
		queue := new(MockQueueRepository)
		queue.On("QueueDepth", mock.Anything).Return(outbound.QueueDepth{
			Pending:    12,
			Processing: 3,
			Completed:  200,
		}, nil)

		control := NewCircuitBreakerControlService(breaker, queue)
		status, err := control.Status(context.Background())

		require.NoError(t, err)
		assert.True(t, status.IsHealthy)
		assert.Equal(t, "CLOSED", status.CircuitState)
		assert.Equal(t, int64(0), status.FailureCount)
		assert.Equal(t, int64(15), status.QueueSize, "queue size counts the backlog, not terminal items")
		assert.Equal(t, "healthy; no action needed", status.Recommendation)
	})

	t.Run("open breaker reports unhealthy with guidance", func(t *testing.T) {
		breaker := newTestBreaker(t, 2, time.Minute)
		for range 2 {
			_ = breaker.Execute(context.Background(), failingCall(errors.New("provider down")))
		}
		require.Equal(t, CircuitOpen, breaker.State())

		queue := new(MockQueueRepository)
		queue.On("QueueDepth", mock.Anything).Return(outbound.QueueDepth{Pending: 40}, nil)

		control := NewCircuitBreakerControlService(breaker, queue)
		status, err := control.Status(context.Background())

		require.NoError(t, err)
		assert.False(t, status.IsHealthy)
		assert.Equal(t, "OPEN", status.CircuitState)
		assert.Equal(t, int64(2), status.FailureCount)
		assert.Contains(t, status.Recommendation, "check provider status")
	})

	t.Run("large backlog on a healthy breaker suggests scaling", func(t *testing.T) {
		breaker := newTestBreaker(t, 3, time.Minute)
		queue := new(MockQueueRepository)
		queue.On("QueueDepth", mock.Anything).Return(outbound.QueueDepth{Pending: 5000}, nil)

		control := NewCircuitBreakerControlService(breaker, queue)
		status, err := control.Status(context.Background())

		require.NoError(t, err)
		assert.True(t, status.IsHealthy)
		assert.Contains(t, status.Recommendation, "adding workers")
	})

	t.Run("depth failure is wrapped", func(t *testing.T) {
		depthErr := errors.New("pool exhausted")
		queue := new(MockQueueRepository)
		queue.On("QueueDepth", mock.Anything).Return(outbound.QueueDepth{}, depthErr)

		control := NewCircuitBreakerControlService(newTestBreaker(t, 3, time.Minute), queue)
		_, err := control.Status(context.Background())

		require.ErrorIs(t, err, depthErr)
	})
}

func TestCircuitBreakerControlService_Reset(t *testing.T) {
	t.Run("forces an open breaker closed and reports the previous state", func(t *testing.T) {
		breaker := newTestBreaker(t, 1, time.Hour)
		_ = breaker.Execute(context.Background(), failingCall(errors.New("provider down")))
		require.Equal(t, CircuitOpen, breaker.State())

		control := NewCircuitBreakerControlService(breaker, new(MockQueueRepository))
		response, err := control.Reset(context.Background(), dto.CircuitBreakerResetRequest{
			Actor:  "ops@example.com",
			Reason: "provider incident resolved",
		})

		require.NoError(t, err)
		assert.True(t, response.Success)
		assert.Equal(t, "OPEN", response.PreviousState)
		assert.Contains(t, response.Message, "forced closed")
		assert.Equal(t, CircuitClosed, breaker.State())
	})

	t.Run("rejects a reset without an actor", func(t *testing.T) {
		control := NewCircuitBreakerControlService(newTestBreaker(t, 1, time.Hour), new(MockQueueRepository))

		_, err := control.Reset(context.Background(), dto.CircuitBreakerResetRequest{
			Reason: "no actor supplied",
		})

		var validationErr *domainerrors.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "Actor", validationErr.Field)
	})

	t.Run("rejects a reset without a reason", func(t *testing.T) {
		control := NewCircuitBreakerControlService(newTestBreaker(t, 1, time.Hour), new(MockQueueRepository))

		_, err := control.Reset(context.Background(), dto.CircuitBreakerResetRequest{
			Actor: "ops@example.com",
		})

		var validationErr *domainerrors.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "Reason", validationErr.Field)
	})
}
