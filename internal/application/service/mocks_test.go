package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"embedqueue/internal/domain/entity"
	"embedqueue/internal/domain/messaging"
	"embedqueue/internal/domain/valueobject"
	"embedqueue/internal/port/outbound"
)

// MockQueueRepository is a testify mock for outbound.QueueRepository.
type MockQueueRepository struct {
	mock.Mock
}

func (m *MockQueueRepository) Save(ctx context.Context, item *entity.QueueItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockQueueRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.QueueItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.QueueItem), args.Error(1)
}

func (m *MockQueueRepository) ClaimBatch(ctx context.Context, workerID string, batchSize int) ([]*entity.QueueItem, error) {
	args := m.Called(ctx, workerID, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.QueueItem), args.Error(1)
}

func (m *MockQueueRepository) Complete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockQueueRepository) Fail(
	ctx context.Context,
	id uuid.UUID,
	errorType valueobject.ErrorType,
	errorMessage string,
	policy outbound.RetryPolicy,
) (*entity.QueueItem, error) {
	args := m.Called(ctx, id, errorType, errorMessage, policy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.QueueItem), args.Error(1)
}

func (m *MockQueueRepository) MarkRateLimited(
	ctx context.Context,
	id uuid.UUID,
	delay time.Duration,
	maxDeferrals int,
) (*entity.QueueItem, error) {
	args := m.Called(ctx, id, delay, maxDeferrals)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.QueueItem), args.Error(1)
}

func (m *MockQueueRepository) ReleaseStaleClaims(ctx context.Context, workerIDs []string) ([]*entity.QueueItem, error) {
	args := m.Called(ctx, workerIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.QueueItem), args.Error(1)
}

func (m *MockQueueRepository) QueueDepth(ctx context.Context) (outbound.QueueDepth, error) {
	args := m.Called(ctx)
	return args.Get(0).(outbound.QueueDepth), args.Error(1)
}

// MockWorkerRegistry is a testify mock for outbound.WorkerRegistry.
type MockWorkerRegistry struct {
	mock.Mock
}

func (m *MockWorkerRegistry) Register(ctx context.Context, worker *entity.WorkerRegistration) error {
	args := m.Called(ctx, worker)
	return args.Error(0)
}

func (m *MockWorkerRegistry) FindByID(ctx context.Context, workerID string) (*entity.WorkerRegistration, error) {
	args := m.Called(ctx, workerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.WorkerRegistration), args.Error(1)
}

func (m *MockWorkerRegistry) Update(ctx context.Context, worker *entity.WorkerRegistration) error {
	args := m.Called(ctx, worker)
	return args.Error(0)
}

func (m *MockWorkerRegistry) Heartbeat(ctx context.Context, worker *entity.WorkerRegistration) error {
	args := m.Called(ctx, worker)
	return args.Error(0)
}

func (m *MockWorkerRegistry) FindStale(ctx context.Context, staleBefore time.Time) ([]*entity.WorkerRegistration, error) {
	args := m.Called(ctx, staleBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.WorkerRegistration), args.Error(1)
}

func (m *MockWorkerRegistry) MarkStopped(ctx context.Context, workerID string) error {
	args := m.Called(ctx, workerID)
	return args.Error(0)
}

// MockEventPublisher is a testify mock for outbound.EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishItemStateEvent(ctx context.Context, event messaging.ItemStateEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockOutcomeRepository is a testify mock for outbound.OutcomeRepository.
type MockOutcomeRepository struct {
	mock.Mock
}

func (m *MockOutcomeRepository) RecordOutcome(ctx context.Context, event outbound.OutcomeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockOutcomeRepository) AggregateBucket(
	ctx context.Context,
	bucketStart time.Time,
	granularity outbound.RollupGranularity,
) (*outbound.MetricsRollup, error) {
	args := m.Called(ctx, bucketStart, granularity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbound.MetricsRollup), args.Error(1)
}

func (m *MockOutcomeRepository) FindRollups(
	ctx context.Context,
	granularity outbound.RollupGranularity,
	since time.Time,
	limit int,
) ([]*outbound.MetricsRollup, error) {
	args := m.Called(ctx, granularity, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbound.MetricsRollup), args.Error(1)
}
