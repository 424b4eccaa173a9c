package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"embedqueue/internal/application/common"
	"embedqueue/internal/application/dto"
	"embedqueue/internal/application/service"
	"embedqueue/internal/config"
	"embedqueue/internal/domain/entity"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/domain/valueobject"
	"embedqueue/internal/port/outbound"
)

type workerFixture struct {
	worker    *EmbedWorker
	queue     *MockQueueRepository
	registry  *MockWorkerRegistry
	publisher *MockEventPublisher
	outcomes  *MockOutcomeRepository
	provider  *MockEmbeddingProvider
}

func newWorkerFixture(t *testing.T, cfg config.WorkerConfig) *workerFixture {
	t.Helper()

	queue := new(MockQueueRepository)
	registry := new(MockWorkerRegistry)
	publisher := new(MockEventPublisher)
	outcomes := new(MockOutcomeRepository)
	provider := new(MockEmbeddingProvider)

	breaker, err := service.NewEmbeddingCircuitBreaker(service.CircuitBreakerSettings{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	})
	require.NoError(t, err)
	coordinator := service.NewRateLimitCoordinator(queue, config.RateLimitConfig{
		DefaultDelay: time.Minute,
		MaxDeferrals: 20,
	})

	processor := NewItemProcessor(provider, queue, outcomes, publisher, breaker, coordinator, ItemProcessorConfig{
		ItemTimeout: cfg.ItemTimeout,
	})

	embedWorker, err := NewEmbedWorker(queue, registry, processor, publisher, cfg)
	require.NoError(t, err)

	return &workerFixture{
		worker:    embedWorker,
		queue:     queue,
		registry:  registry,
		publisher: publisher,
		outcomes:  outcomes,
		provider:  provider,
	}
}

func quietWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		BatchSize:         2,
		PollInterval:      20 * time.Millisecond,
		HeartbeatInterval: time.Hour,
		ItemTimeout:       time.Second,
		Concurrency:       2,
	}
}

func (f *workerFixture) expectLifecycleWrites() {
	f.registry.On("Register", mock.Anything, mock.Anything).Return(nil)
	f.registry.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.registry.On("Heartbeat", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.registry.On("MarkStopped", mock.Anything, mock.AnythingOfType("string")).Return(nil)
}

func TestEmbedWorker_StartStatusAndDoubleStart(t *testing.T) {
	fixture := newWorkerFixture(t, quietWorkerConfig())
	fixture.expectLifecycleWrites()
	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 2).Return([]*entity.QueueItem{}, nil)

	start, err := fixture.worker.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, start.Success)
	assert.True(t, strings.HasPrefix(start.WorkerID, "worker-"))
	assert.Equal(t, "worker started", start.Message)

	status, err := fixture.worker.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.IsRunning)
	require.NotNil(t, status.Worker)
	assert.Equal(t, start.WorkerID, status.Worker.WorkerID)
	assert.Equal(t, 2, status.Worker.Config.BatchSize)
	assert.Equal(t, int64(20), status.Worker.Config.PollIntervalMS)

	_, err = fixture.worker.Start(context.Background())
	var alreadyRunning *domainerrors.AlreadyRunningError
	require.ErrorAs(t, err, &alreadyRunning)
	assert.Equal(t, start.WorkerID, alreadyRunning.WorkerID)
	assert.Equal(t, valueobject.WorkerStatusRunning.String(), alreadyRunning.Status)

	_, err = fixture.worker.Stop(context.Background())
	require.NoError(t, err)

	status, err = fixture.worker.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.IsRunning)
}

func TestEmbedWorker_StartFailsWhenRegistrationFails(t *testing.T) {
	fixture := newWorkerFixture(t, quietWorkerConfig())
	fixture.registry.On("Register", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()

	_, err := fixture.worker.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), common.OpRegisterWorker)

	status, statusErr := fixture.worker.Status(context.Background())
	require.NoError(t, statusErr)
	assert.False(t, status.IsRunning)
	assert.Nil(t, status.Worker)

	// A failed start leaves the worker startable.
	fixture.registry.On("Register", mock.Anything, mock.Anything).Return(nil).Once()
	fixture.registry.On("Update", mock.Anything, mock.Anything).Return(nil)
	fixture.registry.On("MarkStopped", mock.Anything, mock.Anything).Return(nil)
	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 2).Return([]*entity.QueueItem{}, nil)

	start, err := fixture.worker.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, start.Success)

	_, err = fixture.worker.Stop(context.Background())
	require.NoError(t, err)
}

func TestEmbedWorker_ProcessesClaimedBatch(t *testing.T) {
	fixture := newWorkerFixture(t, quietWorkerConfig())
	fixture.expectLifecycleWrites()

	first := claimedItem(t, "receipts")
	second := claimedItem(t, "claims")

	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 2).
		Return([]*entity.QueueItem{first, second}, nil).Once()
	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 2).
		Return([]*entity.QueueItem{}, nil)

	fixture.provider.On("GenerateEmbeddings", mock.Anything, mock.Anything).
		Return(&outbound.EmbeddingResult{Success: true, TotalTokens: 100, EmbeddingsGenerated: 2}, nil)

	var mu sync.Mutex
	completed := 0
	fixture.queue.On("Complete", mock.Anything, mock.Anything).
		Run(func(_ mock.Arguments) {
			mu.Lock()
			completed++
			mu.Unlock()
		}).
		Return(nil)

	fixture.publisher.On("PublishItemStateEvent", mock.Anything, mock.Anything).Return(nil)
	fixture.outcomes.On("RecordOutcome", mock.Anything, mock.Anything).Return(nil)

	start, err := fixture.worker.Start(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return completed == 2
	}, 2*time.Second, 10*time.Millisecond, "both claimed items should complete")

	stop, err := fixture.worker.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start.WorkerID, stop.Stats.WorkerID)
	assert.Equal(t, int64(2), stop.Stats.ProcessedCount)
	assert.Zero(t, stop.Stats.ErrorCount)

	// Two claim events and two completion events.
	fixture.publisher.AssertNumberOfCalls(t, "PublishItemStateEvent", 4)
	fixture.registry.AssertCalled(t, "MarkStopped", mock.Anything, start.WorkerID)
}

func TestEmbedWorker_StopFinishesInFlightItem(t *testing.T) {
	fixture := newWorkerFixture(t, quietWorkerConfig())
	fixture.expectLifecycleWrites()

	item := claimedItem(t, "receipts")
	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 2).
		Return([]*entity.QueueItem{item}, nil).Once()
	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 2).
		Return([]*entity.QueueItem{}, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	fixture.provider.On("GenerateEmbeddings", mock.Anything, mock.Anything).
		Run(func(_ mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&outbound.EmbeddingResult{Success: true, TotalTokens: 10}, nil).Once()

	fixture.queue.On("Complete", mock.Anything, item.ID()).Return(nil)
	fixture.publisher.On("PublishItemStateEvent", mock.Anything, mock.Anything).Return(nil)
	fixture.outcomes.On("RecordOutcome", mock.Anything, mock.Anything).Return(nil)

	_, err := fixture.worker.Start(context.Background())
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("item never reached the provider")
	}

	stopDone := make(chan *dto.WorkerStopResponse, 1)
	go func() {
		response, stopErr := fixture.worker.Stop(context.Background())
		assert.NoError(t, stopErr)
		stopDone <- response
	}()

	select {
	case <-stopDone:
		t.Fatal("stop returned while an item was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)

	select {
	case response := <-stopDone:
		require.NotNil(t, response)
		assert.True(t, response.Success)
		assert.Equal(t, int64(1), response.Stats.ProcessedCount)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return after the in-flight item finished")
	}
}

func TestEmbedWorker_ClaimErrorsBackOffWithoutStopping(t *testing.T) {
	cfg := quietWorkerConfig()
	cfg.PollInterval = 10 * time.Millisecond

	fixture := newWorkerFixture(t, cfg)
	fixture.expectLifecycleWrites()

	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 2).
		Return(nil, errors.New("connection reset")).Twice()

	var mu sync.Mutex
	recovered := 0
	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 2).
		Run(func(_ mock.Arguments) {
			mu.Lock()
			recovered++
			mu.Unlock()
		}).
		Return([]*entity.QueueItem{}, nil)

	_, err := fixture.worker.Start(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return recovered >= 1
	}, 2*time.Second, 10*time.Millisecond, "worker should keep polling after claim errors")

	status, err := fixture.worker.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.IsRunning)

	_, err = fixture.worker.Stop(context.Background())
	require.NoError(t, err)
}

func TestEmbedWorker_HeartbeatsWhileItemProcessingIsStuck(t *testing.T) {
	cfg := quietWorkerConfig()
	cfg.HeartbeatInterval = 15 * time.Millisecond

	fixture := newWorkerFixture(t, cfg)
	fixture.registry.On("Register", mock.Anything, mock.Anything).Return(nil)
	fixture.registry.On("Update", mock.Anything, mock.Anything).Return(nil)
	fixture.registry.On("MarkStopped", mock.Anything, mock.Anything).Return(nil)

	var mu sync.Mutex
	beats := 0
	fixture.registry.On("Heartbeat", mock.Anything, mock.Anything).
		Run(func(_ mock.Arguments) {
			mu.Lock()
			beats++
			mu.Unlock()
		}).
		Return(nil)

	item := claimedItem(t, "receipts")
	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 2).
		Return([]*entity.QueueItem{item}, nil).Once()
	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 2).
		Return([]*entity.QueueItem{}, nil)

	release := make(chan struct{})
	fixture.provider.On("GenerateEmbeddings", mock.Anything, mock.Anything).
		Run(func(_ mock.Arguments) { <-release }).
		Return(&outbound.EmbeddingResult{Success: true, TotalTokens: 10}, nil).Once()

	fixture.queue.On("Complete", mock.Anything, item.ID()).Return(nil)
	fixture.publisher.On("PublishItemStateEvent", mock.Anything, mock.Anything).Return(nil)
	fixture.outcomes.On("RecordOutcome", mock.Anything, mock.Anything).Return(nil)

	_, err := fixture.worker.Start(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return beats >= 2
	}, 2*time.Second, 5*time.Millisecond, "heartbeats should continue while processing is blocked")

	close(release)
	_, err = fixture.worker.Stop(context.Background())
	require.NoError(t, err)
}

func TestEmbedWorker_StopWhenAlreadyStopped(t *testing.T) {
	fixture := newWorkerFixture(t, quietWorkerConfig())

	stop, err := fixture.worker.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, stop.Success)
	assert.Equal(t, "worker already stopped", stop.Message)
	assert.Zero(t, stop.Stats.ProcessedCount)
	fixture.registry.AssertNotCalled(t, "MarkStopped", mock.Anything, mock.Anything)

	fixture.expectLifecycleWrites()
	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 2).Return([]*entity.QueueItem{}, nil)

	start, err := fixture.worker.Start(context.Background())
	require.NoError(t, err)
	_, err = fixture.worker.Stop(context.Background())
	require.NoError(t, err)

	again, err := fixture.worker.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "worker already stopped", again.Message)
	assert.Equal(t, start.WorkerID, again.Stats.WorkerID)
	fixture.registry.AssertNumberOfCalls(t, "MarkStopped", 1)
}

func TestEmbedWorker_BoundsBatchConcurrency(t *testing.T) {
	cfg := quietWorkerConfig()
	cfg.BatchSize = 4
	cfg.Concurrency = 1

	fixture := newWorkerFixture(t, cfg)
	fixture.expectLifecycleWrites()

	batch := []*entity.QueueItem{
		claimedItem(t, "receipts"),
		claimedItem(t, "receipts"),
		claimedItem(t, "receipts"),
		claimedItem(t, "receipts"),
	}
	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 4).Return(batch, nil).Once()
	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, 4).Return([]*entity.QueueItem{}, nil)

	var mu sync.Mutex
	inFlight, maxSeen := 0, 0
	fixture.provider.On("GenerateEmbeddings", mock.Anything, mock.Anything).
		Run(func(_ mock.Arguments) {
			mu.Lock()
			inFlight++
			if inFlight > maxSeen {
				maxSeen = inFlight
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
		}).
		Return(&outbound.EmbeddingResult{Success: true, TotalTokens: 10}, nil)

	var completedMu sync.Mutex
	completed := 0
	fixture.queue.On("Complete", mock.Anything, mock.Anything).
		Run(func(_ mock.Arguments) {
			completedMu.Lock()
			completed++
			completedMu.Unlock()
		}).
		Return(nil)
	fixture.publisher.On("PublishItemStateEvent", mock.Anything, mock.Anything).Return(nil)
	fixture.outcomes.On("RecordOutcome", mock.Anything, mock.Anything).Return(nil)

	_, err := fixture.worker.Start(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		completedMu.Lock()
		defer completedMu.Unlock()
		return completed == 4
	}, 2*time.Second, 10*time.Millisecond)

	_, err = fixture.worker.Stop(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxSeen, "concurrency limit of 1 should serialize item processing")
}

func TestEmbedWorker_AppliesConfigDefaults(t *testing.T) {
	fixture := newWorkerFixture(t, config.WorkerConfig{})
	fixture.expectLifecycleWrites()
	fixture.queue.On("ClaimBatch", mock.Anything, mock.Anything, defaultBatchSize).
		Return([]*entity.QueueItem{}, nil)

	_, err := fixture.worker.Start(context.Background())
	require.NoError(t, err)

	status, err := fixture.worker.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status.Worker)
	assert.Equal(t, defaultBatchSize, status.Worker.Config.BatchSize)
	assert.Equal(t, defaultPollInterval.Milliseconds(), status.Worker.Config.PollIntervalMS)
	assert.Equal(t, defaultHeartbeatInterval.Milliseconds(), status.Worker.Config.HeartbeatIntervalMS)
	assert.Equal(t, defaultItemTimeout.Milliseconds(), status.Worker.Config.ItemTimeoutMS)
	assert.Equal(t, defaultConcurrency, status.Worker.Config.Concurrency)

	_, err = fixture.worker.Stop(context.Background())
	require.NoError(t, err)
}

func TestClaimBackoff(t *testing.T) {
	tests := []struct {
		name     string
		poll     time.Duration
		failures int
		want     time.Duration
	}{
		{name: "first failure waits one poll interval", poll: 5 * time.Second, failures: 1, want: 5 * time.Second},
		{name: "second failure doubles", poll: 5 * time.Second, failures: 2, want: 10 * time.Second},
		{name: "fourth failure keeps doubling", poll: 5 * time.Second, failures: 4, want: 40 * time.Second},
		{name: "capped at one minute", poll: 5 * time.Second, failures: 10, want: time.Minute},
		{name: "large poll interval is capped immediately", poll: 2 * time.Minute, failures: 1, want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, claimBackoff(tt.poll, tt.failures))
		})
	}
}

func TestClaimedFrom(t *testing.T) {
	fresh := claimedItem(t, "receipts")
	assert.Equal(t, valueobject.ItemStatusPending, claimedFrom(fresh))

	deferred := claimedItem(t, "receipts")
	_, err := deferred.MarkRateLimited(time.Now().Add(-time.Second), 20)
	require.NoError(t, err)
	require.NoError(t, deferred.MarkProcessing("worker-1"))
	assert.Equal(t, valueobject.ItemStatusRateLimited, claimedFrom(deferred))

	requeued := claimedItem(t, "receipts")
	_, err = requeued.RecordFailure(valueobject.ErrorTypeTimeout, "deadline exceeded", time.Second, time.Minute)
	require.NoError(t, err)
	require.NoError(t, requeued.MarkProcessing("worker-1"))
	assert.Equal(t, valueobject.ItemStatusPending, claimedFrom(requeued))
}
