// Package worker implements the processing side of the durable embedding
// queue: a lifecycle-managed worker that claims item batches, generates
// embeddings under circuit breaker protection, and routes every outcome back
// to the store, the event stream, and the outcome journal.
package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"embedqueue/internal/application/common"
	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/application/dto"
	"embedqueue/internal/config"
	"embedqueue/internal/domain/entity"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/domain/messaging"
	"embedqueue/internal/domain/valueobject"
	"embedqueue/internal/port/inbound"
	"embedqueue/internal/port/outbound"
)

// Fallbacks applied to unset worker configuration.
const (
	defaultBatchSize         = 5
	defaultPollInterval      = 5 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
	defaultItemTimeout       = 90 * time.Second
	defaultConcurrency       = 3

	// maxClaimBackoff caps the loop-level backoff applied after consecutive
	// claim failures.
	maxClaimBackoff = time.Minute
)

// EmbedWorker drives the durable queue: it claims batches, processes items
// with bounded parallelism, and heartbeats its registry record from a
// separate goroutine so liveness reporting is never delayed by a slow
// provider call. Start and Stop walk the
// stopped→starting→running→stopping→stopped lifecycle; a stop lets the
// in-flight batch finish before returning.
type EmbedWorker struct {
	cfg       config.WorkerConfig
	queue     outbound.QueueRepository
	registry  outbound.WorkerRegistry
	processor *ItemProcessor
	publisher outbound.EventPublisher
	logger    *slogger.Logger
	metrics   *workerMetrics

	mu         sync.Mutex // guards the lifecycle fields below
	status     valueobject.WorkerStatus
	workerID   string
	stopCh     chan struct{}
	cancelLoop context.CancelFunc
	wg         sync.WaitGroup

	regMu        sync.Mutex // serializes registration counter updates
	registration *entity.WorkerRegistration
}

var _ inbound.WorkerControl = (*EmbedWorker)(nil)

// NewEmbedWorker creates a stopped worker. Zero config values fall back to
// conservative defaults.
func NewEmbedWorker(
	queue outbound.QueueRepository,
	registry outbound.WorkerRegistry,
	processor *ItemProcessor,
	publisher outbound.EventPublisher,
	cfg config.WorkerConfig,
) (*EmbedWorker, error) {
	if queue == nil {
		panic("NewEmbedWorker: queue repository is required")
	}
	if registry == nil {
		panic("NewEmbedWorker: worker registry is required")
	}
	if processor == nil {
		panic("NewEmbedWorker: item processor is required")
	}
	if publisher == nil {
		panic("NewEmbedWorker: event publisher is required")
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaultItemTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	metrics, err := newWorkerMetrics()
	if err != nil {
		return nil, err
	}

	return &EmbedWorker{
		cfg:       cfg,
		queue:     queue,
		registry:  registry,
		processor: processor,
		publisher: publisher,
		logger:    slogger.WithComponent("embed-worker"),
		metrics:   metrics,
		status:    valueobject.WorkerStatusStopped,
	}, nil
}

// Start registers the worker and launches its run and heartbeat loops. The
// loops run on a context detached from the caller's so an expired start
// request cannot tear the worker down later.
func (w *EmbedWorker) Start(ctx context.Context) (*dto.WorkerStartResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != valueobject.WorkerStatusStopped {
		return nil, &domainerrors.AlreadyRunningError{WorkerID: w.workerID, Status: w.status.String()}
	}
	w.status = valueobject.WorkerStatusStarting

	workerID := entity.GenerateWorkerID()
	registration, err := entity.NewWorkerRegistration(workerID, entity.WorkerConfigSnapshot{
		BatchSize:         w.cfg.BatchSize,
		PollInterval:      w.cfg.PollInterval,
		HeartbeatInterval: w.cfg.HeartbeatInterval,
		ItemTimeout:       w.cfg.ItemTimeout,
		Concurrency:       w.cfg.Concurrency,
	})
	if err != nil {
		w.status = valueobject.WorkerStatusStopped
		return nil, err
	}

	if err := w.registry.Register(ctx, registration); err != nil {
		w.status = valueobject.WorkerStatusStopped
		return nil, common.WrapServiceError(common.OpRegisterWorker, err)
	}

	if err := registration.MarkRunning(); err != nil {
		w.status = valueobject.WorkerStatusStopped
		return nil, err
	}
	if err := w.registry.Update(ctx, registration); err != nil {
		// The record still says "starting"; the first heartbeat catches it up.
		w.logger.Warn(ctx, "failed to persist running status",
			slogger.Fields2("worker_id", workerID, "error", err.Error()))
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopCh := make(chan struct{})

	w.workerID = workerID
	w.registration = registration
	w.stopCh = stopCh
	w.cancelLoop = cancel
	w.status = valueobject.WorkerStatusRunning

	w.wg.Add(2)
	go w.runLoop(loopCtx, stopCh, workerID, registration)
	go w.heartbeatLoop(loopCtx, stopCh, registration)

	w.logger.Info(ctx, "worker started", slogger.Fields{
		"worker_id":   workerID,
		"batch_size":  w.cfg.BatchSize,
		"concurrency": w.cfg.Concurrency,
		"poll_every":  w.cfg.PollInterval.String(),
	})

	return &dto.WorkerStartResponse{
		Success:  true,
		WorkerID: workerID,
		Message:  "worker started",
	}, nil
}

// Stop signals the loops, waits for the in-flight batch to drain, marks the
// registry record stopped, and reports the final counters. Stopping an
// already stopped worker succeeds and reports the last run's stats.
func (w *EmbedWorker) Stop(ctx context.Context) (*dto.WorkerStopResponse, error) {
	w.mu.Lock()
	if w.status == valueobject.WorkerStatusStopped {
		stats := w.statsLocked()
		w.mu.Unlock()
		return &dto.WorkerStopResponse{
			Success: true,
			Message: "worker already stopped",
			Stats:   stats,
		}, nil
	}
	if w.status == valueobject.WorkerStatusRunning {
		w.status = valueobject.WorkerStatusStopping
		close(w.stopCh)
	}
	workerID := w.workerID
	registration := w.registration
	cancel := w.cancelLoop
	w.mu.Unlock()

	w.wg.Wait()
	cancel()

	w.regMu.Lock()
	if err := registration.MarkStopping(); err == nil {
		_ = registration.MarkStopped()
	}
	stats := dto.WorkerStopStats{
		WorkerID:       workerID,
		ProcessedCount: registration.TasksProcessed(),
		ErrorCount:     registration.ErrorCount(),
	}
	w.regMu.Unlock()

	if err := w.registry.MarkStopped(ctx, workerID); err != nil {
		w.logger.ErrorWithError(ctx, err, "failed to mark worker stopped in registry",
			slogger.Field("worker_id", workerID))
	}

	w.mu.Lock()
	w.status = valueobject.WorkerStatusStopped
	w.mu.Unlock()

	w.logger.Info(ctx, "worker stopped", slogger.Fields3(
		"worker_id", workerID,
		"tasks_processed", stats.ProcessedCount,
		"errors", stats.ErrorCount))

	return &dto.WorkerStopResponse{
		Success: true,
		Message: "worker stopped",
		Stats:   stats,
	}, nil
}

// Status reports the lifecycle state and, once the worker has run at least
// once, its counters.
func (w *EmbedWorker) Status(ctx context.Context) (*dto.WorkerStatusResponse, error) {
	w.mu.Lock()
	status := w.status
	registration := w.registration
	w.mu.Unlock()

	response := &dto.WorkerStatusResponse{
		Success:   true,
		IsRunning: status == valueobject.WorkerStatusRunning,
	}
	if registration != nil {
		w.regMu.Lock()
		response.Worker = common.EntityToWorkerStatusDetail(registration, response.IsRunning)
		w.regMu.Unlock()
	}
	return response, nil
}

// statsLocked snapshots the final counters. Caller holds mu.
func (w *EmbedWorker) statsLocked() dto.WorkerStopStats {
	if w.registration == nil {
		return dto.WorkerStopStats{}
	}
	w.regMu.Lock()
	defer w.regMu.Unlock()
	return dto.WorkerStopStats{
		WorkerID:       w.registration.WorkerID(),
		ProcessedCount: w.registration.TasksProcessed(),
		ErrorCount:     w.registration.ErrorCount(),
	}
}

// runLoop claims and processes batches until stopped. Claim failures back
// off exponentially and never terminate the loop.
func (w *EmbedWorker) runLoop(
	ctx context.Context,
	stopCh <-chan struct{},
	workerID string,
	registration *entity.WorkerRegistration,
) {
	defer w.wg.Done()

	claimFailures := 0
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		batch, err := w.queue.ClaimBatch(ctx, workerID, w.cfg.BatchSize)
		if err != nil {
			claimFailures++
			delay := claimBackoff(w.cfg.PollInterval, claimFailures)
			w.logger.ErrorWithError(ctx, err, "failed to claim batch, backing off", slogger.Fields3(
				"worker_id", workerID,
				"consecutive_failures", claimFailures,
				"retry_in", delay.String()))
			if !w.waitFor(ctx, stopCh, delay) {
				return
			}
			continue
		}
		claimFailures = 0

		if len(batch) == 0 {
			if !w.waitFor(ctx, stopCh, w.cfg.PollInterval) {
				return
			}
			continue
		}

		w.metrics.recordClaim(ctx, len(batch))
		w.publishClaimEvents(ctx, workerID, batch)
		w.processBatch(ctx, workerID, registration, batch)
	}
}

// processBatch fans the claimed items out across the concurrency budget and
// waits for all of them. Outcomes are routed per item; none abort the batch.
func (w *EmbedWorker) processBatch(
	ctx context.Context,
	workerID string,
	registration *entity.WorkerRegistration,
	batch []*entity.QueueItem,
) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.cfg.Concurrency)

	for _, item := range batch {
		group.Go(func() error {
			outcome := w.processor.Process(groupCtx, workerID, item)

			w.regMu.Lock()
			registration.RecordOutcome(outcome.Duration, outcome.Errored, outcome.RateLimited)
			w.regMu.Unlock()

			w.metrics.recordOutcome(groupCtx, outcome)
			return nil
		})
	}
	_ = group.Wait()
}

// publishClaimEvents announces each claim on the event stream. The status an
// item was claimed out of is recoverable from its last recorded gate: only a
// rate-limit deferral leaves error_type=rate_limited behind on a claimable
// item.
func (w *EmbedWorker) publishClaimEvents(ctx context.Context, workerID string, batch []*entity.QueueItem) {
	for _, item := range batch {
		event := messaging.NewItemStateEvent(
			item.ID(),
			item.SourceType(),
			item.SourceID(),
			claimedFrom(item),
			valueobject.ItemStatusProcessing,
			workerID,
			item.RetryCount(),
		)
		if err := w.publisher.PublishItemStateEvent(ctx, event); err != nil {
			w.logger.Warn(ctx, "failed to publish claim event",
				slogger.Fields2("item_id", item.ID().String(), "error", err.Error()))
		}
	}
}

func claimedFrom(item *entity.QueueItem) valueobject.ItemStatus {
	if errorType := item.ErrorType(); errorType != nil && *errorType == valueobject.ErrorTypeRateLimited {
		return valueobject.ItemStatusRateLimited
	}
	return valueobject.ItemStatusPending
}

// heartbeatLoop refreshes the registry record on a fixed cadence. It runs
// apart from the processing loop so a slow provider call cannot make the
// worker look dead to the liveness sweep.
func (w *EmbedWorker) heartbeatLoop(ctx context.Context, stopCh <-chan struct{}, registration *entity.WorkerRegistration) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.beat(ctx, registration)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// beat writes one heartbeat, carrying the current counters with it.
func (w *EmbedWorker) beat(ctx context.Context, registration *entity.WorkerRegistration) {
	w.regMu.Lock()
	registration.RecordHeartbeat()
	err := w.registry.Heartbeat(ctx, registration)
	w.regMu.Unlock()

	if err != nil {
		w.logger.Warn(ctx, "heartbeat write failed",
			slogger.Fields2("worker_id", registration.WorkerID(), "error", err.Error()))
	}
}

// waitFor sleeps for d unless the worker is stopped first. Returns false
// when the loop should exit.
func (w *EmbedWorker) waitFor(ctx context.Context, stopCh <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// claimBackoff doubles the poll interval per consecutive claim failure, up
// to maxClaimBackoff.
func claimBackoff(pollInterval time.Duration, failures int) time.Duration {
	delay := pollInterval
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= maxClaimBackoff {
			return maxClaimBackoff
		}
	}
	if delay > maxClaimBackoff {
		return maxClaimBackoff
	}
	return delay
}
