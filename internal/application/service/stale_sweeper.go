package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"embedqueue/internal/application/common"
	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/config"
	"embedqueue/internal/domain/messaging"
	"embedqueue/internal/domain/valueobject"
	"embedqueue/internal/port/outbound"
)

// StaleWorkerSweeper reclaims work from workers that stopped heartbeating
// without a clean shutdown. Each sweep finds registrations whose heartbeat
// predates the staleness window, marks them stopped, and releases their
// processing items back to pending so another worker picks them up. Items
// released this way keep their retry accounting untouched.
type StaleWorkerSweeper struct {
	registry  outbound.WorkerRegistry
	queue     outbound.QueueRepository
	publisher outbound.EventPublisher
	interval  time.Duration
	staleTTL  time.Duration
	logger    *slogger.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewStaleWorkerSweeper creates a sweeper. The sweep interval defaults to
// 30s; the staleness window defaults to three heartbeat intervals.
func NewStaleWorkerSweeper(
	registry outbound.WorkerRegistry,
	queue outbound.QueueRepository,
	publisher outbound.EventPublisher,
	cfg config.WorkerConfig,
) *StaleWorkerSweeper {
	if registry == nil {
		panic("NewStaleWorkerSweeper: registry cannot be nil")
	}
	if queue == nil {
		panic("NewStaleWorkerSweeper: queue repository cannot be nil")
	}
	if publisher == nil {
		panic("NewStaleWorkerSweeper: event publisher cannot be nil")
	}

	interval := cfg.StaleSweepEvery
	if interval <= 0 {
		interval = 30 * time.Second
	}
	staleTTL := cfg.StaleClaimTTL
	if staleTTL <= 0 {
		staleTTL = 3 * cfg.HeartbeatInterval
	}
	if staleTTL <= 0 {
		staleTTL = 90 * time.Second
	}

	return &StaleWorkerSweeper{
		registry:  registry,
		queue:     queue,
		publisher: publisher,
		interval:  interval,
		staleTTL:  staleTTL,
		logger:    slogger.WithComponent("stale-sweeper"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the sweep loop in a goroutine.
func (s *StaleWorkerSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("stale worker sweeper already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info(ctx, "starting stale worker sweeper", slogger.Fields2(
		"sweep_interval", s.interval.String(),
		"staleness_window", s.staleTTL.String(),
	))

	s.wg.Add(1)
	go s.sweepLoop(ctx)

	return nil
}

// Stop gracefully stops the sweep loop.
func (s *StaleWorkerSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.logger.InfoNoCtx("stale worker sweeper stopped", nil)
}

func (s *StaleWorkerSweeper) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.sweepOnce(ctx); err != nil {
				s.logger.ErrorWithError(ctx, err, "stale worker sweep failed", nil)
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweepOnce performs a single sweep cycle. A worker whose stop marker cannot
// be written keeps its claims for this cycle; claims are only released for
// workers the registry has durably marked stopped.
func (s *StaleWorkerSweeper) sweepOnce(ctx context.Context) error {
	staleBefore := time.Now().Add(-s.staleTTL)

	stale, err := s.registry.FindStale(ctx, staleBefore)
	if err != nil {
		return common.WrapServiceError(common.OpFindStaleWorkers, err)
	}
	if len(stale) == 0 {
		s.logger.Debug(ctx, "no stale workers", nil)
		return nil
	}

	workerIDs := make([]string, 0, len(stale))
	for _, worker := range stale {
		if err := s.registry.MarkStopped(ctx, worker.WorkerID()); err != nil {
			s.logger.ErrorWithError(ctx, err, "failed to mark stale worker stopped",
				slogger.Field("worker_id", worker.WorkerID()))
			continue
		}
		s.logger.Warn(ctx, "worker declared stale and marked stopped", slogger.Fields2(
			"worker_id", worker.WorkerID(),
			"last_heartbeat", worker.LastHeartbeat().Format(time.RFC3339),
		))
		workerIDs = append(workerIDs, worker.WorkerID())
	}
	if len(workerIDs) == 0 {
		return nil
	}

	released, err := s.queue.ReleaseStaleClaims(ctx, workerIDs)
	if err != nil {
		return common.WrapServiceError(common.OpReleaseClaims, err)
	}

	for _, item := range released {
		event := messaging.NewItemStateEvent(
			item.ID(),
			item.SourceType(),
			item.SourceID(),
			valueobject.ItemStatusProcessing,
			valueobject.ItemStatusPending,
			"",
			item.RetryCount(),
		)
		if err := s.publisher.PublishItemStateEvent(ctx, event); err != nil {
			s.logger.ErrorWithError(ctx, err, "failed to publish stale release event",
				slogger.Field("item_id", item.ID().String()))
		}
	}

	s.logger.Info(ctx, "stale claims released", slogger.Fields2(
		"workers", len(workerIDs),
		"items_released", len(released),
	))
	return nil
}
