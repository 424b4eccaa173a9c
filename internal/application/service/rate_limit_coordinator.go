package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/config"
	"embedqueue/internal/domain/entity"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/port/outbound"
)

// RateLimitCoordinator turns provider throttle signals into scheduled
// deferrals. It never retries anything itself: it computes how long an item
// must wait (the provider's retry-after hint when present, the configured
// default otherwise) and gates the item until then. The worker's next poll
// naturally picks the item back up once eligible.
type RateLimitCoordinator struct {
	queue        outbound.QueueRepository
	defaultDelay time.Duration
	maxDeferrals int
	logger       *slogger.Logger

	mu         sync.Mutex
	perWorker  map[string]int64
	totalCount int64
}

// NewRateLimitCoordinator creates a coordinator with the configured default
// delay and deferral budget.
func NewRateLimitCoordinator(queue outbound.QueueRepository, cfg config.RateLimitConfig) *RateLimitCoordinator {
	return &RateLimitCoordinator{
		queue:        queue,
		defaultDelay: cfg.DefaultDelay,
		maxDeferrals: cfg.MaxDeferrals,
		logger:       slogger.WithComponent("rate-limit-coordinator"),
		perWorker:    make(map[string]int64),
	}
}

// DelayFor computes the deferral delay for a throttled response: the
// provider hint when one was supplied, the configured default otherwise.
func (c *RateLimitCoordinator) DelayFor(throttle *domainerrors.RateLimitedError) time.Duration {
	if throttle != nil && throttle.HasHint() {
		return throttle.RetryAfter
	}
	return c.defaultDelay
}

// ScheduleResume defers the item until the computed delay elapses. Deferrals
// never consume the retry budget; once the deferral budget itself is
// exhausted the store dead-letters the item instead. Returns the updated
// item so callers can observe which of the two happened.
func (c *RateLimitCoordinator) ScheduleResume(
	ctx context.Context,
	itemID uuid.UUID,
	workerID string,
	throttle *domainerrors.RateLimitedError,
) (*entity.QueueItem, error) {
	delay := c.DelayFor(throttle)

	item, err := c.queue.MarkRateLimited(ctx, itemID, delay, c.maxDeferrals)
	if err != nil {
		return nil, err
	}

	c.recordDeferral(workerID)

	fields := slogger.Fields{
		"item_id":   itemID.String(),
		"worker_id": workerID,
		"delay":     delay.String(),
		"hinted":    throttle != nil && throttle.HasHint(),
		"deferrals": item.RateLimitCount(),
	}
	if item.Status().IsTerminal() {
		c.logger.Warn(ctx, "rate limit deferral budget exhausted, item dead-lettered", fields)
	} else {
		c.logger.Info(ctx, "item deferred after provider throttle", fields)
	}
	return item, nil
}

func (c *RateLimitCoordinator) recordDeferral(workerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perWorker[workerID]++
	c.totalCount++
}

// WorkerDeferrals returns how many deferrals this coordinator has scheduled
// on behalf of the given worker since process start.
func (c *RateLimitCoordinator) WorkerDeferrals(workerID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perWorker[workerID]
}

// TotalDeferrals returns the process-wide deferral count.
func (c *RateLimitCoordinator) TotalDeferrals() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCount
}

// MaxDeferrals exposes the configured deferral budget.
func (c *RateLimitCoordinator) MaxDeferrals() int {
	return c.maxDeferrals
}
