package outbound

import (
	"context"
	"time"

	"embedqueue/internal/domain/entity"
	"embedqueue/internal/domain/valueobject"

	"github.com/google/uuid"
)

// QueueRepository defines the outbound port for durable queue item state.
// ClaimBatch is the one hard storage requirement the rest of the design
// depends on: it must hand each eligible item to at most one caller even
// under concurrent claims from independent worker processes.
type QueueRepository interface {
	// Save persists a new pending item.
	Save(ctx context.Context, item *entity.QueueItem) error

	// FindByID loads a single item.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.QueueItem, error)

	// ClaimBatch atomically claims up to batchSize eligible items for the
	// worker, ordered by priority descending then creation time ascending.
	// Eligible items are pending, or rate_limited past their resume gate;
	// both respect the resume gate when one is set. Concurrent callers never
	// receive overlapping items.
	ClaimBatch(ctx context.Context, workerID string, batchSize int) ([]*entity.QueueItem, error)

	// Complete marks an item completed and records processed_at. Completing
	// an already completed item is a no-op, not an error.
	Complete(ctx context.Context, id uuid.UUID) error

	// Fail applies a budget-consuming failure: dead-letters the item when
	// its retry budget is exhausted, otherwise requeues it behind an
	// exponential backoff gate. Returns the updated item.
	Fail(
		ctx context.Context,
		id uuid.UUID,
		errorType valueobject.ErrorType,
		errorMessage string,
		policy RetryPolicy,
	) (*entity.QueueItem, error)

	// MarkRateLimited defers an item until now+delay without consuming its
	// retry budget. Dead-letters instead once the deferral budget is
	// exhausted. Returns the updated item.
	MarkRateLimited(
		ctx context.Context,
		id uuid.UUID,
		delay time.Duration,
		maxDeferrals int,
	) (*entity.QueueItem, error)

	// ReleaseStaleClaims returns processing items claimed by the given
	// workers to pending, clearing their claims. Used by the liveness sweep.
	ReleaseStaleClaims(ctx context.Context, workerIDs []string) ([]*entity.QueueItem, error)

	// QueueDepth reports per-status item counts.
	QueueDepth(ctx context.Context) (QueueDepth, error)
}

// RetryPolicy carries the backoff knobs applied when failing an item.
type RetryPolicy struct {
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// QueueDepth is a point-in-time snapshot of per-status item counts.
type QueueDepth struct {
	Pending     int64 `json:"pending"`
	Processing  int64 `json:"processing"`
	RateLimited int64 `json:"rate_limited"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
}

// Total returns the number of items across all statuses.
func (d QueueDepth) Total() int64 {
	return d.Pending + d.Processing + d.RateLimited + d.Completed + d.Failed
}

// Backlog returns the number of items still owed work.
func (d QueueDepth) Backlog() int64 {
	return d.Pending + d.Processing + d.RateLimited
}

// WorkerRegistry defines the outbound port for worker liveness records.
type WorkerRegistry interface {
	// Register persists a new worker registration.
	Register(ctx context.Context, worker *entity.WorkerRegistration) error

	// FindByID loads a worker registration.
	FindByID(ctx context.Context, workerID string) (*entity.WorkerRegistration, error)

	// Update persists lifecycle and counter changes.
	Update(ctx context.Context, worker *entity.WorkerRegistration) error

	// Heartbeat refreshes last_heartbeat and counters in one write.
	Heartbeat(ctx context.Context, worker *entity.WorkerRegistration) error

	// FindStale returns active workers whose heartbeat predates staleBefore.
	FindStale(ctx context.Context, staleBefore time.Time) ([]*entity.WorkerRegistration, error)

	// MarkStopped records a terminal status for the worker, used both for
	// clean shutdown and when the sweep declares a worker dead.
	MarkStopped(ctx context.Context, workerID string) error
}
