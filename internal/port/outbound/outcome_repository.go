package outbound

import (
	"context"
	"time"

	"embedqueue/internal/domain/valueobject"

	"github.com/google/uuid"
)

// OutcomeEvent is one per-item processing outcome, appended by the worker
// when an item resolves. The metrics aggregator rolls these into buckets; the
// queue's own state is never derived from them.
type OutcomeEvent struct {
	ID            uuid.UUID
	ItemID        uuid.UUID
	SourceType    string
	WorkerID      string
	Outcome       valueobject.ItemStatus
	ErrorType     *valueobject.ErrorType
	Duration      time.Duration
	TokensUsed    int
	EstimatedCost float64
	OccurredAt    time.Time
}

// RollupGranularity selects the aggregation bucket width.
type RollupGranularity string

// Rollup granularity constants.
const (
	RollupHourly RollupGranularity = "hourly"
	RollupDaily  RollupGranularity = "daily"
)

// BucketWidth returns the bucket duration for the granularity.
func (g RollupGranularity) BucketWidth() time.Duration {
	if g == RollupDaily {
		return 24 * time.Hour
	}
	return time.Hour
}

// MetricsRollup is one aggregated bucket of outcome statistics. Rollups are
// keyed (bucket_start, granularity) and written with upsert semantics so
// re-aggregating a bucket is idempotent.
type MetricsRollup struct {
	BucketStart    time.Time         `json:"bucket_start"`
	Granularity    RollupGranularity `json:"granularity"`
	Attempts       int64             `json:"attempts"`
	Successes      int64             `json:"successes"`
	Failures       int64             `json:"failures"`
	FailuresByType map[string]int64  `json:"failures_by_type"`
	RateLimitHits  int64             `json:"rate_limit_hits"`
	P95DurationMS  float64           `json:"p95_duration_ms"`
	P99DurationMS  float64           `json:"p99_duration_ms"`
	TotalTokens    int64             `json:"total_tokens"`
	EstimatedCost  float64           `json:"estimated_cost"`
	ComputedAt     time.Time         `json:"computed_at"`
}

// OutcomeRepository defines the outbound port for outcome events and their
// aggregated rollups.
type OutcomeRepository interface {
	// RecordOutcome appends one outcome event.
	RecordOutcome(ctx context.Context, event OutcomeEvent) error

	// AggregateBucket recomputes and upserts the rollup for one bucket from
	// the raw events inside it, returning the stored rollup.
	AggregateBucket(
		ctx context.Context,
		bucketStart time.Time,
		granularity RollupGranularity,
	) (*MetricsRollup, error)

	// FindRollups returns rollups of the granularity starting at or after
	// since, newest first, bounded by limit.
	FindRollups(
		ctx context.Context,
		granularity RollupGranularity,
		since time.Time,
		limit int,
	) ([]*MetricsRollup, error)
}
