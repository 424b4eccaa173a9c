package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"embedqueue/internal/port/outbound"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	outcomeEventTable  = "embedqueue.embedding_queue_events"
	metricsRollupTable = "embedqueue.embedding_metrics_rollups"
)

// PostgreSQLOutcomeRepository implements the OutcomeRepository interface.
// Outcome events are append-only; rollups are derived from them and safe to
// recompute at any time.
type PostgreSQLOutcomeRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLOutcomeRepository creates a new PostgreSQL outcome repository.
func NewPostgreSQLOutcomeRepository(pool *pgxpool.Pool) *PostgreSQLOutcomeRepository {
	return &PostgreSQLOutcomeRepository{
		pool: pool,
	}
}

// RecordOutcome appends one outcome event.
func (r *PostgreSQLOutcomeRepository) RecordOutcome(ctx context.Context, event outbound.OutcomeEvent) error {
	query := `
		INSERT INTO embedqueue.embedding_queue_events (
			id, item_id, source_type, worker_id, outcome, error_type,
			duration_ms, tokens_used, estimated_cost, occurred_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	var errorType *string
	if event.ErrorType != nil {
		s := event.ErrorType.String()
		errorType = &s
	}

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		event.ID,
		event.ItemID,
		event.SourceType,
		event.WorkerID,
		event.Outcome.String(),
		errorType,
		event.Duration.Milliseconds(),
		event.TokensUsed,
		event.EstimatedCost,
		event.OccurredAt,
	)
	if err != nil {
		return WrapError(err, "record outcome event")
	}

	return nil
}

// AggregateBucket recomputes the rollup for one bucket from the raw events
// inside it and upserts the result. Re-running the same bucket overwrites the
// previous rollup with identical numbers, which makes the aggregation loop
// safe to repeat after crashes or overlapping schedules.
func (r *PostgreSQLOutcomeRepository) AggregateBucket(
	ctx context.Context,
	bucketStart time.Time,
	granularity outbound.RollupGranularity,
) (*outbound.MetricsRollup, error) {
	if granularity != outbound.RollupHourly && granularity != outbound.RollupDaily {
		return nil, ErrInvalidArgument
	}

	bucketStart = bucketStart.UTC().Truncate(granularity.BucketWidth())
	bucketEnd := bucketStart.Add(granularity.BucketWidth())

	aggregateQuery := `
		SELECT
			COUNT(*) AS attempts,
			COUNT(*) FILTER (WHERE outcome = 'completed') AS successes,
			COUNT(*) FILTER (WHERE outcome = 'failed') AS failures,
			COUNT(*) FILTER (WHERE outcome = 'rate_limited') AS rate_limit_hits,
			COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY duration_ms), 0) AS p95_ms,
			COALESCE(percentile_cont(0.99) WITHIN GROUP (ORDER BY duration_ms), 0) AS p99_ms,
			COALESCE(SUM(tokens_used), 0) AS total_tokens,
			COALESCE(SUM(estimated_cost), 0) AS estimated_cost
		FROM ` + outcomeEventTable + `
		WHERE occurred_at >= $1 AND occurred_at < $2`

	rollup := &outbound.MetricsRollup{
		BucketStart: bucketStart,
		Granularity: granularity,
	}

	qi := GetQueryInterface(ctx, r.pool)
	err := qi.QueryRow(ctx, aggregateQuery, bucketStart, bucketEnd).Scan(
		&rollup.Attempts,
		&rollup.Successes,
		&rollup.Failures,
		&rollup.RateLimitHits,
		&rollup.P95DurationMS,
		&rollup.P99DurationMS,
		&rollup.TotalTokens,
		&rollup.EstimatedCost,
	)
	if err != nil {
		return nil, WrapError(err, "aggregate outcome bucket")
	}

	failuresByType, err := r.aggregateFailuresByType(ctx, bucketStart, bucketEnd)
	if err != nil {
		return nil, err
	}
	rollup.FailuresByType = failuresByType

	failuresJSON, err := json.Marshal(failuresByType)
	if err != nil {
		return nil, fmt.Errorf("marshal failures by type: %w", err)
	}

	upsertQuery := `
		INSERT INTO embedqueue.embedding_metrics_rollups (
			bucket_start, granularity, attempts, successes, failures,
			failures_by_type, rate_limit_hits, p95_duration_ms, p99_duration_ms,
			total_tokens, estimated_cost, computed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, CURRENT_TIMESTAMP
		)
		ON CONFLICT (bucket_start, granularity) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			successes = EXCLUDED.successes,
			failures = EXCLUDED.failures,
			failures_by_type = EXCLUDED.failures_by_type,
			rate_limit_hits = EXCLUDED.rate_limit_hits,
			p95_duration_ms = EXCLUDED.p95_duration_ms,
			p99_duration_ms = EXCLUDED.p99_duration_ms,
			total_tokens = EXCLUDED.total_tokens,
			estimated_cost = EXCLUDED.estimated_cost,
			computed_at = EXCLUDED.computed_at
		RETURNING computed_at`

	err = qi.QueryRow(ctx, upsertQuery,
		rollup.BucketStart,
		string(rollup.Granularity),
		rollup.Attempts,
		rollup.Successes,
		rollup.Failures,
		failuresJSON,
		rollup.RateLimitHits,
		rollup.P95DurationMS,
		rollup.P99DurationMS,
		rollup.TotalTokens,
		rollup.EstimatedCost,
	).Scan(&rollup.ComputedAt)
	if err != nil {
		return nil, WrapError(err, "upsert metrics rollup")
	}

	return rollup, nil
}

// aggregateFailuresByType counts failed outcomes per error type in the bucket.
func (r *PostgreSQLOutcomeRepository) aggregateFailuresByType(
	ctx context.Context,
	bucketStart, bucketEnd time.Time,
) (map[string]int64, error) {
	query := `
		SELECT COALESCE(error_type, 'unknown'), COUNT(*)
		FROM ` + outcomeEventTable + `
		WHERE occurred_at >= $1 AND occurred_at < $2 AND outcome = 'failed'
		GROUP BY error_type`

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, bucketStart, bucketEnd)
	if err != nil {
		return nil, WrapError(err, "aggregate failures by type")
	}
	defer rows.Close()

	failures := make(map[string]int64)
	for rows.Next() {
		var errorType string
		var count int64
		if err := rows.Scan(&errorType, &count); err != nil {
			return nil, WrapError(err, "scan failure type row")
		}
		failures[errorType] = count
	}

	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate failure type rows")
	}

	return failures, nil
}

// FindRollups returns rollups of the granularity starting at or after since,
// newest first, bounded by limit.
func (r *PostgreSQLOutcomeRepository) FindRollups(
	ctx context.Context,
	granularity outbound.RollupGranularity,
	since time.Time,
	limit int,
) ([]*outbound.MetricsRollup, error) {
	if limit <= 0 {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT bucket_start, granularity, attempts, successes, failures,
		       failures_by_type, rate_limit_hits, p95_duration_ms, p99_duration_ms,
		       total_tokens, estimated_cost, computed_at
		FROM ` + metricsRollupTable + `
		WHERE granularity = $1 AND bucket_start >= $2
		ORDER BY bucket_start DESC
		LIMIT $3`

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, string(granularity), since, limit)
	if err != nil {
		return nil, WrapError(err, "find metrics rollups")
	}
	defer rows.Close()

	var rollups []*outbound.MetricsRollup
	for rows.Next() {
		var rollup outbound.MetricsRollup
		var granularityStr string
		var failuresJSON []byte

		err := rows.Scan(
			&rollup.BucketStart, &granularityStr, &rollup.Attempts, &rollup.Successes,
			&rollup.Failures, &failuresJSON, &rollup.RateLimitHits, &rollup.P95DurationMS,
			&rollup.P99DurationMS, &rollup.TotalTokens, &rollup.EstimatedCost, &rollup.ComputedAt,
		)
		if err != nil {
			return nil, WrapError(err, "scan metrics rollup row")
		}

		rollup.Granularity = outbound.RollupGranularity(granularityStr)
		if len(failuresJSON) > 0 {
			if err := json.Unmarshal(failuresJSON, &rollup.FailuresByType); err != nil {
				return nil, fmt.Errorf("unmarshal failures by type: %w", err)
			}
		}

		rollups = append(rollups, &rollup)
	}

	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate metrics rollup rows")
	}

	if rollups == nil {
		return []*outbound.MetricsRollup{}, nil
	}

	return rollups, nil
}
