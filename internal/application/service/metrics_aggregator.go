package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"embedqueue/internal/application/common"
	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/application/dto"
	"embedqueue/internal/config"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/port/outbound"
)

// Rollup query windows when the caller supplies no since parameter.
const (
	defaultHourlyQueryWindow = 24 * time.Hour
	defaultDailyQueryWindow  = 30 * 24 * time.Hour
)

// MetricsAggregator rolls raw outcome events into hourly and daily buckets on
// a ticker and serves rollup queries. Every cycle recomputes all buckets that
// intersect the lookback window, so outcome events that arrive after their
// bucket was first aggregated are folded in on the next cycle. The rollup
// upsert is keyed (bucket_start, granularity), which makes recomputation
// idempotent. The aggregator is read-only with respect to item state.
type MetricsAggregator struct {
	outcomes outbound.OutcomeRepository
	interval time.Duration
	lookback time.Duration
	logger   *slogger.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewMetricsAggregator creates a metrics aggregator. The rollup interval and
// lookback window fall back to sane defaults when unset.
func NewMetricsAggregator(outcomes outbound.OutcomeRepository, cfg config.MetricsConfig) *MetricsAggregator {
	if outcomes == nil {
		panic("NewMetricsAggregator: outcomes repository cannot be nil")
	}

	if cfg.RollupInterval <= 0 {
		cfg.RollupInterval = 5 * time.Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 2 * time.Hour
	}

	return &MetricsAggregator{
		outcomes: outcomes,
		interval: cfg.RollupInterval,
		lookback: cfg.Lookback,
		logger:   slogger.WithComponent("metrics-aggregator"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the aggregation loop in a goroutine.
func (a *MetricsAggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errors.New("metrics aggregator already running")
	}
	a.running = true
	a.mu.Unlock()

	a.logger.Info(ctx, "starting metrics aggregator", slogger.Fields2(
		"rollup_interval", a.interval.String(),
		"lookback", a.lookback.String(),
	))

	a.wg.Add(1)
	go a.aggregationLoop(ctx)

	return nil
}

// Stop gracefully stops the aggregation loop.
func (a *MetricsAggregator) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	close(a.stopCh)
	a.wg.Wait()

	a.logger.InfoNoCtx("metrics aggregator stopped", nil)
}

func (a *MetricsAggregator) aggregationLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	// Run once immediately so rollups are fresh right after startup.
	a.aggregateOnce(ctx)

	for {
		select {
		case <-ticker.C:
			a.aggregateOnce(ctx)
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// aggregateOnce recomputes every hourly and daily bucket intersecting the
// lookback window. A failed bucket is logged and skipped; the remaining
// buckets are still recomputed.
func (a *MetricsAggregator) aggregateOnce(ctx context.Context) {
	now := time.Now()
	for _, granularity := range []outbound.RollupGranularity{outbound.RollupHourly, outbound.RollupDaily} {
		starts := bucketStartsWithin(now, a.lookback, granularity)

		failed := 0
		for _, bucketStart := range starts {
			if _, err := a.outcomes.AggregateBucket(ctx, bucketStart, granularity); err != nil {
				failed++
				a.logger.ErrorWithError(ctx, err, "rollup bucket aggregation failed", slogger.Fields2(
					"granularity", string(granularity),
					"bucket_start", bucketStart.Format(time.RFC3339),
				))
			}
		}

		a.logger.Debug(ctx, "rollup window recomputed", slogger.Fields3(
			"granularity", string(granularity),
			"buckets", len(starts),
			"failed", failed,
		))
	}
}

// bucketStartsWithin returns the aligned UTC starts of every bucket of the
// granularity that intersects [now-lookback, now], oldest first. The current
// (partial) bucket is always included.
func bucketStartsWithin(now time.Time, lookback time.Duration, granularity outbound.RollupGranularity) []time.Time {
	width := granularity.BucketWidth()
	first := now.Add(-lookback).UTC().Truncate(width)
	last := now.UTC().Truncate(width)

	starts := make([]time.Time, 0, last.Sub(first)/width+1)
	for bucket := first; !bucket.After(last); bucket = bucket.Add(width) {
		starts = append(starts, bucket)
	}
	return starts
}

// GetRollups returns stored rollups for the query, newest first. Defaults:
// hourly granularity, the last 24 hours (hourly) or 30 days (daily), limit 24.
func (a *MetricsAggregator) GetRollups(
	ctx context.Context,
	query dto.MetricsRollupQuery,
) (*dto.MetricsRollupListResponse, error) {
	common.ApplyRollupQueryDefaults(&query)

	granularity := outbound.RollupGranularity(query.Granularity)
	if granularity != outbound.RollupHourly && granularity != outbound.RollupDaily {
		return nil, domainerrors.NewValidationError("Granularity", "must be hourly or daily")
	}

	window := defaultHourlyQueryWindow
	if granularity == outbound.RollupDaily {
		window = defaultDailyQueryWindow
	}
	since := common.ParseSinceOrDefault(query.Since, window)

	rollups, err := a.outcomes.FindRollups(ctx, granularity, since, query.Limit)
	if err != nil {
		return nil, common.WrapServiceError(common.OpRetrieveRollups, err)
	}

	return common.RollupsToListResponse(granularity, rollups), nil
}
