package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"embedqueue/internal/application/common"
	"embedqueue/internal/application/dto"
	"embedqueue/internal/config"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/port/outbound"
)

func TestBucketStartsWithin(t *testing.T) {
	now := time.Date(2026, 8, 25, 14, 37, 22, 0, time.UTC)

	t.Run("hourly buckets cover the lookback window and the current hour", func(t *testing.T) {
		starts := bucketStartsWithin(now, 2*time.Hour, outbound.RollupHourly)

		require.Equal(t, []time.Time{
			time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC),
		}, starts)
	})

	t.Run("daily granularity with a short lookback still covers today", func(t *testing.T) {
		starts := bucketStartsWithin(now, 2*time.Hour, outbound.RollupDaily)

		require.Equal(t, []time.Time{
			time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		}, starts)
	})

	t.Run("daily lookback crossing midnight includes yesterday", func(t *testing.T) {
		afterMidnight := time.Date(2026, 8, 25, 0, 30, 0, 0, time.UTC)
		starts := bucketStartsWithin(afterMidnight, 2*time.Hour, outbound.RollupDaily)

		require.Equal(t, []time.Time{
			time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		}, starts)
	})

	t.Run("non-UTC input is normalized to UTC bucket boundaries", func(t *testing.T) {
		zone := time.FixedZone("UTC+2", 2*60*60)
		local := time.Date(2026, 8, 25, 16, 37, 22, 0, zone) // 14:37:22 UTC

		starts := bucketStartsWithin(local, time.Hour, outbound.RollupHourly)

		require.Equal(t, []time.Time{
			time.Date(2026, 8, 25, 13, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC),
		}, starts)
	})
}

func TestMetricsAggregator_AggregateOnce(t *testing.T) {
	t.Run("recomputes hourly and daily windows", func(t *testing.T) {
		repo := new(MockOutcomeRepository)

		var (
			mu   sync.Mutex
			seen = map[outbound.RollupGranularity]int{}
		)
		repo.On("AggregateBucket", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				mu.Lock()
				seen[args.Get(2).(outbound.RollupGranularity)]++
				mu.Unlock()
			}).
			Return(&outbound.MetricsRollup{}, nil)

		aggregator := NewMetricsAggregator(repo, config.MetricsConfig{
			RollupInterval: time.Minute,
			Lookback:       2 * time.Hour,
		})
		aggregator.aggregateOnce(context.Background())

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, seen[outbound.RollupHourly], "a 2h lookback spans three hourly buckets")
		assert.GreaterOrEqual(t, seen[outbound.RollupDaily], 1)
	})

	t.Run("a failed bucket does not stop the remaining buckets", func(t *testing.T) {
		repo := new(MockOutcomeRepository)
		repo.On("AggregateBucket", mock.Anything, mock.Anything, outbound.RollupHourly).
			Return(nil, errors.New("bucket scan failed"))
		repo.On("AggregateBucket", mock.Anything, mock.Anything, outbound.RollupDaily).
			Return(&outbound.MetricsRollup{}, nil)

		aggregator := NewMetricsAggregator(repo, config.MetricsConfig{
			RollupInterval: time.Minute,
			Lookback:       time.Hour,
		})
		aggregator.aggregateOnce(context.Background())

		repo.AssertCalled(t, "AggregateBucket", mock.Anything, mock.Anything, outbound.RollupDaily)
	})
}

func TestMetricsAggregator_Lifecycle(t *testing.T) {
	repo := new(MockOutcomeRepository)

	var calls int
	var mu sync.Mutex
	repo.On("AggregateBucket", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			mu.Lock()
			calls++
			mu.Unlock()
		}).
		Return(&outbound.MetricsRollup{}, nil)

	aggregator := NewMetricsAggregator(repo, config.MetricsConfig{
		RollupInterval: 20 * time.Millisecond,
		Lookback:       time.Hour,
	})

	require.NoError(t, aggregator.Start(context.Background()))
	require.Error(t, aggregator.Start(context.Background()), "second start must be rejected")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 6 // at least two full cycles across both granularities
	}, 2*time.Second, 10*time.Millisecond)

	aggregator.Stop()
	aggregator.Stop() // second stop is a no-op
}

func TestMetricsAggregator_GetRollups(t *testing.T) {
	stored := []*outbound.MetricsRollup{
		{
			BucketStart:   time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC),
			Granularity:   outbound.RollupHourly,
			Attempts:      40,
			Successes:     37,
			Failures:      3,
			RateLimitHits: 2,
			P95DurationMS: 840,
			P99DurationMS: 1900,
			TotalTokens:   52000,
			EstimatedCost: 0.0052,
		},
	}

	t.Run("applies hourly defaults when the query is empty", func(t *testing.T) {
		repo := new(MockOutcomeRepository)
		repo.On("FindRollups", mock.Anything, outbound.RollupHourly, mock.MatchedBy(func(since time.Time) bool {
			return time.Since(since) > 23*time.Hour && time.Since(since) < 25*time.Hour
		}), common.DefaultRollupListLimit).Return(stored, nil)

		aggregator := NewMetricsAggregator(repo, config.MetricsConfig{})
		response, err := aggregator.GetRollups(context.Background(), dto.MetricsRollupQuery{})

		require.NoError(t, err)
		require.Len(t, response.Rollups, 1)
		assert.Equal(t, "hourly", response.Granularity)
		assert.Equal(t, int64(40), response.Rollups[0].Attempts)
		assert.Equal(t, int64(37), response.Rollups[0].Successes)
		repo.AssertExpectations(t)
	})

	t.Run("honors an explicit RFC3339 since", func(t *testing.T) {
		since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		repo := new(MockOutcomeRepository)
		repo.On("FindRollups", mock.Anything, outbound.RollupDaily, since, 7).
			Return([]*outbound.MetricsRollup{}, nil)

		aggregator := NewMetricsAggregator(repo, config.MetricsConfig{})
		response, err := aggregator.GetRollups(context.Background(), dto.MetricsRollupQuery{
			Granularity: "daily",
			Since:       since.Format(time.RFC3339),
			Limit:       7,
		})

		require.NoError(t, err)
		assert.Equal(t, "daily", response.Granularity)
		assert.Empty(t, response.Rollups)
		repo.AssertExpectations(t)
	})

	t.Run("rejects unknown granularity", func(t *testing.T) {
		repo := new(MockOutcomeRepository)

		aggregator := NewMetricsAggregator(repo, config.MetricsConfig{})
		_, err := aggregator.GetRollups(context.Background(), dto.MetricsRollupQuery{Granularity: "weekly"})

		var validationErr *domainerrors.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "Granularity", validationErr.Field)
		repo.AssertNotCalled(t, "FindRollups", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("wraps store failures", func(t *testing.T) {
		storeErr := errors.New("connection refused")
		repo := new(MockOutcomeRepository)
		repo.On("FindRollups", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, storeErr)

		aggregator := NewMetricsAggregator(repo, config.MetricsConfig{})
		_, err := aggregator.GetRollups(context.Background(), dto.MetricsRollupQuery{})

		require.ErrorIs(t, err, storeErr)
		assert.Contains(t, err.Error(), common.OpRetrieveRollups)
	})
}
