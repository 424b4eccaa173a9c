package worker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names following OpenTelemetry semantic conventions.
const (
	WorkerClaimedCounterName    = "worker_items_claimed_total"
	WorkerOutcomeCounterName    = "worker_item_outcomes_total"
	WorkerDurationHistogramName = "worker_item_duration_seconds"
)

// Attribute keys for worker metric labeling.
const (
	AttrItemOutcome   = "outcome"
	AttrItemErrorType = "error_type"
)

// workerMetrics collects queue worker throughput metrics.
type workerMetrics struct {
	itemsClaimed metric.Int64Counter
	itemOutcomes metric.Int64Counter
	itemDuration metric.Float64Histogram
}

func newWorkerMetrics() (*workerMetrics, error) {
	meter := otel.Meter("embedqueue/worker", metric.WithInstrumentationVersion("1.0.0"))

	itemsClaimed, err := meter.Int64Counter(
		WorkerClaimedCounterName,
		metric.WithDescription("Total number of queue items claimed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	itemOutcomes, err := meter.Int64Counter(
		WorkerOutcomeCounterName,
		metric.WithDescription("Total number of item processing outcomes"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	itemDuration, err := meter.Float64Histogram(
		WorkerDurationHistogramName,
		metric.WithDescription("Per-item processing duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &workerMetrics{
		itemsClaimed: itemsClaimed,
		itemOutcomes: itemOutcomes,
		itemDuration: itemDuration,
	}, nil
}

func (m *workerMetrics) recordClaim(ctx context.Context, count int) {
	m.itemsClaimed.Add(ctx, int64(count))
}

func (m *workerMetrics) recordOutcome(ctx context.Context, outcome ItemOutcome) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrItemOutcome, outcome.resolution()),
	}
	if outcome.ErrorType != nil {
		attrs = append(attrs, attribute.String(AttrItemErrorType, outcome.ErrorType.String()))
	}

	m.itemOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.itemDuration.Record(ctx, outcome.Duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrItemOutcome, outcome.resolution()),
	))
}
