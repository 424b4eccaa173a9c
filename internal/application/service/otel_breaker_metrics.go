package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names following OpenTelemetry semantic conventions.
const (
	BreakerTransitionCounterName = "circuit_breaker_transitions_total"
	BreakerRejectionCounterName  = "circuit_breaker_rejections_total"
	BreakerResetCounterName      = "circuit_breaker_resets_total"
)

// Attribute keys for breaker metric labeling.
const (
	AttrBreakerFromState = "from_state"
	AttrBreakerToState   = "to_state"
	AttrBreakerActor     = "actor"
)

// breakerMetrics collects circuit breaker state-machine metrics.
type breakerMetrics struct {
	transitionsTotal metric.Int64Counter
	rejectionsTotal  metric.Int64Counter
	resetsTotal      metric.Int64Counter
}

func newBreakerMetrics() (*breakerMetrics, error) {
	meter := otel.Meter("embedqueue/service", metric.WithInstrumentationVersion("1.0.0"))

	transitionsTotal, err := meter.Int64Counter(
		BreakerTransitionCounterName,
		metric.WithDescription("Total number of circuit breaker state transitions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	rejectionsTotal, err := meter.Int64Counter(
		BreakerRejectionCounterName,
		metric.WithDescription("Total number of calls rejected while the circuit was open"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	resetsTotal, err := meter.Int64Counter(
		BreakerResetCounterName,
		metric.WithDescription("Total number of manual circuit breaker resets"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &breakerMetrics{
		transitionsTotal: transitionsTotal,
		rejectionsTotal:  rejectionsTotal,
		resetsTotal:      resetsTotal,
	}, nil
}

func (m *breakerMetrics) recordTransition(ctx context.Context, from, to CircuitState) {
	m.transitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrBreakerFromState, from.String()),
		attribute.String(AttrBreakerToState, to.String()),
	))
}

func (m *breakerMetrics) recordRejection(ctx context.Context) {
	m.rejectionsTotal.Add(ctx, 1)
}

func (m *breakerMetrics) recordReset(ctx context.Context, actor string) {
	m.resetsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrBreakerActor, actor),
	))
}
