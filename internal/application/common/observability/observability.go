// Package observability wires the OpenTelemetry SDK with a manual reader so
// the process can snapshot its own instruments on demand. Instruments are
// created through the global otel.Meter; Install routes them here.
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Runtime owns the SDK meter provider and its manual reader.
type Runtime struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// NewRuntime builds a meter provider backed by a manual reader, tagged with
// the service identity.
func NewRuntime(serviceName, serviceVersion string) (*Runtime, error) {
	if serviceName == "" {
		return nil, errors.New("service name cannot be empty")
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	return &Runtime{reader: reader, provider: provider}, nil
}

// Install registers the provider globally so instruments created through
// otel.Meter record into this runtime.
func (r *Runtime) Install() {
	otel.SetMeterProvider(r.provider)
}

// MeterProvider returns the underlying provider for callers that wire
// instruments explicitly instead of through the global.
func (r *Runtime) MeterProvider() *sdkmetric.MeterProvider {
	return r.provider
}

// Shutdown flushes and stops the provider.
func (r *Runtime) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}

// RuntimeSnapshot is a JSON-friendly dump of every instrument the runtime
// currently tracks.
type RuntimeSnapshot struct {
	CollectedAt time.Time       `json:"collected_at"`
	Scopes      []ScopeSnapshot `json:"scopes"`
}

// ScopeSnapshot groups the metrics of one instrumentation scope.
type ScopeSnapshot struct {
	Name    string           `json:"name"`
	Version string           `json:"version,omitempty"`
	Metrics []MetricSnapshot `json:"metrics"`
}

// MetricSnapshot is one instrument with its current data points.
type MetricSnapshot struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Type        string          `json:"type"`
	Points      []PointSnapshot `json:"points"`
}

// PointSnapshot is one data point. Sums and gauges fill Value; histograms
// fill Count, Sum and the extrema.
type PointSnapshot struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      *float64          `json:"value,omitempty"`
	Count      *uint64           `json:"count,omitempty"`
	Sum        *float64          `json:"sum,omitempty"`
	Min        *float64          `json:"min,omitempty"`
	Max        *float64          `json:"max,omitempty"`
}

// Snapshot collects the current state of every instrument.
func (r *Runtime) Snapshot(ctx context.Context) (*RuntimeSnapshot, error) {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}

	snapshot := &RuntimeSnapshot{
		CollectedAt: time.Now(),
		Scopes:      make([]ScopeSnapshot, 0, len(rm.ScopeMetrics)),
	}

	for _, scope := range rm.ScopeMetrics {
		scopeSnap := ScopeSnapshot{
			Name:    scope.Scope.Name,
			Version: scope.Scope.Version,
			Metrics: make([]MetricSnapshot, 0, len(scope.Metrics)),
		}
		for _, m := range scope.Metrics {
			scopeSnap.Metrics = append(scopeSnap.Metrics, snapshotMetric(m))
		}
		snapshot.Scopes = append(snapshot.Scopes, scopeSnap)
	}

	return snapshot, nil
}

func snapshotMetric(m metricdata.Metrics) MetricSnapshot {
	snap := MetricSnapshot{
		Name:        m.Name,
		Description: m.Description,
		Unit:        m.Unit,
	}

	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		snap.Type = "sum"
		snap.Points = numberPoints(data.DataPoints)
	case metricdata.Sum[float64]:
		snap.Type = "sum"
		snap.Points = numberPoints(data.DataPoints)
	case metricdata.Gauge[int64]:
		snap.Type = "gauge"
		snap.Points = numberPoints(data.DataPoints)
	case metricdata.Gauge[float64]:
		snap.Type = "gauge"
		snap.Points = numberPoints(data.DataPoints)
	case metricdata.Histogram[int64]:
		snap.Type = "histogram"
		snap.Points = histogramPoints(data.DataPoints)
	case metricdata.Histogram[float64]:
		snap.Type = "histogram"
		snap.Points = histogramPoints(data.DataPoints)
	default:
		snap.Type = fmt.Sprintf("%T", m.Data)
	}

	return snap
}

func numberPoints[N int64 | float64](dps []metricdata.DataPoint[N]) []PointSnapshot {
	points := make([]PointSnapshot, 0, len(dps))
	for _, dp := range dps {
		value := float64(dp.Value)
		points = append(points, PointSnapshot{
			Attributes: attributesToMap(dp.Attributes),
			Value:      &value,
		})
	}
	return points
}

func histogramPoints[N int64 | float64](dps []metricdata.HistogramDataPoint[N]) []PointSnapshot {
	points := make([]PointSnapshot, 0, len(dps))
	for _, dp := range dps {
		count := dp.Count
		sum := float64(dp.Sum)
		point := PointSnapshot{
			Attributes: attributesToMap(dp.Attributes),
			Count:      &count,
			Sum:        &sum,
		}
		if minValue, ok := dp.Min.Value(); ok {
			v := float64(minValue)
			point.Min = &v
		}
		if maxValue, ok := dp.Max.Value(); ok {
			v := float64(maxValue)
			point.Max = &v
		}
		points = append(points, point)
	}
	return points
}

func attributesToMap(set attribute.Set) map[string]string {
	if set.Len() == 0 {
		return nil
	}

	attrs := make(map[string]string, set.Len())
	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	return attrs
}
