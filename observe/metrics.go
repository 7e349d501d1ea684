package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records execution and policy event metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordExecution records a top-level execution with duration and error status.
	RecordExecution(ctx context.Context, meta ExecMeta, duration time.Duration, err error)

	// RecordEvent counts one policy event.
	RecordEvent(ctx context.Context, meta ExecMeta, event string)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	eventCount   metric.Int64Counter
}

// NewMetrics creates Metrics backed by meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"resilience.exec.total",
		metric.WithDescription("Total number of guarded executions"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"resilience.exec.errors",
		metric.WithDescription("Total number of failed guarded executions"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"resilience.exec.duration_ms",
		metric.WithDescription("Guarded execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	eventCount, err := meter.Int64Counter(
		"resilience.events",
		metric.WithDescription("Policy events by type"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
		eventCount:   eventCount,
	}, nil
}

func (m *metricsImpl) RecordExecution(ctx context.Context, meta ExecMeta, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("resilience.policy", meta.Policy),
	}
	if meta.Name != "" {
		attrs = append(attrs, attribute.String("resilience.name", meta.Name))
	}
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

func (m *metricsImpl) RecordEvent(ctx context.Context, meta ExecMeta, event string) {
	attrs := []attribute.KeyValue{
		attribute.String("resilience.policy", meta.Policy),
		attribute.String("resilience.event", event),
	}
	if meta.Name != "" {
		attrs = append(attrs, attribute.String("resilience.name", meta.Name))
	}
	m.eventCount.Add(ctx, 1, metric.WithAttributes(attrs...))
}

type noopMetrics struct{}

// NopMetrics returns metrics that record nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

func (noopMetrics) RecordExecution(context.Context, ExecMeta, time.Duration, error) {}

func (noopMetrics) RecordEvent(context.Context, ExecMeta, string) {}
