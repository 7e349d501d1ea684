package observe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t testing.TB) (*sdkmetric.ManualReader, Metrics) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return reader, m
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	found := findMetric(rm, name)
	if found == nil {
		return 0
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64] for %s, got %T", name, found.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// TestMetrics_TotalCounterIncrements verifies resilience.exec.total is incremented.
func TestMetrics_TotalCounterIncrements(t *testing.T) {
	reader, m := newTestMetrics(t)

	m.RecordExecution(context.Background(), ExecMeta{Policy: "retry"}, 100*time.Millisecond, nil)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "resilience.exec.total"); got != 1 {
		t.Errorf("expected count 1, got %d", got)
	}
	if got := sumValue(t, rm, "resilience.exec.errors"); got != 0 {
		t.Errorf("expected no errors, got %d", got)
	}
}

func TestMetrics_ErrorCounterOnFailure(t *testing.T) {
	reader, m := newTestMetrics(t)

	m.RecordExecution(context.Background(), ExecMeta{Policy: "timeout"}, time.Millisecond, errors.New("x"))

	if got := sumValue(t, collect(t, reader), "resilience.exec.errors"); got != 1 {
		t.Errorf("expected 1 error, got %d", got)
	}
}

func TestMetrics_DurationHistogramRecords(t *testing.T) {
	reader, m := newTestMetrics(t)

	m.RecordExecution(context.Background(), ExecMeta{Policy: "retry"}, 250*time.Millisecond, nil)

	found := findMetric(collect(t, reader), "resilience.exec.duration_ms")
	if found == nil {
		t.Fatal("resilience.exec.duration_ms metric not found")
	}
	hist, ok := found.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", found.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Sum != 250 {
		t.Errorf("expected one 250ms sample, got %+v", hist.DataPoints)
	}
}

func TestMetrics_EventLabels(t *testing.T) {
	reader, m := newTestMetrics(t)

	meta := ExecMeta{Policy: "circuit_breaker", Name: "payments"}
	m.RecordEvent(context.Background(), meta, "circuit_breaker.opened")
	m.RecordEvent(context.Background(), meta, "circuit_breaker.opened")

	found := findMetric(collect(t, reader), "resilience.events")
	if found == nil {
		t.Fatal("resilience.events metric not found")
	}
	sum := found.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 {
		t.Fatalf("expected 1 data point, got %d", len(sum.DataPoints))
	}
	dp := sum.DataPoints[0]
	if dp.Value != 2 {
		t.Errorf("expected 2, got %d", dp.Value)
	}
	for key, want := range map[attribute.Key]string{
		"resilience.policy": "circuit_breaker",
		"resilience.name":   "payments",
		"resilience.event":  "circuit_breaker.opened",
	} {
		if v, ok := dp.Attributes.Value(key); !ok || v.AsString() != want {
			t.Errorf("expected %s=%q, got %v", key, want, v)
		}
	}
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	reader, m := newTestMetrics(t)

	const numGoroutines = 50
	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordExecution(context.Background(), ExecMeta{Policy: "bulkhead", Name: "db"}, time.Millisecond, nil)
		}()
	}
	wg.Wait()

	if got := sumValue(t, collect(t, reader), "resilience.exec.total"); got != numGoroutines {
		t.Errorf("expected count %d, got %d", numGoroutines, got)
	}
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	m.RecordExecution(context.Background(), ExecMeta{Policy: "retry"}, time.Second, nil)
	m.RecordEvent(context.Background(), ExecMeta{Policy: "retry"}, "retry.exhausted")
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}
