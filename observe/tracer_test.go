package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestExecMeta_SpanName(t *testing.T) {
	tests := []struct {
		name     string
		meta     ExecMeta
		expected string
	}{
		{"named", ExecMeta{Policy: "bulkhead", Name: "db"}, "resilience.bulkhead.db"},
		{"unnamed", ExecMeta{Policy: "retry"}, "resilience.retry"},
		{"composite", ExecMeta{ID: "id", Policy: "composite"}, "resilience.composite"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.meta.SpanName(); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func newRecordingTracer() (*tracetest.SpanRecorder, Tracer) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return recorder, TracerFrom(tp.Tracer("test"))
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(kvs))
	for _, a := range kvs {
		m[string(a.Key)] = a.Value
	}
	return m
}

// TestTracer_SpanAttributes verifies all attributes are present on span.
func TestTracer_SpanAttributes(t *testing.T) {
	recorder, tr := newRecordingTracer()

	_, span := tr.StartSpan(context.Background(), ExecMeta{ID: "e1", Policy: "circuit_breaker", Name: "payments"})
	tr.EndSpan(span, nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "resilience.circuit_breaker.payments" {
		t.Errorf("unexpected span name %q", s.Name())
	}

	attrs := attrMap(s.Attributes())
	if v := attrs["resilience.policy"]; v.AsString() != "circuit_breaker" {
		t.Errorf("expected resilience.policy='circuit_breaker', got %v", v)
	}
	if v := attrs["resilience.name"]; v.AsString() != "payments" {
		t.Errorf("expected resilience.name='payments', got %v", v)
	}
	if v := attrs["resilience.exec_id"]; v.AsString() != "e1" {
		t.Errorf("expected resilience.exec_id='e1', got %v", v)
	}
	if v, ok := attrs["resilience.error"]; !ok || v.AsBool() {
		t.Errorf("expected resilience.error=false, got %v", v)
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", s.Status().Code)
	}
}

func TestTracer_ErrorRecording(t *testing.T) {
	recorder, tr := newRecordingTracer()

	_, span := tr.StartSpan(context.Background(), ExecMeta{Policy: "retry"})
	tr.EndSpan(span, errors.New("boom"))

	s := recorder.Ended()[0]
	if s.Status().Code != codes.Error || s.Status().Description != "boom" {
		t.Errorf("unexpected status %+v", s.Status())
	}
	if !attrMap(s.Attributes())["resilience.error"].AsBool() {
		t.Error("expected resilience.error=true")
	}
	if len(s.Events()) == 0 {
		t.Error("expected the error to be recorded as a span event")
	}
}

func TestTracer_AddEvent(t *testing.T) {
	recorder, tr := newRecordingTracer()

	ctx, span := tr.StartSpan(context.Background(), ExecMeta{Policy: "composite"})
	tr.AddEvent(ctx, "retry.scheduled", ExecMeta{Policy: "retry"})
	tr.EndSpan(span, nil)

	events := recorder.Ended()[0].Events()
	if len(events) != 1 || events[0].Name != "retry.scheduled" {
		t.Fatalf("expected one retry.scheduled event, got %+v", events)
	}

	// No span in context: must not panic.
	tr.AddEvent(context.Background(), "ignored", ExecMeta{Policy: "retry"})
}

func TestTracer_ContextPropagation(t *testing.T) {
	recorder, tr := newRecordingTracer()

	ctx, parent := tr.StartSpan(context.Background(), ExecMeta{Policy: "composite"})
	_, child := tr.StartSpan(ctx, ExecMeta{Policy: "retry"})
	tr.EndSpan(child, nil)
	tr.EndSpan(parent, nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("child span should have the outer span as parent")
	}
}

func TestNopTracer(t *testing.T) {
	tr := NopTracer()
	ctx, span := tr.StartSpan(context.Background(), ExecMeta{Policy: "retry"})
	tr.AddEvent(ctx, "e", ExecMeta{})
	tr.EndSpan(span, errors.New("x"))

	if TracerFrom(nil) == nil {
		t.Fatal("TracerFrom(nil) should return a no-op tracer")
	}
}
