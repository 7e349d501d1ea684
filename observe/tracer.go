package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ExecMeta describes one guarded execution for telemetry purposes.
type ExecMeta struct {
	ID     string // Execution ID, unique per top-level call
	Policy string // Policy kind, e.g. "retry" or "composite" (required)
	Name   string // Breaker, bulkhead or limiter name (optional)
}

// SpanName returns the deterministic span name for this execution.
// Format: resilience.<policy>.<name> or resilience.<policy>
func (m ExecMeta) SpanName() string {
	if m.Name != "" {
		return "resilience." + m.Policy + "." + m.Name
	}
	return "resilience." + m.Policy
}

func (m ExecMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("resilience.policy", m.Policy),
	}
	if m.ID != "" {
		attrs = append(attrs, attribute.String("resilience.exec_id", m.ID))
	}
	if m.Name != "" {
		attrs = append(attrs, attribute.String("resilience.name", m.Name))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with execution span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for an execution.
	StartSpan(ctx context.Context, meta ExecMeta) (context.Context, trace.Span)

	// AddEvent records a policy event on the span in ctx, if any.
	AddEvent(ctx context.Context, name string, meta ExecMeta)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// TracerFrom wraps an OpenTelemetry tracer.
func TracerFrom(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta ExecMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("resilience.error", false))

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) AddEvent(ctx context.Context, name string, meta ExecMeta) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(meta.attributes()...))
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("resilience.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a tracer that records nothing.
func NopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta ExecMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) AddEvent(context.Context, string, ExecMeta) {}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
