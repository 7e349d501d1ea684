package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse log output as JSON: %v\nOutput: %s", err, line)
		}
		entries = append(entries, entry)
	}
	return entries
}

// TestLogger_IncludesExecFields verifies execution fields are present in log output.
func TestLogger_IncludesExecFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.WithExec(ExecMeta{ID: "abc", Policy: "circuit_breaker", Name: "payments"}).
		Info(context.Background(), "test message")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["exec.id"] != "abc" {
		t.Errorf("expected exec.id='abc', got %v", e["exec.id"])
	}
	if e["exec.policy"] != "circuit_breaker" {
		t.Errorf("expected exec.policy='circuit_breaker', got %v", e["exec.policy"])
	}
	if e["exec.name"] != "payments" {
		t.Errorf("expected exec.name='payments', got %v", e["exec.name"])
	}
	if e["msg"] != "test message" || e["level"] != "info" {
		t.Errorf("unexpected msg/level: %v %v", e["msg"], e["level"])
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestLogger_ExecNameOmittedWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter("info", &buf).WithExec(ExecMeta{ID: "x", Policy: "retry"}).
		Info(context.Background(), "m")

	e := decodeLines(t, &buf)[0]
	if _, ok := e["exec.name"]; ok {
		t.Errorf("exec.name should be omitted, got %v", e["exec.name"])
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).With(Field{Key: "component", Value: "probe"})

	logger.Info(context.Background(), "a", Field{Key: "attempt", Value: 2})

	e := decodeLines(t, &buf)[0]
	if e["component"] != "probe" {
		t.Errorf("expected component='probe', got %v", e["component"])
	}
	if e["attempt"] != float64(2) {
		t.Errorf("expected attempt=2, got %v", e["attempt"])
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		level   string
		log     func(Logger)
		want    bool
		wantLvl string
	}{
		{"info", func(l Logger) { l.Debug(context.Background(), "m") }, false, ""},
		{"info", func(l Logger) { l.Info(context.Background(), "m") }, true, "info"},
		{"warn", func(l Logger) { l.Info(context.Background(), "m") }, false, ""},
		{"warn", func(l Logger) { l.Warn(context.Background(), "m") }, true, "warn"},
		{"error", func(l Logger) { l.Warn(context.Background(), "m") }, false, ""},
		{"error", func(l Logger) { l.Error(context.Background(), "m") }, true, "error"},
		{"debug", func(l Logger) { l.Debug(context.Background(), "m") }, true, "debug"},
		{"bogus", func(l Logger) { l.Info(context.Background(), "m") }, true, "info"},
	}

	for _, tc := range tests {
		t.Run(tc.level+"/"+tc.wantLvl, func(t *testing.T) {
			var buf bytes.Buffer
			tc.log(NewLoggerWithWriter(tc.level, &buf))

			if !tc.want {
				if buf.Len() != 0 {
					t.Errorf("expected no output, got %s", buf.String())
				}
				return
			}
			e := decodeLines(t, &buf)[0]
			if e["level"] != tc.wantLvl {
				t.Errorf("expected level %q, got %v", tc.wantLvl, e["level"])
			}
		})
	}
}

func TestLogger_SecretsRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "m",
		Field{Key: "token", Value: "s3cr3t"},
		Field{Key: "authorization", Value: "Bearer abc"},
		Field{Key: "url", Value: "http://example.com"},
	)

	out := buf.String()
	if strings.Contains(out, "s3cr3t") || strings.Contains(out, "Bearer abc") {
		t.Fatalf("secret leaked: %s", out)
	}
	e := decodeLines(t, &buf)[0]
	if e["token"] != "[REDACTED]" {
		t.Errorf("expected token redacted, got %v", e["token"])
	}
	if e["url"] != "http://example.com" {
		t.Errorf("expected url kept, got %v", e["url"])
	}
}

func TestLogger_TraceCorrelation(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	NewLoggerWithWriter("info", &buf).Info(ctx, "m")

	e := decodeLines(t, &buf)[0]
	if e["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace_id %s, got %v", span.SpanContext().TraceID(), e["trace_id"])
	}
	if e["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("expected span_id %s, got %v", span.SpanContext().SpanID(), e["span_id"])
	}
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.Info(context.Background(), "m")
	if l.With(Field{Key: "k", Value: 1}) == nil || l.WithExec(ExecMeta{Policy: "retry"}) == nil {
		t.Fatal("derived loggers should be non-nil")
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"":      LevelInfo,
	} {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
