package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// spanContext returns a ctx carrying a recorded span plus the in-memory
// exporter holding whatever gets recorded on it.
func spanContext(t *testing.T, name string) (context.Context, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), name)
	t.Cleanup(func() { span.End() })
	return ctx, exp
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without a span = %q, want empty", got)
	}

	ctx, _ := spanContext(t, "wave")
	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("CorrelationID length = %d, want 32 hex chars", len(cid))
	}
	if strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("CorrelationID = %q, want lowercase hex", cid)
	}
}

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	ctx, span := StartSpan(context.Background(), "correct.wave")
	if CorrelationID(ctx) == "" {
		t.Error("StartSpan produced no trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "correct.wave" {
		t.Fatalf("recorded spans = %+v, want one named correct.wave", spans)
	}
}

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	// No span: the logger passes through untouched.
	if got := WithTrace(context.Background(), base); got != base {
		t.Error("WithTrace without a span must return the logger unchanged")
	}

	ctx, _ := spanContext(t, "log")
	WithTrace(ctx, base).Info("applied")
	line := buf.String()
	if !strings.Contains(line, "trace_id=") || !strings.Contains(line, "span_id=") {
		t.Errorf("log line missing trace attributes: %s", line)
	}
	if !strings.Contains(line, CorrelationID(ctx)) {
		t.Errorf("trace_id does not match the active span: %s", line)
	}
}

func TestWithTrace_NilLogger(t *testing.T) {
	if WithTrace(context.Background(), nil) == nil {
		t.Error("WithTrace(nil) must fall back to a usable logger")
	}
}
