package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newBridgeLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(NewSlogBridge(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

func TestSlogBridge_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := newBridgeLogger(&buf)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(tracetest.NewInMemoryExporter()),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "forward")
	defer span.End()

	logger.InfoContext(ctx, "forward delivered")

	out := buf.String()
	for _, want := range []string{"trace_id", "span_id", "forward delivered"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output, got: %s", want, out)
		}
	}
}

func TestSlogBridge_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	newBridgeLogger(&buf).With("rule_id", "r1").InfoContext(context.Background(), "plain")

	out := buf.String()
	if strings.Contains(out, "trace_id") {
		t.Fatalf("expected no trace_id without span, got: %s", out)
	}
	if !strings.Contains(out, "rule_id") {
		t.Fatalf("expected attrs to survive WithAttrs, got: %s", out)
	}
}
