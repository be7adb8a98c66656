package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	forwardTracerName = "relaybot.forward"
	dbTracerName      = "relaybot.database"
)

// StartForwardSpan starts a span for one step of forwarding a message.
//
//	ctx, span := telemetry.StartForwardSpan(ctx, "forward.dispatch",
//		attribute.String("rule.id", rule.ID))
//	defer span.End()
func StartForwardSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(forwardTracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartDBSpan starts a span for a database operation. The caller must
// call the returned end function when the operation completes.
func StartDBSpan(ctx context.Context, operation string) (context.Context, func()) {
	ctx, span := otel.Tracer(dbTracerName).Start(ctx, operation,
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
		),
	)
	return ctx, func() { span.End() }
}

// EndWithStatus records status on span and ends it. An empty errMsg marks success.
func EndWithStatus(span trace.Span, status, errMsg string) {
	span.SetAttributes(attribute.String("forward.status", status))
	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
	}
	span.End()
}
