package trace

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// InstrumentSessionStart creates a span for a new streaming session
func InstrumentSessionStart(ctx context.Context, clientID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "session.start",
		trace.WithAttributes(
			SessionAttrs(clientID)...,
		),
	)
}

// InstrumentSessionClosed creates a span for session teardown
func InstrumentSessionClosed(ctx context.Context, clientID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "session.closed",
		trace.WithAttributes(
			SessionAttrs(clientID)...,
		),
	)
}
