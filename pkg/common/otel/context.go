package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceID returns the hex trace id carried by ctx. A context without a span
// yields the all-zero id, which the logger leaves out of log records.
func TraceID(ctx context.Context) string {
	return trace.SpanContextFromContext(ctx).TraceID().String()
}
