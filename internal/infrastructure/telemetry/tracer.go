package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer for the given instrumentation name
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartListingSpan starts a span for an operation scoped to one listing
func StartListingSpan(ctx context.Context, tracer trace.Tracer, operation, listingID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, operation, trace.WithAttributes(
		attribute.String("auction.listing_id", listingID),
		attribute.String("component", "bidding"),
	))
}

// StartDatabaseSpan starts a client span for a database operation
func StartDatabaseSpan(ctx context.Context, tracer trace.Tracer, operation, table string) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("db.%s %s", operation, table),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
			attribute.String("db.system", "postgresql"),
		))
}

// StartPublishSpan starts a producer span for an event publish
func StartPublishSpan(ctx context.Context, tracer trace.Tracer, channel string) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("publish %s", channel),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "redis"),
			attribute.String("messaging.destination.name", channel),
		))
}

// WithSpanError records an error and marks the span failed
func WithSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
