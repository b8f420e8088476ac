package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "mito-ai"

// StartCompletionSpan starts a span covering one completion request.
func StartCompletionSpan(ctx context.Context, requestType, messageID, providerName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "completion",
		trace.WithAttributes(
			attribute.String("completion.type", requestType),
			attribute.String("completion.message_id", messageID),
			attribute.String("completion.provider", providerName),
		),
	)
}

// StartEvalSpan starts a span covering one evaluation fixture.
func StartEvalSpan(ctx context.Context, fixture, promptName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "eval.fixture",
		trace.WithAttributes(
			attribute.String("eval.fixture", fixture),
			attribute.String("eval.prompt", promptName),
		),
	)
}
