package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ticketpilot"

// StartRunSpan starts a span for one run execution.
func StartRunSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
		),
	)
}

// StartStepSpan starts a span for one pipeline step attempt.
func StartStepSpan(ctx context.Context, runID, step string, attempt int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "step",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.name", step),
			attribute.Int("step.attempt", attempt),
		),
	)
}

// StartToolCallSpan starts a span for a tool call within a step.
func StartToolCallSpan(ctx context.Context, runID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("toolcall.tool", tool),
		),
	)
}
