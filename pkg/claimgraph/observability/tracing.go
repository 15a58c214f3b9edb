package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("claimgraph")

// SpanManager handles span lifecycle for runs and stages.
// Use NewSpanManager for OpenTelemetry or NoopSpanManager when disabled.
type SpanManager interface {
	// StartRunSpan starts the root span of a run.
	StartRunSpan(ctx context.Context, runID string, subjects, maxRetries int) (context.Context, trace.Span)

	// StartStageSpan starts a child span for one stage invocation.
	StartStageSpan(ctx context.Context, stage string, attempt int) (context.Context, trace.Span)

	// EndSpan completes a span. A non-empty errMsg marks it as failed.
	EndSpan(span trace.Span, errMsg string)

	// AddSpanEvent adds an event to the span in ctx.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager backed by the global tracer provider.
func NewSpanManager() SpanManager {
	return otelSpanManager{}
}

func (otelSpanManager) StartRunSpan(ctx context.Context, runID string, subjects, maxRetries int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "claimgraph.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.subjects", subjects),
			attribute.Int("run.max_retries", maxRetries),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (otelSpanManager) StartStageSpan(ctx context.Context, stage string, attempt int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "claimgraph.stage."+stage,
		trace.WithAttributes(
			attribute.String("stage.name", stage),
			attribute.Int("stage.attempt", attempt),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (otelSpanManager) EndSpan(span trace.Span, errMsg string) {
	if span == nil {
		return
	}
	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
