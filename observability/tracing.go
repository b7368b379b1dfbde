package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("extbus")

// SpanManager handles trace span lifecycle for chain invocations.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartInvokeSpan starts a span covering one whole chain invocation.
	StartInvokeSpan(ctx context.Context, chain, mode string) (context.Context, trace.Span)

	// StartStepSpan starts a child span for a single interceptor.
	StartStepSpan(ctx context.Context, chain string, index int, priority int32) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses the global OTel tracer provider.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartInvokeSpan(ctx context.Context, chain, mode string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "extbus.chain."+mode,
		trace.WithAttributes(
			attribute.String("chain.name", chain),
			attribute.String("chain.mode", mode),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartStepSpan(
	ctx context.Context,
	chain string,
	index int,
	priority int32,
) (context.Context, trace.Span) {
	return tracer.Start(ctx, "extbus.interceptor",
		trace.WithAttributes(
			attribute.String("chain.name", chain),
			attribute.Int("interceptor.index", index),
			attribute.Int("interceptor.priority", int(priority)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}
