package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracingTest(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	original := tracer
	tracer = provider.Tracer("extbus")

	t.Cleanup(func() {
		tracer = original
		_ = provider.Shutdown(context.Background())
	})

	return recorder
}

func TestSpanManager_InvokeAndSteps(t *testing.T) {
	recorder := setupTracingTest(t)
	sm := NewSpanManager()

	ctx, invokeSpan := sm.StartInvokeSpan(context.Background(), "save", "sync")
	_, step := sm.StartStepSpan(ctx, "save", 0, 10)
	sm.EndSpanWithError(step, nil)
	sm.EndSpanWithError(invokeSpan, errors.New("stopped"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "extbus.interceptor", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())

	assert.Equal(t, "extbus.chain.sync", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Len(t, spans[1].Events(), 1, "error should be recorded as an event")
}

func TestEndSpanWithError_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() { EndSpanWithError(nil, errors.New("x")) })
}

func TestNoopSpanManager(t *testing.T) {
	var sm SpanManager = NoopSpanManager{}

	ctx := context.Background()
	got, span := sm.StartInvokeSpan(ctx, "c", "sync")
	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())

	_, step := sm.StartStepSpan(ctx, "c", 0, 0)
	assert.NotPanics(t, func() { sm.EndSpanWithError(step, nil) })
}

func TestTraceContextPropagator_InjectsTraceparent(t *testing.T) {
	setupTracingTest(t)

	ctx, span := tracer.Start(context.Background(), "outbound")
	defer span.End()

	headers := map[string]string{}
	NewTraceContextPropagator().Inject(ctx, headers)

	assert.NotEmpty(t, headers["traceparent"])
}

func TestTraceContextPropagator_ZeroValueIsSafe(t *testing.T) {
	headers := map[string]string{}
	assert.NotPanics(t, func() { TraceContextPropagator{}.Inject(context.Background(), headers) })
	assert.Empty(t, headers)
}
