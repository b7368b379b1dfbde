package observability

import (
	"context"

	"github.com/next-trace/scg-extension-bus/contract/ext"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContextPropagator injects W3C trace-context headers into outbound bridge messages.
type TraceContextPropagator struct {
	prop propagation.TextMapPropagator
}

var _ ext.HeaderPropagator = TraceContextPropagator{}

// NewTraceContextPropagator returns a propagator writing traceparent/tracestate and baggage.
func NewTraceContextPropagator() TraceContextPropagator {
	return TraceContextPropagator{
		prop: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	}
}

func (p TraceContextPropagator) Inject(ctx context.Context, headers map[string]string) {
	if p.prop == nil || headers == nil {
		return
	}

	p.prop.Inject(ctx, propagation.MapCarrier(headers))
}
