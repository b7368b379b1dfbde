// Package observability provides metrics, tracing and header propagation for the
// extension bus. Every component accepts the interfaces declared here and falls back
// to the no-op implementations when none is configured.
//
// Metrics and spans use the global OpenTelemetry providers. Configure them before
// constructing recorders:
//
//	otel.SetMeterProvider(mp)
//	otel.SetTracerProvider(tp)
package observability
