package interceptor

import (
	"log/slog"

	"github.com/next-trace/scg-extension-bus/contract/ext"
	"github.com/next-trace/scg-extension-bus/observability"
)

type config struct {
	name     string
	executor ext.Executor
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
}

// Option configures a Chain.
type Option func(*config)

// WithName sets the chain name used in errors, logs, metrics and spans.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithExecutor sets the executor for async invocations. Without one, each async
// invocation gets its own goroutine.
func WithExecutor(ex ext.Executor) Option {
	return func(c *config) { c.executor = ex }
}

// WithLogger sets the structured logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *config) { c.metrics = m }
}

// WithSpans sets the span manager.
func WithSpans(s observability.SpanManager) Option {
	return func(c *config) { c.spans = s }
}
