package eventbus

import (
	"log/slog"

	"github.com/next-trace/scg-extension-bus/observability"
)

// DeliveryPolicy controls what Fire does when a listener returns an error.
type DeliveryPolicy int

const (
	// DeliverAll runs every listener and returns all failures joined.
	DeliverAll DeliveryPolicy = iota
	// StopOnError returns the first failure and skips the remaining listeners.
	StopOnError
)

type channelConfig struct {
	name    string
	policy  DeliveryPolicy
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// ChannelOption configures a Channel.
type ChannelOption func(*channelConfig)

// WithName sets the channel name used in errors, logs and metrics.
func WithName(name string) ChannelOption {
	return func(c *channelConfig) { c.name = name }
}

// WithDeliveryPolicy selects how listener errors affect the rest of a Fire.
func WithDeliveryPolicy(p DeliveryPolicy) ChannelOption {
	return func(c *channelConfig) { c.policy = p }
}

// WithStopOnError is shorthand for WithDeliveryPolicy(StopOnError).
func WithStopOnError() ChannelOption { return WithDeliveryPolicy(StopOnError) }

// WithLogger sets the structured logger. A nil logger discards output.
func WithLogger(l *slog.Logger) ChannelOption {
	return func(c *channelConfig) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) ChannelOption {
	return func(c *channelConfig) { c.metrics = m }
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }
