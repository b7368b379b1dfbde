package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records extension bus metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordFire records one broadcast on a channel.
	RecordFire(ctx context.Context, channel string, listeners int, duration time.Duration, err error)

	// RecordSubscription tracks the number of live listeners on a channel.
	RecordSubscription(ctx context.Context, channel string, delta int64)

	// RecordInvocation records one chain invocation. completed is the number of
	// interceptors that returned successfully.
	RecordInvocation(ctx context.Context, chain string, mode string, completed int, duration time.Duration, err error)
}

type otelMetrics struct {
	fires           metric.Int64Counter
	fireLatency     metric.Float64Histogram
	fanout          metric.Int64Histogram
	listenerErrors  metric.Int64Counter
	activeListeners metric.Int64UpDownCounter
	invocations     metric.Int64Counter
	chainLatency    metric.Float64Histogram
	chainErrors     metric.Int64Counter
	steps           metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})

	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("extbus")

	fires, err := meter.Int64Counter("extbus.fire.count",
		metric.WithDescription("Number of events fired"),
	)
	if err != nil {
		return nil, err
	}

	fireLatency, err := meter.Float64Histogram("extbus.fire.latency_ms",
		metric.WithDescription("Time spent delivering one event to all listeners"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	fanout, err := meter.Int64Histogram("extbus.fire.fanout",
		metric.WithDescription("Number of listeners in the snapshot of one fire"),
	)
	if err != nil {
		return nil, err
	}

	listenerErrors, err := meter.Int64Counter("extbus.listener.errors",
		metric.WithDescription("Number of fires where at least one listener failed"),
	)
	if err != nil {
		return nil, err
	}

	activeListeners, err := meter.Int64UpDownCounter("extbus.listener.active",
		metric.WithDescription("Number of registered listeners"),
	)
	if err != nil {
		return nil, err
	}

	invocations, err := meter.Int64Counter("extbus.chain.invocations",
		metric.WithDescription("Number of interceptor chain invocations"),
	)
	if err != nil {
		return nil, err
	}

	chainLatency, err := meter.Float64Histogram("extbus.chain.latency_ms",
		metric.WithDescription("Interceptor chain invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	chainErrors, err := meter.Int64Counter("extbus.interceptor.errors",
		metric.WithDescription("Number of chain invocations stopped by an interceptor error"),
	)
	if err != nil {
		return nil, err
	}

	steps, err := meter.Int64Counter("extbus.interceptor.completed",
		metric.WithDescription("Number of interceptors that completed successfully"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		fires:           fires,
		fireLatency:     fireLatency,
		fanout:          fanout,
		listenerErrors:  listenerErrors,
		activeListeners: activeListeners,
		invocations:     invocations,
		chainLatency:    chainLatency,
		chainErrors:     chainErrors,
		steps:           steps,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel meter provider.
// If instrument creation fails it logs a warning and returns NoopMetrics.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))

		return NoopMetrics{}
	}

	return m
}

func (m *otelMetrics) RecordFire(ctx context.Context, channel string, listeners int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("channel", channel))

	m.fires.Add(ctx, 1, attrs)
	m.fireLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.fanout.Record(ctx, int64(listeners), attrs)

	if err != nil {
		m.listenerErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordSubscription(ctx context.Context, channel string, delta int64) {
	m.activeListeners.Add(ctx, delta, metric.WithAttributes(attribute.String("channel", channel)))
}

func (m *otelMetrics) RecordInvocation(
	ctx context.Context,
	chain string,
	mode string,
	completed int,
	duration time.Duration,
	err error,
) {
	attrs := metric.WithAttributes(
		attribute.String("chain", chain),
		attribute.String("mode", mode),
		attribute.Bool("success", err == nil),
	)

	m.invocations.Add(ctx, 1, attrs)
	m.chainLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.steps.Add(ctx, int64(completed), attrs)

	if err != nil {
		m.chainErrors.Add(ctx, 1, attrs)
	}
}
