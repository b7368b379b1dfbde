package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		otel.SetMeterProvider(original)

		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutting down meter provider: %v", err)
		}
	})

	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}

	return nil
}

func sumOf(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "expected real metrics recorder, got noop")
}

func TestRecordFire(t *testing.T) {
	reader := setupMetricsTest(t)

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordFire(ctx, "orders", 3, 2*time.Millisecond, nil)
	m.RecordFire(ctx, "orders", 3, time.Millisecond, errors.New("listener failed"))

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "extbus.fire.count")))
	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "extbus.listener.errors")))
	assert.NotNil(t, findMetric(rm, "extbus.fire.latency_ms"))
	assert.NotNil(t, findMetric(rm, "extbus.fire.fanout"))
}

func TestRecordSubscription(t *testing.T) {
	reader := setupMetricsTest(t)

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordSubscription(ctx, "orders", 1)
	m.RecordSubscription(ctx, "orders", 1)
	m.RecordSubscription(ctx, "orders", -1)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "extbus.listener.active")))
}

func TestRecordInvocation(t *testing.T) {
	reader := setupMetricsTest(t)

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordInvocation(ctx, "save", "sync", 4, time.Millisecond, nil)
	m.RecordInvocation(ctx, "save", "async", 2, time.Millisecond, errors.New("stop"))

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "extbus.chain.invocations")))
	assert.Equal(t, int64(6), sumOf(t, findMetric(rm, "extbus.interceptor.completed")))
	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "extbus.interceptor.errors")))
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}

	assert.NotPanics(t, func() {
		m.RecordFire(context.Background(), "c", 1, time.Second, nil)
		m.RecordSubscription(context.Background(), "c", 1)
		m.RecordInvocation(context.Background(), "c", "sync", 1, time.Second, errors.New("x"))
	})
}
