// Package extfx wires the extension bus into an fx application.
package extfx

import (
	"context"
	"log/slog"
	"os"

	"go.uber.org/fx"

	"github.com/next-trace/scg-extension-bus/adapters/inmemory"
	"github.com/next-trace/scg-extension-bus/adapters/kafka"
	"github.com/next-trace/scg-extension-bus/adapters/nats"
	"github.com/next-trace/scg-extension-bus/adapters/rabbitmq"
	"github.com/next-trace/scg-extension-bus/bridge"
	"github.com/next-trace/scg-extension-bus/config"
	"github.com/next-trace/scg-extension-bus/contract/ext"
	"github.com/next-trace/scg-extension-bus/eventbus"
	"github.com/next-trace/scg-extension-bus/executor"
	"github.com/next-trace/scg-extension-bus/interceptor"
	"github.com/next-trace/scg-extension-bus/observability"
)

// ChainOptions are the interceptor options derived from the module configuration.
// Build chains with interceptor.New[I](opts...).
type ChainOptions []interceptor.Option

// Result is the module output.
type Result struct {
	fx.Out

	Logger       *slog.Logger
	Executor     ext.Executor
	Metrics      observability.MetricsRecorder
	ChainOptions ChainOptions
}

// Module returns the fx module for cfg. decls declares the bus event types.
//
// When a broker bridge is configured every fired event is forwarded to it; otherwise
// events are mirrored into an in-memory publisher.
func Module(cfg config.Config, decls ...eventbus.Option) fx.Option {
	return fx.Module("extbus",
		fx.Supply(cfg),
		fx.Provide(
			provideCore,
			func(lc fx.Lifecycle, in busInput) (*eventbus.Bus, error) { return provideBus(lc, in, decls) },
			providePublisher,
		),
		fx.Invoke(registerForwarding),
	)
}

type coreInput struct {
	fx.In

	LC     fx.Lifecycle
	Config config.Config
}

func provideCore(in coreInput) (Result, error) {
	logger := in.Config.Log.Logger(os.Stderr)

	ex, stop, err := executor.FromConfig(in.Config.Executor)
	if err != nil {
		return Result{}, err
	}

	in.LC.Append(fx.Hook{
		OnStop: func(context.Context) error { return stop() },
	})

	metrics := observability.NewMetricsRecorder()

	return Result{
		Logger:   logger,
		Executor: ex,
		Metrics:  metrics,
		ChainOptions: ChainOptions{
			interceptor.WithExecutor(ex),
			interceptor.WithLogger(logger),
			interceptor.WithMetrics(metrics),
			interceptor.WithSpans(observability.NewSpanManager()),
		},
	}, nil
}

type busInput struct {
	fx.In

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
}

func provideBus(lc fx.Lifecycle, in busInput, decls []eventbus.Option) (*eventbus.Bus, error) {
	opts := append([]eventbus.Option{
		eventbus.WithBusLogger(in.Logger),
		eventbus.WithChannelOptions(eventbus.WithMetrics(in.Metrics)),
	}, decls...)

	b, err := eventbus.New(opts...)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return b.Close() },
	})

	return b, nil
}

type publisherInput struct {
	fx.In

	LC     fx.Lifecycle
	Config config.Config
	Logger *slog.Logger
}

// providePublisher picks the first configured bridge: NATS, then Kafka, then RabbitMQ.
func providePublisher(in publisherInput) (ext.EventPublisher, error) {
	br := in.Config.Bridges
	prop := observability.NewTraceContextPropagator()

	var (
		pub     ext.EventPublisher
		cleanup func()
		err     error
	)

	switch {
	case br.NATS.URL != "":
		var ad *nats.Adapter
		if ad, cleanup, err = nats.NewWithNATS(br.NATS); err == nil {
			ad.Propagator = prop
			pub = ad
		}
	case len(br.Kafka.Brokers) > 0:
		var ad *kafka.Adapter
		if ad, cleanup, err = kafka.NewWithKgo(br.Kafka); err == nil {
			ad.Propagator = prop
			pub = ad
		}
	case br.RabbitMQ.URL != "":
		var ad *rabbitmq.Adapter
		if ad, cleanup, err = rabbitmq.NewWithAMQPConn(br.RabbitMQ, in.Logger); err == nil {
			ad.Propagator = prop
			pub = ad
		}
	default:
		return inmemory.New(), nil
	}

	if err != nil {
		return nil, err
	}

	in.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cleanup()
			return nil
		},
	})

	return pub, nil
}

type forwardingInput struct {
	fx.In

	LC        fx.Lifecycle
	Bus       *eventbus.Bus
	Publisher ext.EventPublisher
	Logger    *slog.Logger
}

func registerForwarding(in forwardingInput) {
	var sub *eventbus.Subscription

	in.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var err error
			sub, err = bridge.ForwardAll(in.Bus, in.Publisher, bridge.WithLogger(in.Logger))

			return err
		},
		OnStop: func(context.Context) error {
			if sub == nil {
				return nil
			}

			return sub.Close()
		},
	})
}
