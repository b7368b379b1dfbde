package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	berr "github.com/next-trace/scg-extension-bus/contract/errors"
	"github.com/next-trace/scg-extension-bus/contract/ext"
	"github.com/next-trace/scg-extension-bus/eventbus"
)

type options struct {
	publish ext.PublishOptions
	logger  *slog.Logger
}

// Option configures a bridge.
type Option func(*options)

// WithPublishOptions sets the options passed to every PublishEvent call.
func WithPublishOptions(o ext.PublishOptions) Option {
	return func(c *options) { c.publish = o }
}

// WithTopic publishes everything to topic, ignoring Topical and type names.
func WithTopic(topic string) Option {
	return func(c *options) { c.publish.TopicOverride = topic }
}

// WithLogger sets the structured logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *options) { c.logger = l }
}

func build(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	return o
}

// TopicOf returns the topic for v: its Topic() when v is ext.Topical, otherwise the
// name of its type with pointers stripped.
func TopicOf(v any) string {
	if t, ok := v.(ext.Topical); ok {
		return t.Topic()
	}

	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}

	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.Name() == "" {
		return t.String()
	}

	return t.Name()
}

func publisher(pub ext.EventPublisher, o options) func(ctx context.Context, v any) error {
	return func(ctx context.Context, v any) error {
		topic := TopicOf(v)
		if err := pub.PublishEvent(ctx, topic, v, o.publish); err != nil {
			o.logger.WarnContext(ctx, "bridge publish failed", slog.String("topic", topic), slog.Any("error", err))
			return err
		}

		o.logger.DebugContext(ctx, "bridge published", slog.String("topic", topic))

		return nil
	}
}

// Forward subscribes a listener on ch that publishes every fired event through pub.
// Closing the returned handle stops forwarding; dropping it lets the runtime stop it.
func Forward[E any](ch *eventbus.Channel[E], pub ext.EventPublisher, opts ...Option) (*eventbus.Subscription, error) {
	if pub == nil {
		return nil, fmt.Errorf("forward %s: %w", ch.Name(), berr.ErrBridgeNotConfigured)
	}

	send := publisher(pub, build(opts))

	return ch.Subscribe(func(ctx context.Context, e E) error { return send(ctx, e) })
}

// ForwardAll forwards every event type declared on b through pub.
func ForwardAll(b *eventbus.Bus, pub ext.EventPublisher, opts ...Option) (*eventbus.Subscription, error) {
	if pub == nil {
		return nil, fmt.Errorf("forward all: %w", berr.ErrBridgeNotConfigured)
	}

	return b.SubscribeAll(publisher(pub, build(opts)))
}

// Interceptor returns an interceptor for a chain over func(context.Context, A) error that
// publishes the invocation payload through pub. Register it at the priority the payload
// should be captured at.
func Interceptor[A any](pub ext.EventPublisher, opts ...Option) (func(ctx context.Context, args A) error, error) {
	if pub == nil {
		return nil, fmt.Errorf("interceptor: %w", berr.ErrBridgeNotConfigured)
	}

	send := publisher(pub, build(opts))

	return func(ctx context.Context, args A) error { return send(ctx, args) }, nil
}
