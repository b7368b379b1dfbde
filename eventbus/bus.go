package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	berr "github.com/next-trace/scg-extension-bus/contract/errors"
	"github.com/next-trace/scg-extension-bus/contract/ext"
)

// dispatcher is the type-erased view of a Channel the Bus works with.
type dispatcher interface {
	Name() string
	Len() int
	Close() error
	subscribeAny(fn ext.AnyListener) (*Subscription, error)
	fireAny(ctx context.Context, e any) error
}

type declaration struct {
	typ  reflect.Type
	make func(opts []ChannelOption) dispatcher
}

type busConfig struct {
	decls       []declaration
	channelOpts []ChannelOption
	logger      *slog.Logger
}

// Option configures a Bus.
type Option func(*busConfig)

// Declare adds event type E to the bus. Each type gets its own Channel.
func Declare[E any]() Option {
	d := declaration{
		typ:  reflect.TypeFor[E](),
		make: func(opts []ChannelOption) dispatcher { return NewChannel[E](opts...) },
	}

	return func(c *busConfig) { c.decls = append(c.decls, d) }
}

// WithChannelOptions applies opts to every channel the bus creates.
func WithChannelOptions(opts ...ChannelOption) Option {
	return func(c *busConfig) { c.channelOpts = append(c.channelOpts, opts...) }
}

// WithBusLogger sets the logger for the bus and, unless overridden, its channels.
func WithBusLogger(l *slog.Logger) Option {
	return func(c *busConfig) { c.logger = l }
}

// Bus composes one Channel per declared event type behind a single API.
// The set of types is fixed at construction; Bus is concurrency-safe and holds no global state.
type Bus struct {
	channels map[reflect.Type]dispatcher
	order    []reflect.Type
	logger   *slog.Logger
}

// New constructs a Bus over the declared event types.
func New(opts ...Option) (*Bus, error) {
	var cfg busConfig
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.logger == nil {
		cfg.logger = discardLogger()
	}

	b := &Bus{
		channels: make(map[reflect.Type]dispatcher, len(cfg.decls)),
		order:    make([]reflect.Type, 0, len(cfg.decls)),
		logger:   cfg.logger,
	}

	chOpts := append([]ChannelOption{WithLogger(cfg.logger)}, cfg.channelOpts...)

	for _, d := range cfg.decls {
		if _, exists := b.channels[d.typ]; exists {
			return nil, fmt.Errorf("declare %s: %w", d.typ.String(), berr.ErrEventTypeExists)
		}

		named := append(chOpts[:len(chOpts):len(chOpts)], WithName(d.typ.String()))
		b.channels[d.typ] = d.make(named)
		b.order = append(b.order, d.typ)
	}

	return b, nil
}

// Types returns the declared event types in declaration order.
func (b *Bus) Types() []reflect.Type {
	return append([]reflect.Type(nil), b.order...)
}

// ChannelOf returns the channel backing event type E.
func ChannelOf[E any](b *Bus) (*Channel[E], error) {
	t := reflect.TypeFor[E]()

	d, ok := b.channels[t]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", t.String(), berr.ErrUnknownEventType)
	}

	ch, ok := d.(*Channel[E])
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", t.String(), berr.ErrUnknownEventType)
	}

	return ch, nil
}

// Subscribe registers fn on the channel for E only.
func Subscribe[E any](b *Bus, fn ext.Listener[E]) (*Subscription, error) {
	ch, err := ChannelOf[E](b)
	if err != nil {
		return nil, err
	}

	return ch.Subscribe(fn)
}

// Fire delivers e on the channel for E.
func Fire[E any](ctx context.Context, b *Bus, e E) error {
	ch, err := ChannelOf[E](b)
	if err != nil {
		return err
	}

	return ch.Fire(ctx, e)
}

// Fire delivers e on the channel declared for its dynamic type. When that type was not
// declared, e goes to the first declared interface type it implements, so a bus declared
// with Declare[fmt.Stringer]() accepts any Stringer here just like Fire[fmt.Stringer].
func (b *Bus) Fire(ctx context.Context, e any) error {
	t := reflect.TypeOf(e)
	if t == nil {
		return fmt.Errorf("fire <nil>: %w", berr.ErrUnknownEventType)
	}

	d, ok := b.channels[t]
	if !ok {
		d, ok = b.implementedBy(t)
	}

	if !ok {
		return fmt.Errorf("fire %s: %w", t.String(), berr.ErrUnknownEventType)
	}

	return d.fireAny(ctx, e)
}

func (b *Bus) implementedBy(t reflect.Type) (dispatcher, bool) {
	for _, it := range b.order {
		if it.Kind() == reflect.Interface && t.Implements(it) {
			return b.channels[it], true
		}
	}

	return nil, false
}

// SubscribeAll registers fn on every declared channel and returns one composite handle.
// fn only ever receives values of the channel it was invoked from; use a type switch to
// react to specific types and ignore the rest.
//
// If any channel rejects the subscription, the ones already made are released and the
// error is returned.
func (b *Bus) SubscribeAll(fn ext.AnyListener) (*Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe all: %w", berr.ErrNilListener)
	}

	children := make([]*Subscription, 0, len(b.order))

	for _, t := range b.order {
		sub, err := b.channels[t].subscribeAny(fn)
		if err != nil {
			for _, c := range children {
				_ = c.Close()
			}

			return nil, fmt.Errorf("subscribe all: %w", err)
		}

		children = append(children, sub)
	}

	b.logger.Debug("generic listener subscribed", slog.Int("channels", len(children)))

	return newCompositeSubscription(children), nil
}

// Close closes every channel of the bus.
func (b *Bus) Close() error {
	errs := make([]error, 0, len(b.order))
	for _, t := range b.order {
		errs = append(errs, b.channels[t].Close())
	}

	return errors.Join(errs...)
}
