package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	berr "github.com/next-trace/scg-extension-bus/contract/errors"
	"github.com/next-trace/scg-extension-bus/contract/ext"
	"github.com/next-trace/scg-extension-bus/observability"
)

// ListenerError wraps a failure returned by a single listener during Fire.
type ListenerError struct {
	Channel        string
	SubscriptionID uint64
	Err            error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("fire %s: listener %d: %v", e.Channel, e.SubscriptionID, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

type listener[E any] struct {
	id      uint64
	call    ext.Listener[E]
	removed atomic.Bool
}

// Channel holds the listeners for a single event type E.
//
// Channel is safe for concurrent use. The zero value is not usable; call NewChannel.
type Channel[E any] struct {
	mu        sync.RWMutex
	listeners []*listener[E] // registration order
	nextID    uint64
	closed    atomic.Bool

	name    string
	policy  DeliveryPolicy
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// NewChannel constructs an empty channel for events of type E.
func NewChannel[E any](opts ...ChannelOption) *Channel[E] {
	cfg := channelConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.name == "" {
		cfg.name = fmt.Sprintf("%s#%s", reflect.TypeFor[E]().String(), uuid.New().String()[:8])
	}

	if cfg.logger == nil {
		cfg.logger = discardLogger()
	}

	if cfg.metrics == nil {
		cfg.metrics = observability.NoopMetrics{}
	}

	return &Channel[E]{
		name:    cfg.name,
		policy:  cfg.policy,
		logger:  cfg.logger.With(slog.String("channel", cfg.name)),
		metrics: cfg.metrics,
	}
}

// Name returns the channel name.
func (c *Channel[E]) Name() string { return c.name }

// Subscribe registers fn under a fresh id and returns the handle that owns the registration.
func (c *Channel[E]) Subscribe(fn ext.Listener[E]) (*Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe %s: %w", c.name, berr.ErrNilListener)
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()

		return nil, fmt.Errorf("subscribe %s: %w", c.name, berr.ErrChannelClosed)
	}

	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, &listener[E]{id: id, call: fn})
	c.mu.Unlock()

	c.metrics.RecordSubscription(context.Background(), c.name, 1)
	c.logger.Debug("listener subscribed", slog.Uint64("id", id))

	return newSubscription(id, c), nil
}

// Unsubscribe removes the listener registered under id. It reports whether a listener was
// removed; unknown ids and repeated calls are no-ops.
func (c *Channel[E]) Unsubscribe(id uint64) bool {
	c.mu.Lock()

	i := slices.IndexFunc(c.listeners, func(l *listener[E]) bool { return l.id == id })
	if i < 0 {
		c.mu.Unlock()
		return false
	}

	// An in-flight Fire that has not reached this listener yet must skip it.
	c.listeners[i].removed.Store(true)
	c.listeners = slices.Delete(c.listeners, i, i+1)
	c.mu.Unlock()

	c.metrics.RecordSubscription(context.Background(), c.name, -1)
	c.logger.Debug("listener unsubscribed", slog.Uint64("id", id))

	return true
}

// Fire delivers e to every listener registered when Fire was entered, in registration order.
//
// Listeners registered during delivery do not receive e; listeners removed during delivery
// are skipped if they have not been reached yet. Listener errors are returned to the caller,
// joined under DeliverAll or the first one under StopOnError.
func (c *Channel[E]) Fire(ctx context.Context, e E) error {
	if c.closed.Load() {
		return fmt.Errorf("fire %s: %w", c.name, berr.ErrChannelClosed)
	}

	c.mu.RLock()
	snapshot := slices.Clone(c.listeners)
	c.mu.RUnlock()

	start := time.Now()

	var errs []error

	for _, l := range snapshot {
		if l.removed.Load() {
			continue
		}

		if err := l.call(ctx, e); err != nil {
			c.logger.WarnContext(ctx, "listener failed", slog.Uint64("id", l.id), slog.Any("error", err))
			errs = append(errs, &ListenerError{Channel: c.name, SubscriptionID: l.id, Err: err})

			if c.policy == StopOnError {
				break
			}
		}
	}

	err := errors.Join(errs...)
	c.metrics.RecordFire(ctx, c.name, len(snapshot), time.Since(start), err)

	return err
}

// Len returns the number of registered listeners.
func (c *Channel[E]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.listeners)
}

// Close tears the channel down. Registered listeners are dropped, later Subscribe and Fire
// calls fail with ErrChannelClosed, and unreleased handles report ErrChannelClosed on Close.
// Calling Close again is a no-op.
func (c *Channel[E]) Close() error {
	c.mu.Lock()
	if c.closed.Swap(true) {
		c.mu.Unlock()
		return nil
	}

	dropped := c.listeners
	c.listeners = nil
	c.mu.Unlock()

	for _, l := range dropped {
		l.removed.Store(true)
	}

	c.metrics.RecordSubscription(context.Background(), c.name, -int64(len(dropped)))
	c.logger.Info("channel closed", slog.Int("dropped", len(dropped)))

	return nil
}

func (c *Channel[E]) isClosed() bool { return c.closed.Load() }

func (c *Channel[E]) subscribeAny(fn ext.AnyListener) (*Subscription, error) {
	return c.Subscribe(func(ctx context.Context, e E) error { return fn(ctx, e) })
}

func (c *Channel[E]) fireAny(ctx context.Context, v any) error {
	e, ok := v.(E)
	if !ok {
		return fmt.Errorf("fire %s with %T: %w", c.name, v, berr.ErrUnknownEventType)
	}

	return c.Fire(ctx, e)
}
