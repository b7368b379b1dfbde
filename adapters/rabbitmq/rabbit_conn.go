package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/next-trace/scg-extension-bus/config"
	berr "github.com/next-trace/scg-extension-bus/contract/errors"
)

const maxBackoff = 30 * time.Second

type reconnectingPublisher struct {
	cfg    config.RabbitMQConfig
	logger *slog.Logger

	mu    sync.RWMutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	ready chan struct{} // closed while ch is usable

	closed    chan struct{}
	closeOnce sync.Once
}

func newReconnectingPublisher(cfg config.RabbitMQConfig, logger *slog.Logger) *reconnectingPublisher {
	rp := &reconnectingPublisher{
		cfg:    cfg,
		logger: logger,
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
	go rp.run()

	return rp
}

func (rp *reconnectingPublisher) Publish(ctx context.Context, m PubMsg) error {
	for {
		rp.mu.RLock()
		ch, ready := rp.ch, rp.ready
		rp.mu.RUnlock()

		if ch != nil {
			return amqpChannelPublisher{ch: ch}.Publish(ctx, m)
		}

		select {
		case <-ready:
		case <-rp.closed:
			return fmt.Errorf("rabbitmq publisher closed: %w", berr.ErrPublishFailed)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (rp *reconnectingPublisher) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(rp.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-extension-bus"},
		Dial:       amqp.DefaultDial(rp.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if err := ch.ExchangeDeclare(EventsExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, nil, err
	}

	return conn, ch, nil
}

func (rp *reconnectingPublisher) run() {
	backoff := time.Second

	for {
		select {
		case <-rp.closed:
			return
		default:
		}

		conn, ch, err := rp.dial()
		if err != nil {
			// exponential backoff with jitter
			sleep := min(backoff+rand.N(backoff/2), maxBackoff) //nolint:gosec // jitter only
			rp.logger.Warn("rabbitmq connect failed", slog.Any("error", err), slog.Duration("retry_in", sleep))

			t := time.NewTimer(sleep)
			select {
			case <-rp.closed:
				t.Stop()
				return
			case <-t.C:
			}

			backoff = min(backoff*2, maxBackoff)

			continue
		}

		backoff = time.Second
		notify := conn.NotifyClose(make(chan *amqp.Error, 1))

		rp.mu.Lock()
		select {
		case <-rp.closed:
			rp.mu.Unlock()
			_ = ch.Close()
			_ = conn.Close()

			return
		default:
		}

		rp.conn, rp.ch = conn, ch
		close(rp.ready)
		rp.mu.Unlock()

		rp.logger.Info("rabbitmq connected")

		select {
		case <-rp.closed:
			return
		case amqpErr := <-notify:
			rp.logger.Warn("rabbitmq connection lost", slog.Any("error", amqpErr))
		}

		rp.mu.Lock()
		rp.conn, rp.ch = nil, nil
		rp.ready = make(chan struct{})
		rp.mu.Unlock()

		_ = ch.Close()
		_ = conn.Close()
	}
}

func (rp *reconnectingPublisher) close() {
	rp.closeOnce.Do(func() {
		close(rp.closed)

		rp.mu.Lock()
		defer rp.mu.Unlock()

		if rp.ch != nil {
			_ = rp.ch.Close()
			rp.ch = nil
		}

		if rp.conn != nil {
			_ = rp.conn.Close()
			rp.conn = nil
		}
	})
}

// NewWithAMQPConn dials RabbitMQ in the background with auto-reconnect, declares
// EventsExchange and returns an Adapter and a cleanup. Publishing blocks until a
// connection is up or the context ends. A nil logger discards output.
func NewWithAMQPConn(cfg config.RabbitMQConfig, logger *slog.Logger) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("rabbitmq url required: %w", berr.ErrBridgeNotConfigured)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pub := newReconnectingPublisher(cfg, logger.With(slog.String("bridge", "rabbitmq")))

	return New(pub), pub.close, nil
}
