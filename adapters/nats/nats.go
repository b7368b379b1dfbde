package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-extension-bus/contract/errors"
	"github.com/next-trace/scg-extension-bus/contract/ext"
)

// Client is a minimal NATS-like publisher interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
}

// Adapter forwards fired events to NATS subjects through an injected Client.
type Adapter struct {
	Client     Client
	Propagator ext.HeaderPropagator // optional
}

var _ ext.EventPublisher = (*Adapter)(nil)

// New creates a new NATS adapter instance with the provided client.
func New(c Client) *Adapter { return &Adapter{Client: c} }

// PublishEvent serialises evt as JSON and publishes it on topic, or on opts.TopicOverride.
func (a *Adapter) PublishEvent(ctx context.Context, topic string, evt any, opts ext.PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("nats publish: %w", berr.ErrBridgeNotConfigured)
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("nats publish serialize: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	headers := opts.OutboundHeaders()
	if a.Propagator != nil {
		a.Propagator.Inject(ctx, headers)
	}

	if err := a.Client.Publish(opts.Subject(topic), body, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats publish: %w", errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}
