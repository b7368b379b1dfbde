package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-extension-bus/contract/errors"
	"github.com/next-trace/scg-extension-bus/contract/ext"
)

// Writer is a minimal Kafka-like writer interface.
// Users can adapt any Kafka client to this; NewWithKgo wires franz-go.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Adapter forwards fired events to Kafka topics through an injected Writer.
type Adapter struct {
	Writer     Writer
	Propagator ext.HeaderPropagator // optional
}

var _ ext.EventPublisher = (*Adapter)(nil)

// New creates a new Kafka adapter instance with the provided writer.
func New(w Writer) *Adapter { return &Adapter{Writer: w} }

// PublishEvent writes evt as a JSON record. opts.Key becomes the record key.
func (a *Adapter) PublishEvent(ctx context.Context, topic string, evt any, opts ext.PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Writer == nil {
		return fmt.Errorf("kafka publish: %w", berr.ErrBridgeNotConfigured)
	}

	val, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafka publish serialize: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	if a.Propagator != nil {
		a.Propagator.Inject(ctx, headers)
	}

	var key []byte
	if opts.Key != "" {
		key = []byte(opts.Key)
	}

	if err = a.Writer.Write(ctx, opts.Subject(topic), key, val, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka publish write: %w", errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}
