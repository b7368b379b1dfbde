package nats

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/next-trace/scg-extension-bus/config"
	berr "github.com/next-trace/scg-extension-bus/contract/errors"
)

type natsClient struct{ nc *nats.Conn }

func (c natsClient) Publish(subject string, data []byte, headers map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data}

	if len(headers) > 0 {
		msg.Header = nats.Header{}
		for k, v := range headers {
			msg.Header.Add(k, v)
		}
	}

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	return c.nc.Flush()
}

// NewWithNATS connects to cfg.URL and returns an Adapter and a cleanup that drains the connection.
func NewWithNATS(cfg config.NATSConfig) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("nats url required: %w", berr.ErrBridgeNotConfigured)
	}

	var opts []nats.Option
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", errors.Join(berr.ErrPublishFailed, err))
	}

	cleanup := func() {
		if !nc.IsClosed() {
			_ = nc.Drain() //nolint:errcheck // best-effort shutdown
			nc.Close()
		}
	}

	return New(natsClient{nc: nc}), cleanup, nil
}
