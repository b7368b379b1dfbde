package nats_test

import (
	"errors"
	"testing"

	"github.com/next-trace/scg-extension-bus/adapters/nats"
	"github.com/next-trace/scg-extension-bus/config"
	berr "github.com/next-trace/scg-extension-bus/contract/errors"
)

func TestNewWithNATS_EmptyURL(t *testing.T) {
	_, _, err := nats.NewWithNATS(config.NATSConfig{})
	if err == nil {
		t.Fatalf("expected error")
	}

	if !errors.Is(err, berr.ErrBridgeNotConfigured) {
		t.Fatalf("want ErrBridgeNotConfigured, got %v", err)
	}
}
