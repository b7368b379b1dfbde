package memory

import (
	"github.com/next-trace/scg-extension-bus/adapters/inmemory"
	"github.com/next-trace/scg-extension-bus/bridge"
	"github.com/next-trace/scg-extension-bus/eventbus"
)

// New constructs a bus over the declared types whose every fired event is mirrored into an
// in-memory publisher, and a cleanup that releases the mirror and closes the bus.
func New(opts ...eventbus.Option) (*eventbus.Bus, *inmemory.Publisher, func(), error) {
	b, err := eventbus.New(opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	pub := inmemory.New()

	mirror, err := bridge.ForwardAll(b, pub)
	if err != nil {
		_ = b.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		_ = mirror.Close()
		_ = b.Close()
	}

	return b, pub, cleanup, nil
}
