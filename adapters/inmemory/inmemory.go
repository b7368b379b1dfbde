package inmemory

import (
	"context"
	"slices"
	"sync"

	"github.com/next-trace/scg-extension-bus/contract/ext"
)

// Published is one recorded PublishEvent call.
type Published struct {
	Topic   string
	Event   any
	Key     string
	Headers map[string]string
}

// Publisher is a thread-safe in-memory ext.EventPublisher.
// It records published events for tests and examples.
type Publisher struct {
	mu     sync.Mutex
	events []Published
	err    error
}

var _ ext.EventPublisher = (*Publisher)(nil)

// New creates a new in-memory publisher.
func New() *Publisher { return &Publisher{} }

func (p *Publisher) PublishEvent(ctx context.Context, topic string, evt any, opts ext.PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.events = append(p.events, Published{
		Topic:   opts.Subject(topic),
		Event:   evt,
		Key:     opts.Key,
		Headers: opts.OutboundHeaders(),
	})

	return nil
}

// FailWith makes every later PublishEvent return err. A nil err restores normal recording.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Events returns a copy of the recorded events in publish order.
func (p *Publisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.events)
}

// Topics returns the topic of every recorded event in publish order.
func (p *Publisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Topic
	}

	return out
}

// Reset drops the recorded events.
func (p *Publisher) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}
