package ext

import "context"

// Listener receives events of type E from a channel.
// A returned error is surfaced to whoever fired the event; the channel never swallows it.
type Listener[E any] func(ctx context.Context, e E) error

// AnyListener receives events of every declared type. Implementations narrow the
// value themselves, typically with a type switch.
type AnyListener func(ctx context.Context, e any) error

// Handle is the token returned by a subscription. Closing it removes the registration.
// Close must be safe to call more than once.
type Handle interface {
	Close() error
	Released() bool
}
