package eventbus

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	berr "github.com/next-trace/scg-extension-bus/contract/errors"
	"github.com/next-trace/scg-extension-bus/contract/ext"
)

// owner is the channel side of a subscription. Handles only reach it through this
// relation; they never keep listeners alive.
type owner interface {
	Name() string
	Unsubscribe(id uint64) bool
	isClosed() bool
}

type cleanupArg struct {
	owner owner
	id    uint64
}

// Subscription is the handle returned by Subscribe. Closing it removes the registration.
//
// A Subscription produced by Bus.SubscribeAll is composite: it owns one child handle per
// declared event type and closing it releases all of them.
type Subscription struct {
	id       uint64
	owner    owner
	children []*Subscription

	once     sync.Once
	released atomic.Bool
	cleanup  runtime.Cleanup
}

var _ ext.Handle = (*Subscription)(nil)

func newSubscription(id uint64, o owner) *Subscription {
	s := &Subscription{id: id, owner: o}

	// Dropping the handle without Close still releases the listener, once, after GC.
	s.cleanup = runtime.AddCleanup(s, func(a cleanupArg) { a.owner.Unsubscribe(a.id) }, cleanupArg{owner: o, id: id})

	return s
}

func newCompositeSubscription(children []*Subscription) *Subscription {
	return &Subscription{children: children}
}

// ID returns the listener id within its channel, or 0 for composite handles.
func (s *Subscription) ID() uint64 { return s.id }

// Released reports whether Close has been called.
func (s *Subscription) Released() bool { return s.released.Load() }

// Close releases the registration. Only the first call does any work; later calls return nil.
//
// If the owning channel was closed before the handle was released, Close removes nothing and
// returns ErrChannelClosed.
func (s *Subscription) Close() error {
	var err error

	s.once.Do(func() {
		s.released.Store(true)
		err = s.release()
	})

	return err
}

func (s *Subscription) release() error {
	if s.children != nil {
		errs := make([]error, 0, len(s.children))
		for _, c := range s.children {
			errs = append(errs, c.Close())
		}

		return errors.Join(errs...)
	}

	s.cleanup.Stop()

	if s.owner.isClosed() {
		return fmt.Errorf("release %s/%d: %w", s.owner.Name(), s.id, berr.ErrChannelClosed)
	}

	s.owner.Unsubscribe(s.id)

	return nil
}
