// Package future provides a minimal single-result future used by async chain invocations.
package future

import (
	"context"
	"fmt"
	"sync"

	"github.com/next-trace/scg-extension-bus/contract/ext"
)

// Future is the eventual outcome of a background computation that yields only an error.
// It is safe for concurrent use; every waiter observes the same result.
type Future struct {
	once sync.Once
	done chan struct{}
	err  error
}

// Resolve completes a Future created by NewPromise. Only the first call has an effect.
type Resolve func(err error)

// PanicError is the result of a task that panicked instead of returning.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("future: task panicked: %v", e.Value) }

// NewPromise returns an unresolved Future and the function that resolves it.
func NewPromise() (*Future, Resolve) {
	f := &Future{done: make(chan struct{})}
	return f, f.resolve
}

// Resolved returns a Future that is already complete with err.
func Resolved(err error) *Future {
	f, resolve := NewPromise()
	resolve(err)

	return f
}

// Go runs fn on ex and returns a Future for its result. A nil executor runs fn on a new goroutine.
// If ex rejects the task, the Future resolves with the rejection error.
func Go(ex ext.Executor, fn func() error) *Future {
	f, resolve := NewPromise()

	task := func() { resolve(capture(fn)) }

	if ex == nil {
		go task()
		return f
	}

	if err := ex.Submit(task); err != nil {
		resolve(err)
	}

	return f
}

func capture(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()

	return fn()
}

func (f *Future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the Future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the Future resolves or ctx is done, whichever comes first.
// Abandoning a Future does not stop the underlying task.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll returns the result without blocking. done is false while the Future is pending.
func (f *Future) Poll() (done bool, err error) {
	select {
	case <-f.done:
		return true, f.err
	default:
		return false, nil
	}
}
