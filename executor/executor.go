package executor

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	berr "github.com/next-trace/scg-extension-bus/contract/errors"
	"github.com/next-trace/scg-extension-bus/contract/ext"
)

// Goroutine runs every task on its own goroutine. It never rejects a task.
type Goroutine struct{}

var _ ext.Executor = Goroutine{}

func (Goroutine) Submit(task func()) error {
	go task()
	return nil
}

// Pool runs tasks on at most n goroutines. Submit never blocks: tasks beyond the limit
// wait for a free slot, so a running task may submit into a saturated pool.
type Pool struct {
	mu       sync.Mutex
	closed   bool
	accepted sync.WaitGroup
	g        errgroup.Group
}

var _ ext.Executor = (*Pool)(nil)

// NewPool returns a pool limited to n concurrent tasks. n <= 0 means no limit.
func NewPool(n int) *Pool {
	p := &Pool{}
	if n > 0 {
		p.g.SetLimit(n)
	}

	return p
}

func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("pool submit: %w", berr.ErrExecutorClosed)
	}

	p.accepted.Add(1)
	p.mu.Unlock()

	run := func() error {
		defer p.accepted.Done()

		task()

		return nil
	}

	if !p.g.TryGo(run) {
		go p.g.Go(run)
	}

	return nil
}

// Close rejects further tasks and waits for the accepted ones to finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.accepted.Wait()

	return p.g.Wait()
}

// Serial runs tasks one at a time, in submission order, on a single background worker.
// A task may submit further tasks but must not wait for them: they only start after it returns.
type Serial struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

var _ ext.Executor = (*Serial)(nil)

// NewSerial starts the worker. Call Close to stop it.
func NewSerial() *Serial {
	s := &Serial{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()

	return s
}

func (s *Serial) Submit(task func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("serial submit: %w", berr.ErrExecutorClosed)
	}

	s.queue = append(s.queue, task)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()

	return nil
}

// Close rejects further tasks, lets the worker drain the queue and waits for it to exit.
// It must not be called from a task running on s.
func (s *Serial) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.wake)
	}
	s.mu.Unlock()

	<-s.done

	return nil
}

func (s *Serial) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, task := range batch {
			task()
		}

		if len(batch) > 0 {
			continue
		}

		if _, ok := <-s.wake; !ok {
			s.mu.Lock()
			rest := s.queue
			s.queue = nil
			s.mu.Unlock()

			for _, task := range rest {
				task()
			}

			return
		}
	}
}
