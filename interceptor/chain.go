package interceptor

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	berr "github.com/next-trace/scg-extension-bus/contract/errors"
	"github.com/next-trace/scg-extension-bus/contract/ext"
	"github.com/next-trace/scg-extension-bus/future"
	"github.com/next-trace/scg-extension-bus/observability"
)

// Invocation modes, as reported to metrics and spans.
const (
	ModeSync         = "sync"
	ModeAsync        = "async"
	ModeAsyncFutures = "async_futures"
)

// Op is one step of an invocation: the operation applied to each interceptor.
type Op[I any] func(ctx context.Context, i I) error

// AsyncOp is a step whose interceptor does its own asynchronous work and reports
// completion through a Future. A nil Future counts as immediate success.
type AsyncOp[I any] func(ctx context.Context, i I) *future.Future

// Bind returns an Op that hands fn a copy of args taken at bind time. Async invocations
// built from it never observe later changes the caller makes to its own args value.
func Bind[I, A any](args A, fn func(ctx context.Context, i I, args A) error) Op[I] {
	return func(ctx context.Context, i I) error { return fn(ctx, i, args) }
}

// BindAsync is Bind for AsyncOp.
func BindAsync[I, A any](args A, fn func(ctx context.Context, i I, args A) *future.Future) AsyncOp[I] {
	return func(ctx context.Context, i I) *future.Future { return fn(ctx, i, args) }
}

// Registration is one entry of the chain.
type Registration[I any] struct {
	Priority    int32
	Interceptor I
}

// InterceptorError reports the step that stopped an invocation.
// Completed is the number of interceptors that returned successfully before it.
type InterceptorError struct {
	Chain     string
	Index     int
	Priority  int32
	Completed int
	Err       error
}

func (e *InterceptorError) Error() string {
	return fmt.Sprintf("invoke %s: interceptor %d (priority %d): %v", e.Chain, e.Index, e.Priority, e.Err)
}

func (e *InterceptorError) Unwrap() error { return e.Err }

// Chain is a priority-ordered registry of interceptors implementing capability I.
//
// Chain is safe for concurrent use. Each invocation works on a snapshot of the
// registrations taken when it starts, so interceptors may register or unregister
// (themselves included) while a chain is running.
type Chain[I any] struct {
	mu     sync.RWMutex
	regs   []Registration[I] // priority descending, FIFO among ties
	closed bool

	name     string
	executor ext.Executor
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
}

// New constructs an empty chain.
func New[I any](opts ...Option) *Chain[I] {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.name == "" {
		cfg.name = fmt.Sprintf("%s#%s", reflect.TypeFor[I]().String(), uuid.New().String()[:8])
	}

	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	if cfg.metrics == nil {
		cfg.metrics = observability.NoopMetrics{}
	}

	if cfg.spans == nil {
		cfg.spans = observability.NoopSpanManager{}
	}

	return &Chain[I]{
		name:     cfg.name,
		executor: cfg.executor,
		logger:   cfg.logger.With(slog.String("chain", cfg.name)),
		metrics:  cfg.metrics,
		spans:    cfg.spans,
	}
}

// Name returns the chain name.
func (c *Chain[I]) Name() string { return c.name }

// Register inserts i after every registration with priority >= priority.
func (c *Chain[I]) Register(i I, priority int32) error {
	if isNil(i) {
		return fmt.Errorf("register %s: %w", c.name, berr.ErrNilInterceptor)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("register %s: %w", c.name, berr.ErrChainClosed)
	}

	at := slices.IndexFunc(c.regs, func(r Registration[I]) bool { return r.Priority < priority })
	if at < 0 {
		at = len(c.regs)
	}

	c.regs = slices.Insert(c.regs, at, Registration[I]{Priority: priority, Interceptor: i})
	c.logger.Debug("interceptor registered", slog.Int("priority", int(priority)), slog.Int("position", at))

	return nil
}

// Unregister removes the first registration holding the same instance as i and reports
// whether one was found. Pointers, maps and channels match by identity, other comparable
// values by equality; funcs and other incomparable values never match.
func (c *Chain[I]) Unregister(i I) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := slices.IndexFunc(c.regs, func(r Registration[I]) bool { return sameInstance(r.Interceptor, i) })
	if at < 0 {
		return false
	}

	c.regs = slices.Delete(c.regs, at, at+1)
	c.logger.Debug("interceptor unregistered", slog.Int("position", at))

	return true
}

// Snapshot returns the registrations in chain order. The slice is a copy.
func (c *Chain[I]) Snapshot() []Registration[I] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.regs)
}

// Len returns the number of registrations.
func (c *Chain[I]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.regs)
}

// Close drops every registration. Later Register and Invoke calls fail with ErrChainClosed;
// invocations already running finish on their snapshot.
func (c *Chain[I]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.regs = nil
	c.logger.Info("chain closed")

	return nil
}

// Invoke runs op on every interceptor in chain order on the calling goroutine.
// The first error stops the chain and is returned as *InterceptorError.
// Completed steps are not rolled back.
func (c *Chain[I]) Invoke(ctx context.Context, op Op[I]) error {
	regs, err := c.snapshotFor("invoke")
	if err != nil {
		return err
	}

	return c.run(ctx, ModeSync, regs, op)
}

// InvokeAsync runs the whole ordered sequence as a single task on the chain's executor.
// Interceptors still run one at a time in chain order and the first error stops the rest.
// The registrations are captured before InvokeAsync returns.
func (c *Chain[I]) InvokeAsync(ctx context.Context, op Op[I]) *future.Future {
	regs, err := c.snapshotFor("invoke async")
	if err != nil {
		return future.Resolved(err)
	}

	return future.Go(c.executor, func() error { return c.run(ctx, ModeAsync, regs, op) })
}

// InvokeAsyncFutures is InvokeAsync for interceptors that do their own asynchronous work.
// Each interceptor's Future is awaited before the next interceptor is started.
//
// Every op call is submitted to the chain's executor as its own task; the waiting happens
// on a separate goroutine and never occupies an executor worker. Interceptors may therefore
// schedule their work on the same executor, a Serial one included. A rejected submission
// stops the chain like a failing interceptor.
func (c *Chain[I]) InvokeAsyncFutures(ctx context.Context, op AsyncOp[I]) *future.Future {
	regs, err := c.snapshotFor("invoke async")
	if err != nil {
		return future.Resolved(err)
	}

	step := func(ctx context.Context, i I) error {
		// a started step always runs to completion; cancellation is checked between steps
		waitCtx := context.WithoutCancel(ctx)

		var f *future.Future
		dispatch := future.Go(c.executor, func() error {
			f = op(ctx, i)
			return nil
		})

		if err := dispatch.Wait(waitCtx); err != nil {
			return err
		}

		if f == nil {
			return nil
		}

		return f.Wait(waitCtx)
	}

	result, resolve := future.NewPromise()
	go func() { resolve(c.run(ctx, ModeAsyncFutures, regs, step)) }()

	return result
}

func (c *Chain[I]) snapshotFor(op string) ([]Registration[I], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("%s %s: %w", op, c.name, berr.ErrChainClosed)
	}

	return slices.Clone(c.regs), nil
}

func (c *Chain[I]) run(ctx context.Context, mode string, regs []Registration[I], op Op[I]) error {
	ctx, span := c.spans.StartInvokeSpan(ctx, c.name, mode)
	start := time.Now()

	var (
		failure   *InterceptorError
		completed int
	)

	for idx, r := range regs {
		if err := ctx.Err(); err != nil {
			failure = c.stepError(idx, r, completed, err)
			break
		}

		stepCtx, stepSpan := c.spans.StartStepSpan(ctx, c.name, idx, r.Priority)
		err := op(stepCtx, r.Interceptor)
		c.spans.EndSpanWithError(stepSpan, err)

		if err != nil {
			failure = c.stepError(idx, r, completed, err)
			break
		}

		completed++
	}

	var err error
	if failure != nil {
		err = failure

		c.logger.WarnContext(ctx, "chain stopped",
			slog.String("mode", mode),
			slog.Int("index", failure.Index),
			slog.Int("completed", completed),
			slog.Any("error", failure.Err),
		)
	}

	c.spans.EndSpanWithError(span, err)
	c.metrics.RecordInvocation(ctx, c.name, mode, completed, time.Since(start), err)

	return err
}

func (c *Chain[I]) stepError(idx int, r Registration[I], completed int, err error) *InterceptorError {
	return &InterceptorError{
		Chain:     c.name,
		Index:     idx,
		Priority:  r.Priority,
		Completed: completed,
		Err:       err,
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func sameInstance(a, b any) bool {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !ra.IsValid() || !rb.IsValid() || ra.Type() != rb.Type() {
		return false
	}

	switch ra.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	case reflect.Func, reflect.Slice:
		return false
	default:
		return ra.Comparable() && rb.Comparable() && ra.Equal(rb)
	}
}
