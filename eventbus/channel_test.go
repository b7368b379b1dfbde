package eventbus_test

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	berr "github.com/next-trace/scg-extension-bus/contract/errors"
	"github.com/next-trace/scg-extension-bus/eventbus"
)

type tick struct{ N int }

func record(seen *[]string, name string) func(context.Context, tick) error {
	return func(context.Context, tick) error {
		*seen = append(*seen, name)
		return nil
	}
}

func mustSubscribe(t *testing.T, ch *eventbus.Channel[tick], fn func(context.Context, tick) error) *eventbus.Subscription {
	t.Helper()

	sub, err := ch.Subscribe(fn)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	t.Cleanup(func() { _ = sub.Close() })

	return sub
}

func TestChannel_FireInRegistrationOrder(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	var seen []string
	mustSubscribe(t, ch, record(&seen, "a"))
	mustSubscribe(t, ch, record(&seen, "b"))
	mustSubscribe(t, ch, record(&seen, "c"))

	if err := ch.Fire(t.Context(), tick{N: 1}); err != nil {
		t.Fatalf("fire: %v", err)
	}

	if !slices.Equal(seen, []string{"a", "b", "c"}) {
		t.Fatalf("seen=%v", seen)
	}
}

func TestChannel_RemoveVisitedListenerDuringFire(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	var seen []string

	var self *eventbus.Subscription
	self = mustSubscribe(t, ch, func(ctx context.Context, e tick) error {
		seen = append(seen, "self")
		return self.Close()
	})
	mustSubscribe(t, ch, record(&seen, "next"))

	if err := ch.Fire(t.Context(), tick{}); err != nil {
		t.Fatalf("fire: %v", err)
	}

	if err := ch.Fire(t.Context(), tick{}); err != nil {
		t.Fatalf("fire: %v", err)
	}

	if !slices.Equal(seen, []string{"self", "next", "next"}) {
		t.Fatalf("seen=%v", seen)
	}
}

func TestChannel_RemoveUnvisitedListenerDuringFire(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	var seen []string

	var victim *eventbus.Subscription

	mustSubscribe(t, ch, func(ctx context.Context, e tick) error {
		seen = append(seen, "first")
		return victim.Close()
	})
	victim = mustSubscribe(t, ch, record(&seen, "victim"))
	mustSubscribe(t, ch, record(&seen, "last"))

	if err := ch.Fire(t.Context(), tick{}); err != nil {
		t.Fatalf("fire: %v", err)
	}

	if !slices.Equal(seen, []string{"first", "last"}) {
		t.Fatalf("removed listener must be skipped, seen=%v", seen)
	}
}

func TestChannel_SubscribeDuringFireSeesNextEventOnly(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	var late atomic.Int32

	added := false

	mustSubscribe(t, ch, func(ctx context.Context, e tick) error {
		if added {
			return nil
		}

		added = true

		_ = mustSubscribe(t, ch, func(context.Context, tick) error {
			late.Add(1)
			return nil
		})

		return nil
	})

	if err := ch.Fire(t.Context(), tick{N: 1}); err != nil {
		t.Fatalf("fire: %v", err)
	}

	if late.Load() != 0 {
		t.Fatalf("listener added during fire must not receive that event")
	}

	if err := ch.Fire(t.Context(), tick{N: 2}); err != nil {
		t.Fatalf("fire: %v", err)
	}

	if late.Load() != 1 {
		t.Fatalf("late=%d", late.Load())
	}
}

func TestChannel_ReentrantFire(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	var depths []int

	mustSubscribe(t, ch, func(ctx context.Context, e tick) error {
		depths = append(depths, e.N)
		if e.N < 3 {
			return ch.Fire(ctx, tick{N: e.N + 1})
		}

		return nil
	})

	done := make(chan error, 1)
	go func() { done <- ch.Fire(t.Context(), tick{N: 0}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("fire: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("nested fire deadlocked")
	}

	if !slices.Equal(depths, []int{0, 1, 2, 3}) {
		t.Fatalf("depths=%v", depths)
	}
}

func TestChannel_ListenerErrorsAreJoined(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	boom := errors.New("boom")
	bang := errors.New("bang")

	calls := 0
	failing := mustSubscribe(t, ch, func(context.Context, tick) error { calls++; return boom })
	mustSubscribe(t, ch, func(context.Context, tick) error { calls++; return nil })
	mustSubscribe(t, ch, func(context.Context, tick) error { calls++; return bang })

	err := ch.Fire(t.Context(), tick{})
	if !errors.Is(err, boom) || !errors.Is(err, bang) {
		t.Fatalf("want both errors, got %v", err)
	}

	if calls != 3 {
		t.Fatalf("every listener must run, calls=%d", calls)
	}

	var le *eventbus.ListenerError
	if !errors.As(err, &le) || le.SubscriptionID != failing.ID() {
		t.Fatalf("want ListenerError for %d, got %v", failing.ID(), err)
	}

	if ch.Len() != 3 {
		t.Fatalf("listener set must survive failures, len=%d", ch.Len())
	}
}

func TestChannel_StopOnError(t *testing.T) {
	ch := eventbus.NewChannel[tick](eventbus.WithStopOnError())

	boom := errors.New("boom")

	var seen []string
	mustSubscribe(t, ch, record(&seen, "a"))
	mustSubscribe(t, ch, func(context.Context, tick) error { seen = append(seen, "fail"); return boom })
	mustSubscribe(t, ch, record(&seen, "c"))

	if err := ch.Fire(t.Context(), tick{}); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	if !slices.Equal(seen, []string{"a", "fail"}) {
		t.Fatalf("seen=%v", seen)
	}
}

func TestChannel_NilListener(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	if _, err := ch.Subscribe(nil); !errors.Is(err, berr.ErrNilListener) {
		t.Fatalf("want ErrNilListener, got %v", err)
	}
}

func TestSubscription_DoubleCloseIsNoop(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	calls := 0

	sub, err := ch.Subscribe(func(context.Context, tick) error { calls++; return nil })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}

	if !sub.Released() {
		t.Fatalf("released flag not set")
	}

	if ch.Unsubscribe(sub.ID()) {
		t.Fatalf("listener removed twice")
	}

	_ = ch.Fire(t.Context(), tick{})

	if calls != 0 {
		t.Fatalf("released listener invoked")
	}
}

func TestChannel_UnsubscribeUnknownID(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	if ch.Unsubscribe(42) {
		t.Fatalf("unknown id reported as removed")
	}
}

func TestChannel_UseAfterTeardown(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	sub, err := ch.Subscribe(func(context.Context, tick) error { return nil })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if err := ch.Fire(t.Context(), tick{}); !errors.Is(err, berr.ErrChannelClosed) {
		t.Fatalf("fire: want ErrChannelClosed, got %v", err)
	}

	if _, err := ch.Subscribe(func(context.Context, tick) error { return nil }); !errors.Is(err, berr.ErrChannelClosed) {
		t.Fatalf("subscribe: want ErrChannelClosed, got %v", err)
	}

	if err := sub.Close(); !errors.Is(err, berr.ErrChannelClosed) {
		t.Fatalf("release: want ErrChannelClosed, got %v", err)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("repeated release must be a no-op, got %v", err)
	}

	if ch.Len() != 0 {
		t.Fatalf("len=%d", ch.Len())
	}
}

func TestChannel_CloseDuringFireSkipsRemaining(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	var seen []string
	mustSubscribe(t, ch, func(context.Context, tick) error {
		seen = append(seen, "closer")
		return ch.Close()
	})
	mustSubscribe(t, ch, record(&seen, "after"))

	if err := ch.Fire(t.Context(), tick{}); err != nil {
		t.Fatalf("fire: %v", err)
	}

	if !slices.Equal(seen, []string{"closer"}) {
		t.Fatalf("seen=%v", seen)
	}
}

func subscribeAndDrop(ch *eventbus.Channel[tick]) error {
	_, err := ch.Subscribe(func(context.Context, tick) error { return nil })
	return err
}

func TestSubscription_DroppedHandleReleasesListener(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	if err := subscribeAndDrop(ch); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for ch.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("dropped handle was never released")
		}

		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
}

func TestChannel_ConcurrentMutationAndFire(t *testing.T) {
	ch := eventbus.NewChannel[tick]()

	var delivered atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()

			for j := 0; j < 50; j++ {
				sub, err := ch.Subscribe(func(context.Context, tick) error {
					delivered.Add(1)
					return nil
				})
				if err != nil {
					t.Errorf("subscribe: %v", err)
					return
				}

				_ = sub.Close()
			}
		}()

		go func() {
			defer wg.Done()

			for j := 0; j < 50; j++ {
				if err := ch.Fire(context.Background(), tick{N: j}); err != nil {
					t.Errorf("fire: %v", err)
					return
				}
			}
		}()
	}

	wg.Wait()

	if ch.Len() != 0 {
		t.Fatalf("all handles were closed, len=%d", ch.Len())
	}
}

// Every fire must reach exactly the listeners that were registered before it started,
// whatever the listeners do to the set while it runs.
func TestChannel_SnapshotProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		ch := eventbus.NewChannel[tick]()

		var (
			subs     []*eventbus.Subscription
			live     = map[uint64]bool{}
			received map[uint64]bool
		)

		for step := 0; step < 40; step++ {
			switch op := rng.Intn(3); {
			case op == 0 || len(subs) == 0:
				var sub *eventbus.Subscription

				mutate := rng.Intn(2) == 0
				sub, err := ch.Subscribe(func(ctx context.Context, e tick) error {
					received[sub.ID()] = true

					if mutate {
						// mutate the set mid-delivery; none of this may leak into the current fire
						extra, err := ch.Subscribe(func(context.Context, tick) error { return nil })
						if err != nil {
							return err
						}

						return extra.Close()
					}

					return nil
				})
				if err != nil {
					t.Fatalf("subscribe: %v", err)
				}

				subs = append(subs, sub)
				live[sub.ID()] = true
			case op == 1:
				i := rng.Intn(len(subs))
				_ = subs[i].Close()
				delete(live, subs[i].ID())
			default:
				expected := make(map[uint64]bool, len(live))
				for id := range live {
					expected[id] = true
				}

				received = map[uint64]bool{}
				if err := ch.Fire(t.Context(), tick{N: step}); err != nil {
					t.Fatalf("fire: %v", err)
				}

				if len(received) != len(expected) {
					t.Fatalf("round %d step %d: received %v, want %v", round, step, received, expected)
				}

				for id := range expected {
					if !received[id] {
						t.Fatalf("round %d step %d: listener %d missed", round, step, id)
					}
				}
			}
		}

		_ = ch.Close()
	}
}
