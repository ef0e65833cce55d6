package store

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/vango-dev/tapas/pkg/expr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func counter(state any, a Action) any {
	n, _ := state.(int)
	switch a.Type {
	case "inc":
		return n + 1
	case "dec":
		return n - 1
	}
	return n
}

func TestCombine(t *testing.T) {
	r := Combine(map[string]Reducer{
		"count": counter,
		"name": func(state any, a Action) any {
			if a.Type == "rename" {
				return a.Payload
			}
			if state == nil {
				return "anon"
			}
			return state
		},
	})

	s0 := r(nil, Action{Type: InitAction})
	if diff := cmp.Diff(map[string]any{"count": 0, "name": "anon"}, s0); diff != "" {
		t.Errorf("init state (-want +got):\n%s", diff)
	}

	s1 := r(s0, Action{Type: "noop"})
	if !expr.Same(s0, s1) {
		t.Error("state should keep its identity when no slice changed")
	}

	s2 := r(s1, Action{Type: "inc"})
	if expr.Same(s1, s2) {
		t.Error("state should be replaced when a slice changed")
	}
	if diff := cmp.Diff(map[string]any{"count": 1, "name": "anon"}, s2); diff != "" {
		t.Errorf("after inc (-want +got):\n%s", diff)
	}
	if s1.(map[string]any)["count"] != 0 {
		t.Error("previous state must not be modified")
	}
}

func TestStore_Dispatch(t *testing.T) {
	s := New(counter, nil)
	defer s.Close()

	if s.State() != 0 {
		t.Fatalf("initial state = %v, want 0", s.State())
	}

	var order []string
	errA := stderrors.New("a failed")
	unsubA := s.Subscribe(func() error { order = append(order, "a"); return errA })
	s.Subscribe(func() error { order = append(order, "b"); return nil })

	err := s.Dispatch(context.Background(), Action{Type: "inc"})
	if !stderrors.Is(err, errA) {
		t.Errorf("Dispatch error = %v, want %v", err, errA)
	}
	if diff := cmp.Diff([]string{"a", "b"}, order); diff != "" {
		t.Errorf("notification order (-want +got):\n%s", diff)
	}
	if s.State() != 1 {
		t.Errorf("state = %v, want 1", s.State())
	}

	unsubA()
	unsubA()
	if s.Listeners() != 1 {
		t.Errorf("Listeners() = %d, want 1", s.Listeners())
	}

	order = nil
	if err := s.Dispatch(context.Background(), Action{Type: "dec"}); err != nil {
		t.Errorf("Dispatch error = %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, order); diff != "" {
		t.Errorf("notification order (-want +got):\n%s", diff)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Dispatch(ctx, Action{Type: "inc"}); !stderrors.Is(err, context.Canceled) {
		t.Errorf("Dispatch on cancelled context = %v", err)
	}
}

func TestStore_UnsubscribeDuringNotification(t *testing.T) {
	s := New(counter, 0)
	defer s.Close()

	var unsubB func()
	calls := 0
	s.Subscribe(func() error { unsubB(); return nil })
	unsubB = s.Subscribe(func() error { calls++; return nil })

	_ = s.Dispatch(context.Background(), Action{Type: "inc"})
	if calls != 0 {
		t.Errorf("listener removed earlier in the same dispatch ran %d times", calls)
	}
}

func TestStore_Effect(t *testing.T) {
	done := make(chan struct{})
	s := New(counter, 0, WithEffect("load", func(ctx context.Context, api EffectAPI, a Action) error {
		defer close(done)
		if api.State() != 0 {
			t.Errorf("effect saw state %v", api.State())
		}
		api.Put(Action{Type: "inc"})
		return nil
	}))

	if err := s.Dispatch(context.Background(), Action{Type: "load"}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("effect did not run")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.State() != 1 {
		t.Errorf("state = %v, want 1", s.State())
	}
}

func TestStore_LatestEffect(t *testing.T) {
	var mu sync.Mutex
	var cancelled []any
	started := make(chan struct{}, 2)

	s := New(counter, 0, WithLatestEffect("search", func(ctx context.Context, api EffectAPI, a Action) error {
		started <- struct{}{}
		<-ctx.Done()
		mu.Lock()
		cancelled = append(cancelled, a.Payload)
		mu.Unlock()
		return ctx.Err()
	}))

	_ = s.Dispatch(context.Background(), Action{Type: "search", Payload: "first"})
	<-started
	_ = s.Dispatch(context.Background(), Action{Type: "search", Payload: "second"})
	<-started

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(cancelled)
		mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	if diff := cmp.Diff([]any{"first"}, cancelled); diff != "" {
		t.Errorf("cancelled runs (-want +got):\n%s", diff)
	}
	mu.Unlock()

	_ = s.Close()
	if len(cancelled) != 2 {
		t.Errorf("Close should cancel the remaining run, cancelled = %v", cancelled)
	}
}

func TestStore_Scheduler(t *testing.T) {
	var mu sync.Mutex
	var queued []func()
	schedule := func(fn func()) {
		mu.Lock()
		queued = append(queued, fn)
		mu.Unlock()
	}

	s := New(counter, 0,
		WithScheduler(schedule),
		WithEffect("load", func(ctx context.Context, api EffectAPI, a Action) error {
			api.Put(Action{Type: "inc"})
			return nil
		}),
	)
	_ = s.Dispatch(context.Background(), Action{Type: "load"})

	// Wait for the handler to hand its action to the scheduler.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(queued)
		mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if s.State() != 0 {
		t.Errorf("put must wait for the scheduler, state = %v", s.State())
	}
	mu.Lock()
	for _, fn := range queued {
		fn()
	}
	mu.Unlock()
	if s.State() != 1 {
		t.Errorf("state = %v, want 1", s.State())
	}
	_ = s.Close()
}
