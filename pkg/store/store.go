package store

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/expr"
)

// InitAction is dispatched once when a store is created without an
// initial state so reducers can return their defaults.
const InitAction = "@@tapas/INIT"

// Action is a tagged record sent to the store.
type Action struct {
	Type    string `json:"type" yaml:"type"`
	Payload any    `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Reducer returns the next state for an action. It must not modify state.
type Reducer func(state any, a Action) any

// Combine builds a reducer over a map[string]any state where each key is
// owned by one reducer. The previous map is returned unchanged when no slice
// changed, so identity comparisons stay cheap.
func Combine(reducers map[string]Reducer) Reducer {
	return func(state any, a Action) any {
		prev, _ := state.(map[string]any)
		var next map[string]any
		for key, r := range reducers {
			old := prev[key]
			val := r(old, a)
			if next == nil && !expr.Same(old, val) {
				next = make(map[string]any, len(reducers))
				for k, v := range prev {
					next[k] = v
				}
			}
			if next != nil {
				next[key] = val
			}
		}
		if next == nil {
			if prev == nil {
				return map[string]any{}
			}
			return prev
		}
		return next
	}
}

// Listener is notified after every dispatch.
type Listener func() error

// Handler runs asynchronously for a matching action.
type Handler func(ctx context.Context, api EffectAPI, a Action) error

// EffectAPI is what a running handler can do with its store.
type EffectAPI interface {
	State() any
	Put(a Action)
}

type effect struct {
	handler Handler
	latest  bool
}

type listener struct {
	fn     Listener
	active bool
}

// Store holds application state and notifies subscribers synchronously
// after each dispatch. Handlers registered with WithEffect or
// WithLatestEffect run on their own goroutines.
type Store struct {
	mu        sync.Mutex
	state     any
	reducer   Reducer
	listeners []*listener
	effects   map[string][]*effect
	latest    map[*effect]context.CancelFunc
	schedule  func(func())
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
}

// Option configures a Store.
type Option func(*Store)

// WithEffect runs h for every dispatched action of type t.
func WithEffect(t string, h Handler) Option {
	return func(s *Store) {
		s.effects[t] = append(s.effects[t], &effect{handler: h})
	}
}

// WithLatestEffect runs h for actions of type t, cancelling the run started
// by the previous such action.
func WithLatestEffect(t string, h Handler) Option {
	return func(s *Store) {
		s.effects[t] = append(s.effects[t], &effect{handler: h, latest: true})
	}
}

// WithScheduler routes actions put by handlers through schedule, which
// should run the given function on the goroutine that owns the bindings.
func WithScheduler(schedule func(func())) Option {
	return func(s *Store) {
		s.schedule = schedule
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a store. When initial is nil the reducer is asked for its
// default state with InitAction.
func New(reducer Reducer, initial any, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		reducer: reducer,
		effects: make(map[string][]*effect),
		latest:  make(map[*effect]context.CancelFunc),
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.schedule == nil {
		s.schedule = func(fn func()) { fn() }
	}
	if initial == nil {
		initial = reducer(nil, Action{Type: InitAction})
	}
	s.state = initial
	return s
}

// State returns the current state snapshot.
func (s *Store) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to run after every dispatch, in subscription
// order. The returned function removes it and is safe to call repeatedly.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	l := &listener{fn: fn, active: true}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			l.active = false
			for i, x := range s.listeners {
				if x == l {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// Listeners returns the number of active subscriptions.
func (s *Store) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Dispatch reduces a, notifies every listener and starts matching
// handlers. A failing listener does not stop the others; their errors are
// joined. Listeners removed during the notification are skipped.
func (s *Store) Dispatch(ctx context.Context, a Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = s.reducer(s.state, a)
	listeners := append([]*listener(nil), s.listeners...)
	effects := s.effects[a.Type]
	s.mu.Unlock()

	var errs []error
	for _, l := range listeners {
		s.mu.Lock()
		active := l.active
		s.mu.Unlock()
		if !active {
			continue
		}
		if err := l.fn(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, e := range effects {
		s.run(e, a)
	}
	return errors.Join(errs...)
}

func (s *Store) run(e *effect, a Action) {
	ctx := s.ctx
	if e.latest {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(s.ctx)
		s.mu.Lock()
		if prev, ok := s.latest[e]; ok {
			prev()
		}
		s.latest[e] = cancel
		s.mu.Unlock()
	}

	api := &effectAPI{store: s, ctx: ctx}
	s.group.Go(func() error {
		err := e.handler(ctx, api, a)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("store effect failed", "action", a.Type, "error", errors.Compact(err))
		}
		return nil
	})
}

// Close cancels running handlers and waits for them to return.
func (s *Store) Close() error {
	s.cancel()
	return s.group.Wait()
}

// Wait blocks until the running handlers have returned without
// cancelling them.
func (s *Store) Wait() error {
	return s.group.Wait()
}

type effectAPI struct {
	store *Store
	ctx   context.Context
}

func (e *effectAPI) State() any {
	return e.store.State()
}

// Put dispatches a through the store's scheduler. Actions put after the
// handler's context ended are dropped.
func (e *effectAPI) Put(a Action) {
	if e.ctx.Err() != nil {
		return
	}
	e.store.schedule(func() {
		if err := e.store.Dispatch(e.store.ctx, a); err != nil {
			e.store.logger.Warn("dispatch from effect failed", "action", a.Type, "error", errors.Compact(err))
		}
	})
}
