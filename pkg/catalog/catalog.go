package catalog

import (
	"sort"
	"sync"

	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/store"
)

// Selector derives a value from store state. Parameterized selectors take
// their arguments after the state.
type Selector func(state any, args ...any) (any, error)

// ActionCreator builds an action from an event payload.
type ActionCreator func(payload any) store.Action

// Transform converts a computed value before it is written to the element.
type Transform func(v any) (any, error)

// Registry is a closed name to capability map. Looking up a missing name
// fails with the registry's error code.
type Registry[T any] struct {
	mu    sync.RWMutex
	code  string
	items map[string]T
}

// NewRegistry creates an empty registry reporting missing names as code.
func NewRegistry[T any](code string) *Registry[T] {
	return &Registry[T]{code: code, items: make(map[string]T)}
}

// Register adds or replaces name.
func (r *Registry[T]) Register(name string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[name] = v
}

// Lookup returns the capability registered under name.
func (r *Registry[T]) Lookup(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[name]
	if !ok {
		var zero T
		return zero, errors.New(r.code).
			WithDetailf("%q is not registered", name).
			WithSuggestion(suggest(name, r.namesLocked()))
	}
	return v, nil
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry[T]) namesLocked() []string {
	names := make([]string, 0, len(r.items))
	for n := range r.items {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Catalog bundles the selector, action and transform registries a
// controller binds against.
type Catalog struct {
	Selectors  *Registry[Selector]
	Actions    *Registry[ActionCreator]
	Transforms *Registry[Transform]
}

// New returns a catalog holding the builtin selectors and transforms.
func New() *Catalog {
	c := &Catalog{
		Selectors:  NewRegistry[Selector]("E001"),
		Actions:    NewRegistry[ActionCreator]("E002"),
		Transforms: NewRegistry[Transform]("E003"),
	}
	c.Selectors.Register("custom", Custom)
	for name, t := range builtinTransforms {
		c.Transforms.Register(name, t)
	}
	return c
}

// Selector looks up a selector.
func (c *Catalog) Selector(name string) (Selector, error) { return c.Selectors.Lookup(name) }

// Action looks up an action creator.
func (c *Catalog) Action(name string) (ActionCreator, error) { return c.Actions.Lookup(name) }

// Transform looks up a transform.
func (c *Catalog) Transform(name string) (Transform, error) { return c.Transforms.Lookup(name) }

// suggest names the closest registered entry, if any is close enough to be
// a typo.
func suggest(name string, names []string) string {
	best, bestDist := "", 3
	for _, n := range names {
		if d := distance(name, n); d < bestDist {
			best, bestDist = n, d
		}
	}
	if best == "" {
		return ""
	}
	return "Did you mean " + best + "?"
}

func distance(a, b string) int {
	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur := make([]int, len(b)+1)
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev = cur
	}
	return prev[len(b)]
}
