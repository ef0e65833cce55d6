package registry

import (
	"sort"
	"sync"

	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/expr"
)

// Handle identifies a registered element. Handles are never reused.
type Handle uint64

// None is the zero handle: no element.
const None Handle = 0

// ParentFunc returns the host parent of an element, or false at the root.
type ParentFunc[E comparable] func(E) (E, bool)

// Kind names a binding kind.
type Kind string

const (
	KindText       Kind = "text"
	KindHTML       Kind = "html"
	KindAttributes Kind = "attributes"
	KindClasses    Kind = "classes"
	KindList       Kind = "list"
)

// Kinds lists binding kinds in application order.
var Kinds = []Kind{KindText, KindHTML, KindAttributes, KindClasses, KindList}

// Binding is one memoized update attached to a node. Apply reports whether
// its effect fired.
type Binding interface {
	Apply(scope expr.Scope) (bool, error)
}

// Selector is a store-derived value exposed under Name.
type Selector struct {
	Name        string
	Key         string
	Value       any
	Unsubscribe func()
}

// Event is a host listener or lifecycle hook attached to a node.
type Event struct {
	Name     string
	Callback func(event any) error
	Detach   func()
}

// Node is the registry record of one bound element.
type Node[E comparable] struct {
	Handle    Handle
	Element   E
	Parent    Handle
	Children  []Handle
	Data      map[string]any
	State     map[string]any
	Selectors []Selector
	Bindings  map[Kind][]Binding
	Events    []Event

	// ConfigID is the hierarchical id of the configuration bound here.
	ConfigID string

	explicit bool
}

func (n *Node[E]) clone() Node[E] {
	c := *n
	c.Children = append([]Handle(nil), n.Children...)
	c.Selectors = append([]Selector(nil), n.Selectors...)
	c.Events = append([]Event(nil), n.Events...)
	return c
}

// Registry is the ownership tree of bound elements. All methods are safe
// for concurrent use; mutation is serialized by a single lock.
type Registry[E comparable] struct {
	mu        sync.RWMutex
	parentOf  ParentFunc[E]
	nodes     map[Handle]*Node[E]
	byElement map[E]Handle
	roots     []Handle
	next      Handle
}

// New creates a registry that discovers parents with parentOf.
func New[E comparable](parentOf ParentFunc[E]) *Registry[E] {
	return &Registry[E]{
		parentOf:  parentOf,
		nodes:     make(map[Handle]*Node[E]),
		byElement: make(map[E]Handle),
	}
}

// Register adds el to the registry. With parent == None the nearest
// registered host ancestor becomes the parent. Nodes registered earlier
// without an explicit parent whose nearest registered ancestor is now el
// are moved under it, so registration order never loses a relationship.
func (r *Registry[E]) Register(el E, parent Handle) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.byElement[el]; ok {
		return h, errors.New("E033").WithDetailf("handle %d", h)
	}

	explicit := parent != None
	if explicit {
		if _, ok := r.nodes[parent]; !ok {
			return None, errors.New("E031").WithDetailf("handle %d", parent)
		}
	} else {
		parent = r.nearestLocked(el)
	}

	r.next++
	h := r.next
	n := &Node[E]{
		Handle:   h,
		Element:  el,
		Parent:   parent,
		Data:     map[string]any{},
		State:    map[string]any{},
		Bindings: map[Kind][]Binding{},
		explicit: explicit,
	}
	r.nodes[h] = n
	r.byElement[el] = h

	// Candidates for adoption are the current roots and the new node's
	// siblings; anything deeper already has a closer registered ancestor.
	candidates := append([]Handle(nil), r.roots...)
	if parent != None {
		candidates = append(candidates, r.nodes[parent].Children...)
		r.nodes[parent].Children = append(r.nodes[parent].Children, h)
	} else {
		r.roots = append(r.roots, h)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	for _, c := range candidates {
		cn := r.nodes[c]
		if c == h || cn.explicit {
			continue
		}
		if r.nearestLocked(cn.Element) == h {
			r.detachLocked(cn)
			cn.Parent = h
			n.Children = append(n.Children, c)
		}
	}
	return h, nil
}

// nearestLocked walks up the host tree from el to the nearest registered
// ancestor.
func (r *Registry[E]) nearestLocked(el E) Handle {
	cur := el
	for {
		p, ok := r.parentOf(cur)
		if !ok {
			return None
		}
		if h, ok := r.byElement[p]; ok {
			return h
		}
		cur = p
	}
}

// detachLocked unlinks n from its parent's children or from the roots.
func (r *Registry[E]) detachLocked(n *Node[E]) {
	if n.Parent == None {
		r.roots = without(r.roots, n.Handle)
		return
	}
	if p, ok := r.nodes[n.Parent]; ok {
		p.Children = without(p.Children, n.Handle)
	}
}

func without(hs []Handle, h Handle) []Handle {
	out := hs[:0:0]
	for _, x := range hs {
		if x != h {
			out = append(out, x)
		}
	}
	return out
}

// Unregister removes h from its parent and deletes its record. It does not
// recurse: children still registered become roots.
func (r *Registry[E]) Unregister(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[h]
	if !ok {
		return errors.New("E030").WithDetailf("handle %d", h)
	}
	r.detachLocked(n)
	for _, c := range n.Children {
		if cn, ok := r.nodes[c]; ok {
			cn.Parent = None
			r.roots = append(r.roots, c)
		}
	}
	delete(r.nodes, h)
	delete(r.byElement, n.Element)
	return nil
}

// Get returns a copy of the record for h.
func (r *Registry[E]) Get(h Handle) (Node[E], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[h]
	if !ok {
		return Node[E]{}, false
	}
	return n.clone(), true
}

// Lookup finds the handle registered for el.
func (r *Registry[E]) Lookup(el E) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byElement[el]
	return h, ok
}

// Update runs fn on the live record under the registry lock. fn must not
// call back into the registry.
func (r *Registry[E]) Update(h Handle, fn func(n *Node[E])) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[h]
	if !ok {
		return errors.New("E030").WithDetailf("handle %d", h)
	}
	parent, children, el := n.Parent, n.Children, n.Element
	fn(n)
	// Tree links and identity are owned by Register/Unregister.
	n.Handle, n.Parent, n.Children, n.Element = h, parent, children, el
	return nil
}

// SetData replaces the data of h.
func (r *Registry[E]) SetData(h Handle, data map[string]any) error {
	return r.Update(h, func(n *Node[E]) { n.Data = data })
}

// MergeData copies data over the existing data of h.
func (r *Registry[E]) MergeData(h Handle, data map[string]any) error {
	return r.Update(h, func(n *Node[E]) { n.Data = merged(n.Data, data) })
}

// SetState replaces the state of h.
func (r *Registry[E]) SetState(h Handle, state map[string]any) error {
	return r.Update(h, func(n *Node[E]) { n.State = state })
}

// MergeState copies state over the existing state of h.
func (r *Registry[E]) MergeState(h Handle, state map[string]any) error {
	return r.Update(h, func(n *Node[E]) { n.State = merged(n.State, state) })
}

func merged(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// SetSelectors replaces the selectors of h.
func (r *Registry[E]) SetSelectors(h Handle, sels []Selector) error {
	return r.Update(h, func(n *Node[E]) { n.Selectors = sels })
}

// SetSelectorValue replaces the value of the selector called name. The
// selector slice is copied, never modified in place.
func (r *Registry[E]) SetSelectorValue(h Handle, name string, value any) error {
	return r.Update(h, func(n *Node[E]) {
		next := make([]Selector, len(n.Selectors))
		for i, s := range n.Selectors {
			if s.Name == name {
				s.Value = value
			}
			next[i] = s
		}
		n.Selectors = next
	})
}

// AddBinding appends b under kind.
func (r *Registry[E]) AddBinding(h Handle, kind Kind, b Binding) error {
	return r.Update(h, func(n *Node[E]) {
		n.Bindings[kind] = append(n.Bindings[kind], b)
	})
}

// SetEvents replaces the events of h.
func (r *Registry[E]) SetEvents(h Handle, events []Event) error {
	return r.Update(h, func(n *Node[E]) { n.Events = events })
}

// AddEvent appends ev to the events of h.
func (r *Registry[E]) AddEvent(h Handle, ev Event) error {
	return r.Update(h, func(n *Node[E]) { n.Events = append(n.Events, ev) })
}

// Children returns a copy of the children of h.
func (r *Registry[E]) Children(h Handle) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.nodes[h]; ok {
		return append([]Handle(nil), n.Children...)
	}
	return nil
}

// Chain returns copies of h and its ancestors, root first.
func (r *Registry[E]) Chain(h Handle) []Node[E] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var chain []Node[E]
	for cur := h; cur != None; {
		n, ok := r.nodes[cur]
		if !ok {
			break
		}
		chain = append(chain, n.clone())
		cur = n.Parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Descendants returns h and all nodes below it in pre-order.
func (r *Registry[E]) Descendants(h Handle) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.nodes[h]; !ok {
		return nil
	}
	var out []Handle
	stack := []Handle{h}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		kids := r.nodes[cur].Children
		for i := len(kids) - 1; i >= 0; i-- {
			if _, ok := r.nodes[kids[i]]; ok {
				stack = append(stack, kids[i])
			}
		}
	}
	return out
}

// PostOrder returns h and all nodes below it, children before parents.
func (r *Registry[E]) PostOrder(h Handle) []Handle {
	pre := r.Descendants(h)
	// A reversed pre-order visits every child before its parent.
	out := make([]Handle, len(pre))
	for i, x := range pre {
		out[len(pre)-1-i] = x
	}
	return out
}

// Roots returns the handles that have no parent.
func (r *Registry[E]) Roots() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Handle(nil), r.roots...)
}

// Len returns the number of registered elements.
func (r *Registry[E]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
