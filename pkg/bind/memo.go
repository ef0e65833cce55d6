package bind

import (
	"maps"

	"github.com/vango-dev/tapas/pkg/expr"
	"github.com/vango-dev/tapas/pkg/registry"
)

// Memo runs an effect only when its computed value changes. The previous
// value starts out nil, so a first result of nil does not fire.
type Memo struct {
	compute func(expr.Scope) (any, error)
	effect  func(any) error
	prev    any
}

// NewMemo pairs compute with effect.
func NewMemo(compute func(expr.Scope) (any, error), effect func(any) error) *Memo {
	return &Memo{compute: compute, effect: effect}
}

// Apply computes the value for scope and fires the effect when it differs
// from the previous one by expr.Same. It reports whether the effect fired.
// The previous value is only replaced after the effect succeeds.
func (m *Memo) Apply(scope expr.Scope) (bool, error) {
	v, err := m.compute(scope)
	if err != nil {
		return false, err
	}
	if expr.Same(v, m.prev) {
		return false, nil
	}
	if err := m.effect(v); err != nil {
		return false, err
	}
	m.prev = v
	return true, nil
}

// MergeData merges the data of a root-first chain; later nodes win.
func MergeData[E comparable](chain []registry.Node[E]) map[string]any {
	out := make(map[string]any)
	for _, n := range chain {
		maps.Copy(out, n.Data)
	}
	return out
}

// MergeSelectors concatenates the selectors of a root-first chain. A later
// selector replaces an earlier one of the same name in place.
func MergeSelectors[E comparable](chain []registry.Node[E]) []registry.Selector {
	var out []registry.Selector
	at := make(map[string]int)
	for _, n := range chain {
		for _, s := range n.Selectors {
			if i, ok := at[s.Name]; ok {
				out[i] = s
				continue
			}
			at[s.Name] = len(out)
			out = append(out, s)
		}
	}
	return out
}

// Scope builds the evaluation scope for the last node of chain: merged
// data, then merged selector values, then the node's own state as state.
func Scope[E comparable](chain []registry.Node[E]) expr.Scope {
	s := expr.Scope(MergeData(chain))
	for _, sel := range MergeSelectors(chain) {
		s[sel.Name] = sel.Value
	}
	var state map[string]any
	if len(chain) > 0 {
		state = chain[len(chain)-1].State
	}
	if state == nil {
		state = map[string]any{}
	}
	s["state"] = state
	return s
}
