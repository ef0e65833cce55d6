package store

import (
	"github.com/vango-dev/tapas/internal/errors"
)

// Op is a declarative reducer rule: when an action of Type is dispatched,
// apply Op at Path.
//
//	set     path = payload (or Value when given)
//	merge   shallow merge the payload map into the map at path
//	append  append the payload, spreading slices
//	toggle  negate the value at path
//	reset   path = Value
type Op struct {
	Type  string `json:"type" yaml:"type"`
	Op    string `json:"op" yaml:"op"`
	Path  string `json:"path" yaml:"path"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

var opNames = map[string]bool{
	"set":    true,
	"merge":  true,
	"append": true,
	"toggle": true,
	"reset":  true,
}

// Validate checks that the op is known and has a type.
func (o Op) Validate() error {
	if o.Type == "" {
		return errors.New("E122").WithDetailf("reducer op %q has no action type", o.Op)
	}
	if !opNames[o.Op] {
		return errors.New("E122").WithDetailf("reducer action %q: unknown op %q", o.Type, o.Op).
			WithSuggestion("Use one of set, merge, append, toggle or reset")
	}
	return nil
}

// OpsReducer builds a reducer from rules. Rules for the same action type
// apply in order; actions without rules return the state unchanged.
func OpsReducer(ops []Op) (Reducer, error) {
	byType := make(map[string][]Op)
	for _, o := range ops {
		if err := o.Validate(); err != nil {
			return nil, err
		}
		byType[o.Type] = append(byType[o.Type], o)
	}

	return func(state any, a Action) any {
		for _, o := range byType[a.Type] {
			state = o.apply(state, a)
		}
		return state
	}, nil
}

func (o Op) apply(state any, a Action) any {
	switch o.Op {
	case "set":
		v := a.Payload
		if o.Value != nil {
			v = o.Value
		}
		return SetPath(state, o.Path, v)
	case "merge":
		fields, ok := a.Payload.(map[string]any)
		if !ok {
			return state
		}
		return MergePath(state, o.Path, fields)
	case "append":
		return AppendPath(state, o.Path, a.Payload)
	case "toggle":
		return TogglePath(state, o.Path)
	case "reset":
		return SetPath(state, o.Path, o.Value)
	}
	return state
}
