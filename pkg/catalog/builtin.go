package catalog

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vango-dev/tapas/pkg/expr"
	"github.com/vango-dev/tapas/pkg/store"
)

// Custom reads the value at the dot path given as its first argument.
// Without an argument it returns the whole state.
func Custom(state any, args ...any) (any, error) {
	if len(args) == 0 {
		return state, nil
	}
	v, _ := store.Lookup(state, expr.String(args[0]))
	return v, nil
}

// Path returns a selector reading a fixed dot path of the state.
func Path(path string) Selector {
	return func(state any, _ ...any) (any, error) {
		v, _ := store.Lookup(state, path)
		return v, nil
	}
}

// Filter returns a selector over the list at listPath keeping the items
// whose field value appears in the sequence passed as the first argument.
// Results are memoized on the list and argument identity.
func Filter(listPath, field string) Selector {
	return Memoize(func(state any, args ...any) (any, error) {
		list, _ := store.Lookup(state, listPath)
		items, _ := list.([]any)
		var keep []any
		if len(args) > 0 {
			keep = toSlice(args[0])
		}
		out := []any{}
		for _, it := range items {
			v, _ := expr.Field(it, field)
			if slices.ContainsFunc(keep, func(k any) bool { return expr.String(k) == expr.String(v) }) {
				out = append(out, it)
			}
		}
		return out, nil
	}, listPath)
}

func toSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Memoize caches the last result of sel. A call whose inputs are the same
// (by expr.Same) as the previous call returns the previous result, so the
// bindings reading it see an unchanged value. With paths given, only the
// state at those paths is compared instead of the whole state.
func Memoize(sel Selector, paths ...string) Selector {
	var (
		mu     sync.Mutex
		have   bool
		inputs []any
		result any
	)
	return func(state any, args ...any) (any, error) {
		next := make([]any, 0, len(paths)+len(args)+1)
		if len(paths) == 0 {
			next = append(next, state)
		}
		for _, p := range paths {
			v, _ := store.Lookup(state, p)
			next = append(next, v)
		}
		next = append(next, args...)

		mu.Lock()
		defer mu.Unlock()
		if have && slices.EqualFunc(inputs, next, expr.Same) {
			return result, nil
		}
		v, err := sel(state, args...)
		if err != nil {
			return nil, err
		}
		have, inputs, result = true, next, v
		return v, nil
	}
}

// Dispatch returns an action creator for actions of type t.
func Dispatch(t string) ActionCreator {
	return func(payload any) store.Action {
		return store.Action{Type: t, Payload: payload}
	}
}

var titleCaser = cases.Title(language.Und)

var builtinTransforms = map[string]Transform{
	"upper":  stringTransform(strings.ToUpper),
	"lower":  stringTransform(strings.ToLower),
	"trim":   stringTransform(strings.TrimSpace),
	"title":  stringTransform(func(s string) string { return titleCaser.String(s) }),
	"string": stringTransform(func(s string) string { return s }),
	"json": func(v any) (any, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	},
	"length": length,
}

func stringTransform(fn func(string) string) Transform {
	return func(v any) (any, error) {
		return fn(expr.String(v)), nil
	}
}

func length(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case string:
		return utf8.RuneCountInString(t), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), nil
	}
	return nil, fmt.Errorf("length of %T", v)
}
