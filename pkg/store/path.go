package store

import (
	"strconv"
	"strings"

	"github.com/vango-dev/tapas/pkg/expr"
)

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Lookup reads a dot separated path such as "list.itemList.0.name" from
// nested maps, structs and slices.
func Lookup(state any, path string) (any, bool) {
	cur := state
	for _, seg := range splitPath(path) {
		next, ok := expr.Field(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// SetPath returns a copy of state with path set to v. Only the maps and
// slices along the path are copied; every other branch is shared with the
// original. Missing intermediate maps are created.
func SetPath(state any, path string, v any) any {
	return update(state, splitPath(path), func(any) any { return v })
}

// UpdatePath is SetPath with the new value computed from the old one.
func UpdatePath(state any, path string, fn func(old any) any) any {
	return update(state, splitPath(path), fn)
}

// AppendPath appends items to the slice at path. A slice item is spread,
// matching Array.prototype.concat.
func AppendPath(state any, path string, items ...any) any {
	return update(state, splitPath(path), func(old any) any {
		cur, _ := old.([]any)
		next := make([]any, 0, len(cur)+len(items))
		next = append(next, cur...)
		for _, it := range items {
			if s, ok := it.([]any); ok {
				next = append(next, s...)
				continue
			}
			next = append(next, it)
		}
		return next
	})
}

// TogglePath negates the truthiness of the value at path.
func TogglePath(state any, path string) any {
	return update(state, splitPath(path), func(old any) any { return !expr.Truthy(old) })
}

// MergePath shallow merges fields into the map at path.
func MergePath(state any, path string, fields map[string]any) any {
	return update(state, splitPath(path), func(old any) any {
		cur, _ := old.(map[string]any)
		next := make(map[string]any, len(cur)+len(fields))
		for k, v := range cur {
			next[k] = v
		}
		for k, v := range fields {
			next[k] = v
		}
		return next
	})
}

func update(node any, segs []string, fn func(any) any) any {
	if len(segs) == 0 {
		return fn(node)
	}
	seg, rest := segs[0], segs[1:]

	if list, ok := node.([]any); ok {
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(list) {
			return node
		}
		next := append([]any(nil), list...)
		next[i] = update(list[i], rest, fn)
		return next
	}

	m, _ := node.(map[string]any)
	next := make(map[string]any, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	next[seg] = update(m[seg], rest, fn)
	return next
}
