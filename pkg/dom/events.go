package dom

import (
	"errors"
	"slices"
)

// Event is a DOM event travelling from its target up through the
// ancestors.
type Event struct {
	Type          string
	Target        *Element
	CurrentTarget *Element
	// Value mirrors the target's value for input events.
	Value  string
	Detail any

	stopped bool
}

// StopPropagation keeps the event from reaching further ancestors.
func (ev *Event) StopPropagation() { ev.stopped = true }

// Listener handles an event.
type Listener func(*Event) error

type listener struct {
	typ string
	fn  Listener
}

// AddEventListener registers fn for events of type typ on e. The returned
// function removes it.
func (e *Element) AddEventListener(typ string, fn Listener) (remove func()) {
	l := &listener{typ: typ, fn: fn}
	e.doc.listeners[e] = append(e.doc.listeners[e], l)
	return func() {
		ls := e.doc.listeners[e]
		i := slices.Index(ls, l)
		if i < 0 {
			return
		}
		ls = slices.Delete(slices.Clone(ls), i, i+1)
		if len(ls) == 0 {
			delete(e.doc.listeners, e)
			return
		}
		e.doc.listeners[e] = ls
	}
}

// ListenerCount returns the number of listeners registered on e.
func (e *Element) ListenerCount() int {
	return len(e.doc.listeners[e])
}

// Dispatch delivers ev to the target and then bubbles it up through the
// ancestors. Every listener runs even when an earlier one fails; the
// errors are joined.
func (e *Element) Dispatch(ev *Event) error {
	ev.Target = e
	if ev.Value == "" {
		ev.Value, _ = e.Attr("value")
	}
	var errs []error
	for cur := e; cur != nil; {
		ev.CurrentTarget = cur
		for _, l := range slices.Clone(cur.doc.listeners[cur]) {
			if l.typ != ev.Type {
				continue
			}
			if err := l.fn(ev); err != nil {
				errs = append(errs, err)
			}
		}
		if ev.stopped {
			break
		}
		parent, ok := cur.Parent()
		if !ok {
			break
		}
		cur = parent
	}
	return errors.Join(errs...)
}
