package bind

import (
	"slices"

	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/catalog"
	"github.com/vango-dev/tapas/pkg/dom"
	"github.com/vango-dev/tapas/pkg/expr"
	"github.com/vango-dev/tapas/pkg/registry"
)

// Lifecycle hook names. Events with these names never reach the host.
var lifecycle = []string{"init", "change", "remove"}

func hasHook(events []registry.Event, name string) bool {
	return slices.ContainsFunc(events, func(e registry.Event) bool { return e.Name == name })
}

func (c *Controller) bindEvents(h registry.Handle, el *dom.Element, specs []Event) error {
	for _, s := range specs {
		var cb, val *expr.Program
		var act catalog.ActionCreator
		var err error
		if s.Callback != "" {
			if cb, err = c.engine.Compile(s.Callback); err != nil {
				return err
			}
		}
		if s.Value != "" {
			if val, err = c.engine.Compile(s.Value); err != nil {
				return err
			}
		}
		if s.Action != "" {
			if act, err = c.catalog.Action(s.Action); err != nil {
				return err
			}
		}

		run := func(event any) error { return c.runEvent(h, cb, val, act, event) }
		ev := registry.Event{Name: s.Name, Callback: run, Detach: func() {}}
		if !slices.Contains(lifecycle, s.Name) {
			target, err := c.target(el, s.Target)
			if err != nil {
				return err
			}
			ev.Detach = target.AddEventListener(s.Name, func(e *dom.Event) error { return run(e) })
		}
		if err := c.reg.AddEvent(h, ev); err != nil {
			ev.Detach()
			return err
		}
	}
	return nil
}

// runEvent evaluates an event binding. The callback runs first; when an
// action is named, the callback result (or the value result when there is
// no callback) becomes the action payload.
func (c *Controller) runEvent(h registry.Handle, cb, val *expr.Program, act catalog.ActionCreator, event any) error {
	chain := c.reg.Chain(h)
	if len(chain) == 0 {
		return nil
	}
	scope := Scope(chain)
	scope["event"] = eventValue(event)
	scope["set_state"] = expr.Func(func(args ...any) (any, error) {
		return nil, c.setState(h, args)
	})

	var payload any
	var err error
	if cb != nil {
		if payload, err = cb.Eval(scope); err != nil {
			return err
		}
	}
	if act == nil {
		return nil
	}
	if cb == nil && val != nil {
		if payload, err = val.Eval(scope); err != nil {
			return err
		}
	}
	return c.store.Dispatch(c.ctx, act(payload))
}

// setState merges a table into the node state and re-applies the node and
// its descendants.
func (c *Controller) setState(h registry.Handle, args []any) error {
	var update map[string]any
	if len(args) > 0 {
		switch v := args[0].(type) {
		case map[string]any:
			update = v
		case []any:
			if len(v) == 0 {
				update = map[string]any{}
			}
		}
	}
	if update == nil {
		return errors.New("E021")
	}
	if err := c.reg.MergeState(h, update); err != nil {
		return err
	}
	return c.ApplyBindings(h, true)
}

// fireHook runs every lifecycle hook of h with the given name.
func (c *Controller) fireHook(h registry.Handle, name string) error {
	n, ok := c.reg.Get(h)
	if !ok {
		return nil
	}
	var errs []error
	for _, ev := range n.Events {
		if ev.Name != name {
			continue
		}
		if err := ev.Callback(nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// eventValue is what expressions see as event.
func eventValue(event any) any {
	ev, ok := event.(*dom.Event)
	if !ok {
		return event
	}
	return map[string]any{
		"type":           ev.Type,
		"value":          ev.Value,
		"detail":         ev.Detail,
		"target":         elementValue(ev.Target),
		"current_target": elementValue(ev.CurrentTarget),
	}
}

func elementValue(el *dom.Element) any {
	if el == nil {
		return nil
	}
	id, _ := el.Attr(IDAttr)
	value, _ := el.Attr("value")
	return map[string]any{
		"id":    id,
		"tag":   el.Tag(),
		"value": value,
		"text":  el.Text(),
	}
}
