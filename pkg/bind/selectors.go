package bind

import (
	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/expr"
	"github.com/vango-dev/tapas/pkg/registry"
)

// bindSelectors resolves each selector, computes its first value and
// subscribes it to the store. Every notification recomputes the value,
// stores it on the node and re-applies the node's own bindings.
func (c *Controller) bindSelectors(h registry.Handle, specs []SelectorSpec) (err error) {
	sels := make([]registry.Selector, 0, len(specs))
	defer func() {
		if err != nil {
			for _, s := range sels {
				s.Unsubscribe()
			}
		}
	}()

	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if seen[s.Name] {
			return errors.New("E040").WithDetailf("duplicate selector name %q", s.Name)
		}
		seen[s.Name] = true

		fn, err := c.catalog.Selector(s.Selector)
		if err != nil {
			return err
		}
		args := make([]*expr.Program, len(s.Args))
		for i, src := range s.Args {
			if args[i], err = c.engine.Compile(src); err != nil {
				return err
			}
		}

		compute := func() (any, error) {
			state := c.store.State()
			if len(args) == 0 {
				return fn(state)
			}
			scope := Scope(c.reg.Chain(h))
			vals := make([]any, len(args))
			for i, a := range args {
				v, err := a.Eval(scope)
				if err != nil {
					return nil, err
				}
				vals[i] = v
			}
			return fn(state, vals...)
		}

		v, err := compute()
		if err != nil {
			return err
		}
		name := s.Name
		unsubscribe := c.store.Subscribe(func() error {
			return c.refresh(h, name, compute)
		})
		sels = append(sels, registry.Selector{Name: name, Key: s.Selector, Value: v, Unsubscribe: unsubscribe})
	}
	return c.reg.SetSelectors(h, sels)
}

func (c *Controller) refresh(h registry.Handle, name string, compute func() (any, error)) error {
	if _, ok := c.reg.Get(h); !ok {
		return nil
	}
	c.metrics.notifications.Inc()
	v, err := compute()
	if err != nil {
		return err
	}
	if err := c.reg.SetSelectorValue(h, name, v); err != nil {
		return err
	}
	return c.ApplyBindings(h, false)
}
