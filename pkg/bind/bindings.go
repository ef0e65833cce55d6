package bind

import (
	"github.com/vango-dev/tapas/pkg/catalog"
	"github.com/vango-dev/tapas/pkg/dom"
	"github.com/vango-dev/tapas/pkg/expr"
	"github.com/vango-dev/tapas/pkg/registry"
)

// memoize compiles src and attaches a memoized binding of kind to h.
func (c *Controller) memoize(h registry.Handle, kind registry.Kind, src string, effect func(any) error) error {
	p, err := c.engine.Compile(src)
	if err != nil {
		return err
	}
	return c.reg.AddBinding(h, kind, NewMemo(p.Eval, effect))
}

// transform resolves an optional transform; the empty name passes values
// through.
func (c *Controller) transform(name string) (catalog.Transform, error) {
	if name == "" {
		return func(v any) (any, error) { return v, nil }, nil
	}
	return c.catalog.Transform(name)
}

func (c *Controller) bindText(h registry.Handle, el *dom.Element, specs []Value) error {
	for _, s := range specs {
		target, err := c.target(el, s.Target)
		if err != nil {
			return err
		}
		tr, err := c.transform(s.Transform)
		if err != nil {
			return err
		}
		err = c.memoize(h, registry.KindText, s.Value, func(v any) error {
			out, err := tr(v)
			if err != nil {
				return err
			}
			target.SetText(expr.String(out))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) bindHTML(h registry.Handle, el *dom.Element, specs []Value) error {
	for _, s := range specs {
		target, err := c.target(el, s.Target)
		if err != nil {
			return err
		}
		tr, err := c.transform(s.Transform)
		if err != nil {
			return err
		}
		err = c.memoize(h, registry.KindHTML, s.Value, func(v any) error {
			out, err := tr(v)
			if err != nil {
				return err
			}
			return target.SetHTML(expr.String(out))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// bindAttributes sets attributes from values: nil and false remove the
// attribute, true sets it empty, anything else sets its string form.
func (c *Controller) bindAttributes(h registry.Handle, el *dom.Element, specs []Named) error {
	for _, s := range specs {
		target, err := c.target(el, s.Target)
		if err != nil {
			return err
		}
		tr, err := c.transform(s.Transform)
		if err != nil {
			return err
		}
		name := s.Name
		err = c.memoize(h, registry.KindAttributes, s.Value, func(v any) error {
			out, err := tr(v)
			if err != nil {
				return err
			}
			switch out {
			case nil, false:
				target.RemoveAttr(name)
			case true:
				target.SetAttr(name, "")
			default:
				target.SetAttr(name, expr.String(out))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) bindClasses(h registry.Handle, el *dom.Element, specs []Named) error {
	for _, s := range specs {
		target, err := c.target(el, s.Target)
		if err != nil {
			return err
		}
		name := s.Name
		err = c.memoize(h, registry.KindClasses, s.Value, func(v any) error {
			target.ToggleClass(name, expr.Truthy(v))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
