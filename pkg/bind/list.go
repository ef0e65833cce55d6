package bind

import (
	"reflect"

	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/dom"
	"github.com/vango-dev/tapas/pkg/expr"
	"github.com/vango-dev/tapas/pkg/registry"
)

// list keeps one stamped copy of a detached template per item.
type list struct {
	c         *Controller
	h         registry.Handle
	container *dom.Element
	template  *dom.Element
	conf      List

	// currentID is the id the template carries in the document; configID
	// is the id its configuration was registered under.
	currentID string
	configID  string

	children []registry.Handle
}

func (c *Controller) bindList(h registry.Handle, el *dom.Element, conf *List) error {
	if conf == nil {
		return nil
	}
	s := conf.withDefaults()
	tmpl, err := el.QuerySelector(s.TemplateTarget)
	if err != nil {
		return err
	}
	if tmpl == nil {
		return errors.New("E032").WithDetailf("template %q", s.TemplateTarget)
	}
	tmpl.Remove()

	l := &list{c: c, h: h, container: el, template: tmpl, conf: s}
	l.currentID, _ = tmpl.Attr(IDAttr)
	l.configID = l.currentID
	if tid, ok := tmpl.Attr(TemplateIDAttr); ok {
		l.configID = tid
	}
	return c.memoize(h, registry.KindList, s.Value, l.reconcile)
}

// reconcile brings the stamped children in line with value. Children are
// kept while their key matches the item at the same position; the first
// mismatch tears down that child and every one after it. Survivors get
// the new item and are re-applied, then missing positions are stamped.
func (l *list) reconcile(value any) (err error) {
	items, ok := sequence(value)
	if !ok {
		return errors.New("E020").WithDetailf("got %T", value)
	}

	c := l.c
	kept := make([]registry.Handle, 0, len(items))
	defer func() { l.children = kept }()

	invalid := false
	for i, ch := range l.children {
		n, ok := c.reg.Get(ch)
		if !ok {
			invalid = true
			continue
		}
		if !invalid && !l.sameKey(n.Data[l.conf.ItemName], items, i) {
			invalid = true
		}
		if invalid {
			if err := c.Unbind(ch); err != nil {
				return err
			}
			c.metrics.itemsRemoved.Inc()
			continue
		}
		kept = append(kept, ch)
	}

	for i, ch := range kept {
		if err := c.reg.MergeData(ch, l.data(i, items[i])); err != nil {
			return err
		}
		if err := c.ApplyBindings(ch, true); err != nil {
			return err
		}
	}

	for i := len(kept); i < len(items); i++ {
		ch, err := l.stamp(i, items[i])
		if ch != registry.None {
			kept = append(kept, ch)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *list) sameKey(old any, items []any, i int) bool {
	if l.conf.ItemKey == "" || i >= len(items) {
		return false
	}
	a, okA := expr.Field(old, l.conf.ItemKey)
	b, okB := expr.Field(items[i], l.conf.ItemKey)
	return okA && okB && expr.SameKey(a, b)
}

func (l *list) data(i int, item any) map[string]any {
	return map[string]any{l.conf.ItemName: item, l.conf.IndexName: i + 1}
}

// stamp clones the template for position i, rewrites its ids, registers it
// under the container, binds the template's configurations onto it and
// appends it.
func (l *list) stamp(i int, item any) (registry.Handle, error) {
	c := l.c
	clone := l.template.Clone()

	newID := ""
	if l.currentID != "" {
		newID = registry.IncrementID(l.currentID, i+1)
		if err := restamp(clone, l.currentID, newID); err != nil {
			return registry.None, err
		}
	}

	h, err := c.reg.Register(clone, l.h)
	if err != nil {
		return registry.None, err
	}
	c.metrics.elementsBound.Inc()
	c.metrics.itemsCreated.Inc()
	if err := c.reg.Update(h, func(n *registry.Node[*dom.Element]) {
		n.ConfigID = newID
		n.Data = l.data(i, item)
	}); err != nil {
		return h, err
	}

	if l.configID != "" {
		for _, e := range c.configs.Nested(l.configID) {
			id := registry.ReplacePrefix(e.ID, l.configID, newID)
			if err := c.initElement(id, e.Config, clone); err != nil {
				return h, err
			}
		}
	}
	l.container.AppendChild(clone)
	return h, nil
}

// restamp moves the ids of el and its descendants from the prefix cur to
// next, recording each original id as the template id.
func restamp(el *dom.Element, cur, next string) error {
	nodes, err := el.QuerySelectorAll("[" + IDAttr + "]")
	if err != nil {
		return err
	}
	for _, n := range append(nodes, el) {
		id, _ := n.Attr(IDAttr)
		if !registry.HasPrefix(id, cur) {
			continue
		}
		if !n.HasAttr(TemplateIDAttr) {
			n.SetAttr(TemplateIDAttr, id)
		}
		n.SetAttr(IDAttr, registry.ReplacePrefix(id, cur, next))
	}
	return nil
}

func sequence(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
