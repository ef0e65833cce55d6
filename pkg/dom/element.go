package dom

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Element is an element node of a Document.
type Element struct {
	doc  *Document
	node *html.Node
}

// Node returns the underlying html node.
func (e *Element) Node() *html.Node { return e.node }

// Document returns the owning document.
func (e *Element) Document() *Document { return e.doc }

// Tag returns the lower-case tag name.
func (e *Element) Tag() string { return e.node.Data }

// Attr returns the value of an attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether the attribute is present.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attr(name)
	return ok
}

// SetAttr sets an attribute, adding it when missing.
func (e *Element) SetAttr(name, value string) {
	for i, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == name {
			if a.Val == value {
				return
			}
			e.node.Attr[i].Val = value
			e.doc.record(e.node, Patch{Op: PatchSetAttr, Key: name, Value: value})
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
	e.doc.record(e.node, Patch{Op: PatchSetAttr, Key: name, Value: value})
}

// RemoveAttr removes an attribute if present.
func (e *Element) RemoveAttr(name string) {
	for i, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == name {
			e.node.Attr = append(e.node.Attr[:i], e.node.Attr[i+1:]...)
			e.doc.record(e.node, Patch{Op: PatchRemoveAttr, Key: name})
			return
		}
	}
}

// Classes returns the class list.
func (e *Element) Classes() []string {
	v, _ := e.Attr("class")
	return strings.Fields(v)
}

// HasClass reports whether the class list contains name.
func (e *Element) HasClass(name string) bool {
	for _, c := range e.Classes() {
		if c == name {
			return true
		}
	}
	return false
}

// ToggleClass adds name when on is true and removes it otherwise.
func (e *Element) ToggleClass(name string, on bool) {
	classes := e.Classes()
	has := false
	out := classes[:0]
	for _, c := range classes {
		if c == name {
			has = true
			if !on {
				continue
			}
		}
		out = append(out, c)
	}
	if on == has {
		return
	}
	if on {
		out = append(out, name)
	}
	e.SetAttr("class", strings.Join(out, " "))
}

// Text returns the text content of the element and its descendants.
func (e *Element) Text() string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.node)
	return b.String()
}

// SetText replaces the children of the element with one text node.
func (e *Element) SetText(s string) {
	e.clearChildren()
	if s != "" {
		e.node.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	}
	e.doc.record(e.node, Patch{Op: PatchSetText, Value: s})
}

// InnerHTML renders the children of the element.
func (e *Element) InnerHTML() string {
	var b bytes.Buffer
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&b, c)
	}
	return b.String()
}

// OuterHTML renders the element itself.
func (e *Element) OuterHTML() string {
	var b bytes.Buffer
	_ = html.Render(&b, e.node)
	return b.String()
}

// SetHTML parses markup in the context of the element and replaces its
// children with the result.
func (e *Element) SetHTML(markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), e.node)
	if err != nil {
		return err
	}
	e.clearChildren()
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	e.doc.record(e.node, Patch{Op: PatchSetHTML, Value: e.InnerHTML()})
	return nil
}

// clearChildren drops the children for good; nothing can reach them once
// the markup is replaced.
func (e *Element) clearChildren() {
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		e.doc.release(c)
		c = next
	}
}

// Parent returns the parent element. Detached elements and the root
// element have none.
func (e *Element) Parent() (*Element, bool) {
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil, false
	}
	return e.doc.Wrap(p), true
}

// Children returns the element children.
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.Wrap(c))
		}
	}
	return out
}

// Matches reports whether the element matches sel.
func (e *Element) Matches(sel string) (bool, error) {
	m, err := e.doc.compile(sel)
	if err != nil {
		return false, err
	}
	return m.Match(e.node), nil
}

// QuerySelector returns the first descendant matching sel, or nil.
func (e *Element) QuerySelector(sel string) (*Element, error) {
	m, err := e.doc.compile(sel)
	if err != nil {
		return nil, err
	}
	return e.doc.Wrap(cascadia.Query(e.node, m)), nil
}

// QuerySelectorAll returns every descendant matching sel.
func (e *Element) QuerySelectorAll(sel string) ([]*Element, error) {
	m, err := e.doc.compile(sel)
	if err != nil {
		return nil, err
	}
	return e.doc.wrapAll(cascadia.QueryAll(e.node, m)), nil
}

// Find returns the element itself when it matches sel, else the first
// matching descendant.
func (e *Element) Find(sel string) (*Element, error) {
	ok, err := e.Matches(sel)
	if err != nil {
		return nil, err
	}
	if ok {
		return e, nil
	}
	return e.QuerySelector(sel)
}

// AppendChild adds child as the last child of e, detaching it from its
// current parent first.
func (e *Element) AppendChild(child *Element) {
	if child.node.Parent != nil {
		child.Remove()
	}
	index := 0
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		index++
	}
	e.node.AppendChild(child.node)
	e.doc.record(e.node, Patch{Op: PatchInsertNode, Index: index, Value: child.OuterHTML()})
}

// Remove detaches the element from its parent.
func (e *Element) Remove() {
	p := e.node.Parent
	if p == nil {
		return
	}
	if len(e.doc.observers) > 0 && e.doc.attached(e.node) {
		e.doc.emit(Patch{Op: PatchRemoveNode, Path: e.doc.path(e.node)})
	}
	p.RemoveChild(e.node)
}

// Attached reports whether the element is part of the document tree.
func (e *Element) Attached() bool {
	return e.doc.attached(e.node)
}

// Clone returns a detached deep copy of the element. Listeners are not
// copied.
func (e *Element) Clone() *Element {
	return e.doc.Wrap(cloneNode(e.node))
}

func cloneNode(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(cloneNode(ch))
	}
	return c
}
