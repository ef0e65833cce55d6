package dom

import (
	"bytes"
	"io"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vango-dev/tapas/internal/errors"
)

// Document is a mutable HTML tree with listeners and mutation observers.
// It is not safe for concurrent use; one goroutine owns a document.
type Document struct {
	root      *html.Node
	elements  map[*html.Node]*Element
	listeners map[*Element][]*listener
	observers map[int]func(Patch)
	nextObs   int
	selectors map[string]cascadia.SelectorGroup
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Document{
		root:      root,
		elements:  make(map[*html.Node]*Element),
		listeners: make(map[*Element][]*listener),
		observers: make(map[int]func(Patch)),
		selectors: make(map[string]cascadia.SelectorGroup),
	}, nil
}

// ParseString parses an HTML document held in a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document.
func (d *Document) String() string {
	var b bytes.Buffer
	_ = d.Render(&b)
	return b.String()
}

// Wrap returns the Element for n. The same node always yields the same
// *Element, so elements can be used as map keys.
func (d *Document) Wrap(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	if el, ok := d.elements[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.elements[n] = el
	return el
}

// Release forgets el and its descendants along with their listeners.
// Call it once a detached element will not be attached again; wrapping one
// of its nodes afterwards yields a new *Element.
func (d *Document) Release(el *Element) {
	if el != nil {
		d.release(el.node)
	}
}

func (d *Document) release(n *html.Node) {
	if el, ok := d.elements[n]; ok {
		delete(d.listeners, el)
		delete(d.elements, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.release(c)
	}
}

// Wrapped returns the number of nodes with a live *Element.
func (d *Document) Wrapped() int {
	return len(d.elements)
}

// Body returns the body element.
func (d *Document) Body() *Element {
	el, _ := d.QuerySelector("body")
	return el
}

// Head returns the head element.
func (d *Document) Head() *Element {
	el, _ := d.QuerySelector("head")
	return el
}

// CreateElement returns a new detached element.
func (d *Document) CreateElement(tag string) *Element {
	tag = strings.ToLower(tag)
	return d.Wrap(&html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	})
}

// QuerySelector returns the first element in the document matching sel.
func (d *Document) QuerySelector(sel string) (*Element, error) {
	m, err := d.compile(sel)
	if err != nil {
		return nil, err
	}
	return d.Wrap(cascadia.Query(d.root, m)), nil
}

// QuerySelectorAll returns every element in the document matching sel.
func (d *Document) QuerySelectorAll(sel string) ([]*Element, error) {
	m, err := d.compile(sel)
	if err != nil {
		return nil, err
	}
	return d.wrapAll(cascadia.QueryAll(d.root, m)), nil
}

func (d *Document) wrapAll(ns []*html.Node) []*Element {
	out := make([]*Element, len(ns))
	for i, n := range ns {
		out[i] = d.Wrap(n)
	}
	return out
}

func (d *Document) compile(sel string) (cascadia.SelectorGroup, error) {
	if m, ok := d.selectors[sel]; ok {
		return m, nil
	}
	m, err := cascadia.ParseGroup(sel)
	if err != nil {
		return nil, errors.New("E004").WithDetailf("%q", sel).Wrap(err)
	}
	d.selectors[sel] = m
	return m, nil
}

// Observe registers fn to receive a patch for every mutation of an
// attached node. The returned function stops observing.
func (d *Document) Observe(fn func(Patch)) (stop func()) {
	d.nextObs++
	id := d.nextObs
	d.observers[id] = fn
	return func() { delete(d.observers, id) }
}

func (d *Document) emit(p Patch) {
	for _, fn := range d.observers {
		fn(p)
	}
}

// attached reports whether n is part of the document tree.
func (d *Document) attached(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == d.root {
			return true
		}
	}
	return false
}

// path returns the child index path from the root to n.
func (d *Document) path(n *html.Node) []int {
	var rev []int
	for cur := n; cur != nil && cur != d.root; cur = cur.Parent {
		i := 0
		for s := cur.PrevSibling; s != nil; s = s.PrevSibling {
			i++
		}
		rev = append(rev, i)
	}
	out := make([]int, len(rev))
	for i, x := range rev {
		out[len(rev)-1-i] = x
	}
	return out
}

// record emits p for n when anyone observes and n is attached.
func (d *Document) record(n *html.Node, p Patch) {
	if len(d.observers) == 0 || !d.attached(n) {
		return
	}
	p.Path = d.path(n)
	d.emit(p)
}

// ResolvePath returns the node at a path produced by an observer.
func (d *Document) ResolvePath(path []int) (*Element, bool) {
	cur := d.root
	for _, idx := range path {
		child := cur.FirstChild
		for i := 0; i < idx && child != nil; i++ {
			child = child.NextSibling
		}
		if child == nil {
			return nil, false
		}
		cur = child
	}
	if cur.Type != html.ElementNode {
		return nil, false
	}
	return d.Wrap(cur), true
}
