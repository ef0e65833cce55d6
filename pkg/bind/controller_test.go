package bind

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/catalog"
	"github.com/vango-dev/tapas/pkg/dom"
	"github.com/vango-dev/tapas/pkg/expr"
	"github.com/vango-dev/tapas/pkg/registry"
	"github.com/vango-dev/tapas/pkg/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const page = `<html><body>
<div data-tapas-id="1">
  <h1 data-tapas-id="1.1"></h1>
  <input data-tapas-id="1.2" value="">
  <ul data-tapas-id="1.3"><li data-tapas-id="1.3.1"><span data-tapas-id="1.3.1.1"></span></li></ul>
</div>
</body></html>`

const descriptors = `
- id: "1"
  selectors:
    - {selector: custom, name: search, args: ["'list.search'"]}
    - {selector: custom, name: picked, selectorArgs: state.path}
  classes: {name: busy, value: state.busy}
  events:
    - {name: toggle, callback: "set_state({busy = not state.busy})"}
    - {name: init, callback: "record('init 1')"}
    - {name: remove, callback: "record('remove 1')"}
  defaultState: {busy: false, path: list.search}
- id: "1.1"
  selectors: [{selector: custom, name: title, args: ["'list.search'"]}]
  text: {value: title, transform: upper}
  events:
    - {name: change, callback: "record('change ' .. title)"}
    - {name: remove, callback: "record('remove 1.1')"}
- id: "1.2"
  attributes:
    - {name: value, value: search}
    - {name: disabled, value: "#search == 0"}
  events: {name: input, value: event.value, action: setSearch}
- id: "1.3"
  selectors: [{selector: items, name: items}]
  attributes: {name: data-count, value: "#items"}
  list: {value: items, itemKey: id}
- id: "1.3.1"
  attributes: {name: data-key, value: item.id}
  events: {name: remove, callback: "record('remove item ' .. item.id)"}
- id: "1.3.1.1"
  text: {value: "index .. ': ' .. item.name"}
`

type fixture struct {
	ctl  *Controller
	st   *store.Store
	subs *recordingStore
	doc  *dom.Document
	log  *[]string
}

// recordingStore notes, for every unsubscribe, how many nodes the
// registry still held at that moment.
type recordingStore struct {
	*store.Store
	ctl       *Controller
	remaining []int
}

func (s *recordingStore) Subscribe(fn store.Listener) (unsubscribe func()) {
	unsub := s.Store.Subscribe(fn)
	return func() {
		s.remaining = append(s.remaining, s.ctl.Registry().Len())
		unsub()
	}
}

func items(ids ...int) []any {
	names := map[int]string{1: "Luke", 2: "Leia", 3: "Han", 4: "Chewie"}
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = map[string]any{"id": id, "name": names[id]}
	}
	return out
}

func newFixture(t *testing.T, yaml string) *fixture {
	t.Helper()
	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}
	reducer, err := store.OpsReducer([]store.Op{
		{Type: "SET_SEARCH", Op: "set", Path: "list.search"},
		{Type: "SET_ITEMS", Op: "set", Path: "list.items"},
		{Type: "SET_OTHER", Op: "set", Path: "list.other"},
	})
	if err != nil {
		t.Fatal(err)
	}
	st := store.New(reducer, map[string]any{"list": map[string]any{
		"search": "han",
		"other":  "x",
		"items":  items(1, 2, 3),
	}})
	t.Cleanup(func() { _ = st.Close() })

	cat := catalog.New()
	cat.Selectors.Register("items", catalog.Path("list.items"))
	cat.Actions.Register("setSearch", catalog.Dispatch("SET_SEARCH"))

	var log []string
	engine := expr.NewEngine(expr.WithGlobal("record", expr.Func(func(args ...any) (any, error) {
		log = append(log, expr.String(args[0]))
		return nil, nil
	})))
	t.Cleanup(engine.Close)

	subs := &recordingStore{Store: st}
	ctl := New(doc, subs, cat, WithEngine(engine))
	subs.ctl = ctl
	ds, err := Decode(strings.NewReader(yaml))
	if err != nil {
		t.Fatal(err)
	}
	if err := ctl.BindAll(ds); err != nil {
		t.Fatal(err)
	}
	return &fixture{ctl: ctl, st: st, subs: subs, doc: doc, log: &log}
}

func (f *fixture) el(t *testing.T, id string) *dom.Element {
	t.Helper()
	el, err := f.doc.QuerySelector(`[data-tapas-id="` + id + `"]`)
	if err != nil || el == nil {
		t.Fatalf("element %s not found: %v", id, err)
	}
	return el
}

func (f *fixture) handle(t *testing.T, id string) registry.Handle {
	t.Helper()
	h, ok := f.ctl.Registry().Lookup(f.el(t, id))
	if !ok {
		t.Fatalf("element %s not registered", id)
	}
	return h
}

func (f *fixture) listText(t *testing.T) []string {
	t.Helper()
	lis, err := f.el(t, "1.3").QuerySelectorAll("li")
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, li := range lis {
		id, _ := li.Attr(IDAttr)
		key, _ := li.Attr("data-key")
		out = append(out, id+"|"+key+"|"+li.Text())
	}
	return out
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t, descriptors)
	if err := f.ctl.Bootstrap(); err != nil {
		t.Fatal(err)
	}

	if got := f.el(t, "1.1").Text(); got != "HAN" {
		t.Errorf("h1 text = %q", got)
	}
	input := f.el(t, "1.2")
	if v, _ := input.Attr("value"); v != "han" {
		t.Errorf("input value = %q", v)
	}
	if input.HasAttr("disabled") {
		t.Error("disabled should be removed for a non-empty search")
	}
	if v, _ := f.el(t, "1.3").Attr("data-count"); v != "3" {
		t.Errorf("data-count = %q", v)
	}

	want := []string{"1.3.1|1|1: Luke", "1.3.2|2|2: Leia", "1.3.3|3|3: Han"}
	if diff := cmp.Diff(want, f.listText(t)); diff != "" {
		t.Errorf("list (-want +got):\n%s", diff)
	}
	if tid, _ := f.el(t, "1.3.2.1").Attr(TemplateIDAttr); tid != "1.3.1.1" {
		t.Errorf("template id = %q", tid)
	}

	// Item spans are registered under their list item, items under the list.
	reg := f.ctl.Registry()
	if kids := reg.Children(f.handle(t, "1.3")); len(kids) != 3 {
		t.Errorf("list children = %d", len(kids))
	}
	span, _ := reg.Get(f.handle(t, "1.3.2.1"))
	if span.Parent != f.handle(t, "1.3.2") {
		t.Error("span should be registered under its list item")
	}

	if diff := cmp.Diff([]string{"init 1", "change han"}, filter(*f.log, "init", "change")); diff != "" {
		t.Errorf("hooks (-want +got):\n%s", diff)
	}
}

func filter(log []string, prefixes ...string) []string {
	var out []string
	for _, l := range log {
		for _, p := range prefixes {
			if strings.HasPrefix(l, p) {
				out = append(out, l)
			}
		}
	}
	return out
}

func TestListReconciliation(t *testing.T) {
	f := newFixture(t, descriptors)
	if err := f.ctl.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	first := f.handle(t, "1.3.1")
	ctx := context.Background()

	if err := f.ctl.Dispatch(ctx, store.Action{Type: "SET_ITEMS", Payload: items(1, 3)}); err != nil {
		t.Fatal(err)
	}
	want := []string{"1.3.1|1|1: Luke", "1.3.2|3|2: Han"}
	if diff := cmp.Diff(want, f.listText(t)); diff != "" {
		t.Errorf("list (-want +got):\n%s", diff)
	}
	if h := f.handle(t, "1.3.1"); h != first {
		t.Error("the matching first item should be kept")
	}
	if diff := cmp.Diff([]string{"remove item 2", "remove item 3"}, filter(*f.log, "remove item")); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	if v, _ := f.el(t, "1.3").Attr("data-count"); v != "2" {
		t.Errorf("data-count = %q", v)
	}

	if err := f.ctl.Dispatch(ctx, store.Action{Type: "SET_ITEMS", Payload: items(1, 3, 4)}); err != nil {
		t.Fatal(err)
	}
	want = []string{"1.3.1|1|1: Luke", "1.3.2|3|2: Han", "1.3.3|4|3: Chewie"}
	if diff := cmp.Diff(want, f.listText(t)); diff != "" {
		t.Errorf("list after append (-want +got):\n%s", diff)
	}

	if err := f.ctl.Dispatch(ctx, store.Action{Type: "SET_ITEMS", Payload: []any{}}); err != nil {
		t.Fatal(err)
	}
	if got := f.listText(t); len(got) != 0 {
		t.Errorf("list should be empty, got %v", got)
	}
	// 1, 1.1, 1.2, 1.3 remain.
	if n := f.ctl.Registry().Len(); n != 4 {
		t.Errorf("registry Len = %d, want 4", n)
	}
}

func TestListKeysCompareNumerically(t *testing.T) {
	f := newFixture(t, descriptors)
	if err := f.ctl.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	first := f.handle(t, "1.3.1")

	// Keys decoded from JSON arrive as float64.
	payload := []any{
		map[string]any{"id": 1.0, "name": "Luke"},
		map[string]any{"id": 2.0, "name": "Leia"},
	}
	if err := f.ctl.Dispatch(context.Background(), store.Action{Type: "SET_ITEMS", Payload: payload}); err != nil {
		t.Fatal(err)
	}
	if h := f.handle(t, "1.3.1"); h != first {
		t.Error("an item whose key only changed numeric type should be kept")
	}
	if diff := cmp.Diff([]string{"remove item 3"}, filter(*f.log, "remove item")); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
}

func TestListReleasesRemovedItems(t *testing.T) {
	f := newFixture(t, descriptors)
	if err := f.ctl.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	cycle := func() {
		t.Helper()
		for _, ids := range [][]int{{3, 2, 1}, {1, 2, 3}} {
			if err := f.ctl.Dispatch(ctx, store.Action{Type: "SET_ITEMS", Payload: items(ids...)}); err != nil {
				t.Fatal(err)
			}
			if got := len(f.listText(t)); got != 3 {
				t.Fatalf("items = %d, want 3", got)
			}
		}
	}

	cycle()
	base := f.doc.Wrapped()
	for i := 0; i < 20; i++ {
		cycle()
	}
	if got := f.doc.Wrapped(); got != base {
		t.Errorf("wrapped elements grew from %d to %d across restamps", base, got)
	}
}

func TestListWithoutKeyRecreates(t *testing.T) {
	f := newFixture(t, strings.Replace(descriptors, "list: {value: items, itemKey: id}", "list: {value: items}", 1))
	if err := f.ctl.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	first := f.handle(t, "1.3.1")
	if err := f.ctl.Dispatch(context.Background(), store.Action{Type: "SET_ITEMS", Payload: items(1, 2)}); err != nil {
		t.Fatal(err)
	}
	if f.handle(t, "1.3.1") == first {
		t.Error("without a key every item is recreated")
	}
	if got := len(f.listText(t)); got != 2 {
		t.Errorf("items = %d", got)
	}
}

func TestListRejectsNonSequence(t *testing.T) {
	f := newFixture(t, descriptors)
	if err := f.ctl.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	err := f.ctl.Dispatch(context.Background(), store.Action{Type: "SET_ITEMS", Payload: "nope"})
	if errors.Code(err) != "E020" {
		t.Errorf("error = %v, want E020", err)
	}
}

func TestEvents(t *testing.T) {
	f := newFixture(t, descriptors)
	if err := f.ctl.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := f.ctl.HandleEvent(ctx, f.el(t, "1.2"), &dom.Event{Type: "input", Value: "leia"}); err != nil {
		t.Fatal(err)
	}
	if v, _ := store.Lookup(f.st.State(), "list.search"); v != "leia" {
		t.Errorf("search = %v", v)
	}
	if got := f.el(t, "1.1").Text(); got != "LEIA" {
		t.Errorf("h1 text = %q", got)
	}
	if diff := cmp.Diff([]string{"change han", "change leia"}, filter(*f.log, "change")); diff != "" {
		t.Errorf("change hooks (-want +got):\n%s", diff)
	}

	div := f.el(t, "1")
	if err := f.ctl.HandleEvent(ctx, div, &dom.Event{Type: "toggle"}); err != nil {
		t.Fatal(err)
	}
	if !div.HasClass("busy") {
		t.Error("set_state should re-apply the class binding")
	}
	n, _ := f.ctl.Registry().Get(f.handle(t, "1"))
	if n.State["busy"] != true || n.State["path"] != "list.search" {
		t.Errorf("state = %v", n.State)
	}
	if err := f.ctl.HandleEvent(ctx, div, &dom.Event{Type: "toggle"}); err != nil {
		t.Fatal(err)
	}
	if div.HasClass("busy") {
		t.Error("second toggle should remove the class")
	}
}

func TestSelectorArgsUseCurrentScope(t *testing.T) {
	f := newFixture(t, descriptors)
	if err := f.ctl.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	h := f.handle(t, "1")
	picked := func() any {
		n, _ := f.ctl.Registry().Get(h)
		for _, s := range n.Selectors {
			if s.Name == "picked" {
				return s.Value
			}
		}
		return nil
	}
	if v := picked(); v != "han" {
		t.Fatalf("picked = %v", v)
	}

	if err := f.ctl.Registry().MergeState(h, map[string]any{"path": "list.other"}); err != nil {
		t.Fatal(err)
	}
	if err := f.ctl.Dispatch(context.Background(), store.Action{Type: "NOOP"}); err != nil {
		t.Fatal(err)
	}
	if v := picked(); v != "x" {
		t.Errorf("picked after state change = %v, want x", v)
	}
}

func TestUnbind(t *testing.T) {
	f := newFixture(t, descriptors)
	if err := f.ctl.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	listeners := f.st.Listeners()
	if listeners == 0 {
		t.Fatal("expected store subscriptions")
	}
	root := f.handle(t, "1")
	div := f.el(t, "1")

	if err := f.ctl.Unbind(root); err != nil {
		t.Fatal(err)
	}
	if n := f.ctl.Registry().Len(); n != 0 {
		t.Errorf("registry Len = %d, want 0", n)
	}
	if n := f.st.Listeners(); n != 0 {
		t.Errorf("store listeners = %d, want 0", n)
	}
	if div.Attached() {
		t.Error("element should be detached")
	}
	if div.ListenerCount() != 0 {
		t.Error("listeners should be detached")
	}

	removes := filter(*f.log, "remove")
	if len(removes) == 0 || removes[len(removes)-1] != "remove 1" {
		t.Errorf("root must be removed last, got %v", removes)
	}

	// 1 subscribes search and picked, 1.1 title and 1.3 items. The root's
	// selectors go last, once every descendant is unregistered.
	got := f.subs.remaining
	want := []int{1, 1}
	if len(got) != 4 {
		t.Fatalf("unsubscribes = %v, want 4", got)
	}
	if diff := cmp.Diff(want, got[2:]); diff != "" {
		t.Errorf("root unsubscribes (-want +got):\n%s", diff)
	}
	for i, n := range got[:2] {
		if n <= 1 {
			t.Errorf("unsubscribe %d ran with %d nodes left; children must go before the root", i, n)
		}
		if i > 0 && n > got[i-1] {
			t.Errorf("unsubscribes out of post-order: %v", got)
		}
	}
	if err := f.ctl.Unbind(root); errors.Code(err) != "E030" {
		t.Errorf("second Unbind = %v, want E030", err)
	}
}

func TestInitSkippedForRemovedNodes(t *testing.T) {
	f := newFixture(t, descriptors)
	ds, _ := Decode(strings.NewReader(descriptors))
	if err := f.ctl.initElement("1", ds[0], nil); err != nil {
		t.Fatal(err)
	}
	if err := f.ctl.Unbind(f.handle(t, "1")); err != nil {
		t.Fatal(err)
	}
	f.ctl.Queue().Drain()
	if got := filter(*f.log, "init"); len(got) != 0 {
		t.Errorf("init ran for a removed node: %v", got)
	}
}

func TestBindErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		code string
	}{
		{"unknown selector", `[{id: "1", selectors: [{selector: nope, name: x}]}]`, "E001"},
		{"unknown action", `[{id: "1.2", events: {name: input, action: nope}}]`, "E002"},
		{"unknown transform", `[{id: "1.1", text: {value: "1", transform: nope}}]`, "E003"},
		{"bad expression", `[{id: "1.1", text: {value: "1 +"}}]`, "E010"},
		{"missing target", `[{id: "1", text: {value: "1", target: ".nope"}}]`, "E034"},
		{"duplicate selector", `[{id: "1", selectors: [{selector: custom, name: x}, {selector: custom, name: x}]}]`, "E040"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.yaml)
			err := f.ctl.Bootstrap()
			if errors.Code(err) != tt.code {
				t.Errorf("Bootstrap = %v, want %s", err, tt.code)
			}
		})
	}

	f := newFixture(t, `[]`)
	if err := f.ctl.Bind(Descriptor{ID: "9"}); errors.Code(err) != "E034" {
		t.Errorf("Bind unknown element = %v, want E034", err)
	}
}

func TestDecode(t *testing.T) {
	ds, err := Decode(strings.NewReader(descriptors))
	if err != nil {
		t.Fatal(err)
	}
	if len(ds) != 6 {
		t.Fatalf("len = %d", len(ds))
	}
	if diff := cmp.Diff([]string{"state.path"}, ds[0].Selectors[1].Args); diff != "" {
		t.Errorf("selectorArgs (-want +got):\n%s", diff)
	}
	if len(ds[0].Classes) != 1 || ds[0].Classes[0].Name != "busy" {
		t.Errorf("single class = %+v", ds[0].Classes)
	}
	if len(ds[2].Attributes) != 2 {
		t.Errorf("attributes = %+v", ds[2].Attributes)
	}

	json := `[{"id": "1", "text": {"value": "x"}, "list": {"value": "items"}}]`
	ds, err = Decode(strings.NewReader(json))
	if err != nil {
		t.Fatal(err)
	}
	if ds[0].List.Value != "items" || len(ds[0].Text) != 1 {
		t.Errorf("json descriptor = %+v", ds[0])
	}

	tests := []struct {
		src  string
		code string
	}{
		{`[{id: "1", texts: {value: x}}]`, "E042"},
		{`[{id: "1", selectors: [{selector: items, nmae: items}]}]`, "E042"},
		{`[{id: "1", attributes: {name: title, vlaue: x}}]`, "E042"},
		{`[{id: "1", events: [{name: click, action: go}, {name: input, acton: go}]}]`, "E042"},
		{`[{id: "1", list: {value: items, itemkey: id}}]`, "E042"},
		{`[{text: {value: x}}]`, "E041"},
		{`{id: 1`, "E040"},
	}
	for _, tt := range tests {
		if _, err := Decode(strings.NewReader(tt.src)); errors.Code(err) != tt.code {
			t.Errorf("Decode(%s) = %v, want %s", tt.src, err, tt.code)
		}
	}
}

func TestLoadLocatesErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		line int
	}{
		{"nested key", "- id: \"1\"\n  selectors:\n    - {selector: items, nmae: items}\n", "E042", 3},
		{"top-level key", "- id: \"1\"\n  colour: red\n", "E042", 2},
		// The parser picks the line of a syntax error.
		{"syntax", "- id: \"1\"\n  text: [\n", "E040", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bindings.yaml")
			if err := os.WriteFile(path, []byte(tt.src), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			var e *errors.Error
			if !errors.As(err, &e) || e.Code != tt.code {
				t.Fatalf("Load = %v, want %s", err, tt.code)
			}
			if e.Location == nil || e.Location.File != path {
				t.Fatalf("Location = %+v, want file %s", e.Location, path)
			}
			if tt.line == 0 {
				return
			}
			if e.Location.Line != tt.line {
				t.Errorf("Location.Line = %d, want %d", e.Location.Line, tt.line)
			}
			if len(e.Context) == 0 {
				t.Error("Context should hold the surrounding lines")
			}
		})
	}

	_, err := Decode(strings.NewReader(`[{text: {value: x}}]`))
	var e *errors.Error
	if !errors.As(err, &e) || e.Example == "" {
		t.Errorf("E041 should show an example, got %+v", e)
	}
}
