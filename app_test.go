package tapas

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/tapas/internal/config"
	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/catalog"
)

const filmsPage = `<!DOCTYPE html><html><head><title>films</title><link rel="stylesheet" href="/static/site.css"></head>` +
	`<body><div data-tapas-id="1"><input data-tapas-id="1.1"><ul data-tapas-id="1.2"><li data-tapas-id="1.2.1"></li></ul>` +
	`<p data-tapas-id="1.3"></p><b data-tapas-id="1.4"></b></div></body></html>`

const filmsBindings = `
- id: "1"
  events: {name: init, action: load}
- id: "1.1"
  selectors: [{selector: search, name: search}]
  attributes: {name: value, value: search}
  events: {name: input, value: event.value, action: setSearch}
- id: "1.2"
  selectors: [{selector: films, name: films}]
  list: {value: films, itemKey: item.id}
- id: "1.2.1"
  text: {value: item.title}
- id: "1.3"
  selectors: [{selector: picked, name: picked, args: "{1}"}]
  text: {value: "#picked"}
- id: "1.4"
  text: {value: site, transform: shout}
`

// filmsAPI answers /films?q= with two films and records the queries.
type filmsAPI struct {
	mu      sync.Mutex
	queries []string
}

func (f *filmsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.queries = append(f.queries, r.URL.Query().Get("q"))
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"results":[{"id":1,"title":"A New Hope"},{"id":2,"title":"Empire"}]}`)
}

func (f *filmsAPI) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func writeProject(t *testing.T, apiURL, bindings string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := map[string]any{
		"name":         "films",
		"document":     "index.html",
		"stateFile":    "state.json",
		"initialState": map[string]any{"search": "", "films": []any{}},
		"selectors":    map[string]any{"search": "search", "films": "films"},
		"filters":      map[string]any{"picked": map[string]any{"list": "films", "field": "id"}},
		"actions":      map[string]any{"setSearch": "SET_SEARCH", "load": "LOAD"},
		"reducer": []any{
			map[string]any{"type": "SET_SEARCH", "op": "set", "path": "search"},
			map[string]any{"type": "LOADED", "op": "set", "path": "films"},
		},
		"fetch": map[string]any{
			"LOAD": map[string]any{"url": apiURL + "/films?q={{search}}", "result": "results", "success": "LOADED"},
		},
		"static": map[string]any{"dir": "public"},
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		config.ConfigFileName: string(data),
		"index.html":          filmsPage,
		"bindings.yaml":       bindings,
		"state.json":          `{"search": "hope"}`,
		"public/site.css":     "body{}",
	}
	for name, content := range files {
		writeStaticFile(t, dir, name, content)
	}
	return dir
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func shout(c *catalog.Catalog) {
	c.Transforms.Register("shout", func(v any) (any, error) {
		s, _ := v.(string)
		return strings.ToUpper(s) + "!", nil
	})
}

func loadApp(t *testing.T, dir string) *App {
	t.Helper()
	app, err := Load(dir,
		WithLogger(quietLogger()),
		WithCatalog(shout),
		WithGlobal("site", "films"),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return app
}

func TestRender(t *testing.T) {
	api := &filmsAPI{}
	ts := httptest.NewServer(api)
	defer ts.Close()

	app := loadApp(t, writeProject(t, ts.URL, filmsBindings))
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var b bytes.Buffer
	if err := app.Render(ctx, &b); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := b.String()

	for _, want := range []string{
		`<input data-tapas-id="1.1" value="hope"/>`,
		`A New Hope</li>`,
		`Empire</li>`,
		`<p data-tapas-id="1.3">1</p>`,
		`<b data-tapas-id="1.4">FILMS!</b>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page lacks %s:\n%s", want, html)
		}
	}
	if got := api.seen(); len(got) != 1 || got[0] != "hope" {
		t.Errorf("api queries = %v, want [hope]", got)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		bindings string
		code     string
	}{
		{"valid", `[{id: "1.3", text: {value: "'x'"}}]`, ""},
		{"unknown selector", `[{id: "1.3", selectors: [{selector: nope, name: n}]}]`, "E001"},
		{"unknown action", `[{id: "1.1", events: {name: click, action: nope}}]`, "E002"},
		{"bad expression", `[{id: "1.3", text: {value: "1 +"}}]`, "E010"},
		{"missing element", `[{id: "9"}]`, "E034"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := loadApp(t, writeProject(t, "http://127.0.0.1:1", tt.bindings))
			defer app.Close()
			err := app.Check(context.Background())
			if got := errors.Code(err); got != tt.code {
				t.Errorf("Check = %v, want code %q", err, tt.code)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := writeProject(t, "http://127.0.0.1:1", filmsBindings)

	if _, err := Load(t.TempDir()); errors.Code(err) != "E141" {
		t.Errorf("no config: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "index.html")); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); errors.Code(err) != "E140" {
		t.Errorf("no document: %v", err)
	}

	dir = writeProject(t, "http://127.0.0.1:1", "- id: \"1\"\n  colour: red\n")
	if _, err := Load(dir); errors.Code(err) != "E042" {
		t.Errorf("bad descriptor: %v", err)
	}

	dir = writeProject(t, "http://127.0.0.1:1", filmsBindings)
	path := filepath.Join(dir, config.ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	writeStaticFile(t, dir, config.ConfigFileName, strings.Replace(string(data), `"op":"set"`, `"op":"explode"`, 1))
	_, err = Load(dir)
	var e *errors.Error
	if !errors.As(err, &e) || e.Code != "E122" || !strings.Contains(e.Detail, `unknown op "explode"`) {
		t.Errorf("bad reducer: %v", err)
	}
}

func TestServe(t *testing.T) {
	api := &filmsAPI{}
	ts := httptest.NewServer(api)
	defer ts.Close()

	app := loadApp(t, writeProject(t, ts.URL, filmsBindings))
	defer app.Close()
	defer app.Server().Shutdown(context.Background())

	get := func(path string) (int, string) {
		rr := httptest.NewRecorder()
		app.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr.Code, rr.Body.String()
	}

	code, body := get("/")
	if code != http.StatusOK || !strings.Contains(body, `src="/tapas.js"`) || !strings.Contains(body, `value="hope"`) {
		t.Errorf("GET / = %d:\n%s", code, body)
	}
	if n := app.Server().Sessions().Count(); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}

	if code, body := get("/static/site.css"); code != http.StatusOK || body != "body{}" {
		t.Errorf("GET /static/site.css = %d %q", code, body)
	}
	if code, body := get("/metrics"); code != http.StatusOK || !strings.Contains(body, "tapas_elements_bound") {
		t.Errorf("GET /metrics = %d, missing binding metrics", code)
	}
}
