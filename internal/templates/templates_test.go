package templates

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/tapas"
	"github.com/vango-dev/tapas/internal/errors"
)

func TestGet(t *testing.T) {
	for _, name := range []string{"counter", "films"} {
		tmpl, err := Get(name)
		if err != nil {
			t.Fatalf("Get(%q): %v", name, err)
		}
		if tmpl.Name != name {
			t.Errorf("Name = %q, want %q", tmpl.Name, name)
		}
	}
	if _, err := Get("nonexistent"); errors.Code(err) != "E144" {
		t.Errorf("Get(nonexistent) = %v, want E144", err)
	}
}

func TestList(t *testing.T) {
	if diff := cmp.Diff([]string{"counter", "films"}, List()); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}
}

type offline struct{}

func (offline) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, stderrors.New("offline")
}

func create(t *testing.T, name string) string {
	t.Helper()
	dir := t.TempDir()
	tmpl, err := Get(name)
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{ProjectName: "my-" + name, Description: "A test project", Port: 4000}
	if err := tmpl.Create(dir, cfg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return dir
}

func load(t *testing.T, dir string) *tapas.App {
	t.Helper()
	app, err := tapas.Load(dir,
		tapas.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		tapas.WithHTTPClient(&http.Client{Transport: offline{}}),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func TestTemplatesProduceValidProjects(t *testing.T) {
	for _, name := range List() {
		t.Run(name, func(t *testing.T) {
			dir := create(t, name)
			app := load(t, dir)

			if got := app.Config().Name; got != "my-"+name {
				t.Errorf("Name = %q", got)
			}
			if got := app.Config().Server.Port; got != 4000 {
				t.Errorf("Port = %d", got)
			}
			if err := app.Check(context.Background()); err != nil {
				t.Errorf("Check: %v", err)
			}
			if _, err := os.Stat(filepath.Join(dir, "public", "styles.css")); err != nil {
				t.Errorf("stylesheet missing: %v", err)
			}
			readme, _ := os.ReadFile(filepath.Join(dir, "README.md"))
			if !strings.Contains(string(readme), "A test project") {
				t.Errorf("README lacks description:\n%s", readme)
			}
		})
	}
}

func TestFetchPlaceholdersSurvive(t *testing.T) {
	app := load(t, create(t, "films"))
	if got := app.Config().Fetch["LOAD_FILMS"].URL; !strings.HasSuffix(got, "?search={{search}}") {
		t.Errorf("fetch url = %q", got)
	}
}

func TestCounterRender(t *testing.T) {
	app := load(t, create(t, "counter"))
	var b bytes.Buffer
	if err := app.Render(context.Background(), &b); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`<p data-tapas-id="1.1" class="zero">Clicked 0 times</p>`,
		`<button data-tapas-id="1.3" disabled="">Reset</button>`,
	} {
		if !strings.Contains(b.String(), want) {
			t.Errorf("page lacks %s:\n%s", want, b.String())
		}
	}
}
