package templates

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"text/template"

	"github.com/vango-dev/tapas/internal/errors"
)

// Config contains template configuration.
type Config struct {
	// ProjectName is the name of the project.
	ProjectName string

	// Description is a short project description.
	Description string

	// Port is the live server port written to tapas.json.
	Port int
}

// Template represents a project template.
type Template struct {
	// Name is the template name.
	Name string

	// Description describes the template.
	Description string

	// Files is a map of relative paths to file contents.
	Files map[string]string
}

// Available templates.
var templates = map[string]*Template{
	"counter": counterTemplate(),
	"films":   filmsTemplate(),
}

// Get returns a template by name.
func Get(name string) (*Template, error) {
	tmpl, ok := templates[name]
	if !ok {
		return nil, errors.New("E144").
			WithDetail("Template '" + name + "' not found").
			WithSuggestion("Available templates: counter, films")
	}
	return tmpl, nil
}

// List returns all available template names in order.
func List() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Create generates a project from the template. Template actions use
// [[ ]] delimiters so the {{path}} placeholders of fetch URLs pass
// through untouched.
func (t *Template) Create(dir string, cfg Config) error {
	for relPath, content := range t.Files {
		tmpl, err := template.New(relPath).Delims("[[", "]]").Parse(content)
		if err != nil {
			return errors.Newf(errors.CategoryCLI, "invalid template %s: %v", relPath, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, cfg); err != nil {
			return errors.Newf(errors.CategoryCLI, "template execute error %s: %v", relPath, err)
		}

		fullPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
			return err
		}
	}
	return nil
}

// counterTemplate returns a page with a button and a click counter.
func counterTemplate() *Template {
	return &Template{
		Name:        "counter",
		Description: "A button and a click counter",
		Files: map[string]string{
			"tapas.json": `{
  "name": "[[.ProjectName]]",
  "document": "index.html",
  "bindings": "bindings.yaml",
  "initialState": {"count": 0},
  "selectors": {"count": "count"},
  "actions": {"increment": "INCREMENT", "reset": "RESET"},
  "reducer": [
    {"type": "INCREMENT", "op": "set", "path": "count"},
    {"type": "RESET", "op": "reset", "path": "count", "value": 0}
  ],
  "static": {"dir": "public"},
  "server": {"port": [[.Port]]}
}
`,
			"index.html": `<!DOCTYPE html>
<html>
<head>
  <title>[[.ProjectName]]</title>
  <link rel="stylesheet" href="/static/styles.css">
</head>
<body>
  <main data-tapas-id="1">
    <h1>[[.ProjectName]]</h1>
    <p data-tapas-id="1.1"></p>
    <button data-tapas-id="1.2">+1</button>
    <button data-tapas-id="1.3">Reset</button>
  </main>
</body>
</html>
`,
			"bindings.yaml": `# [[.Description]]
- id: "1"
  selectors:
    - {selector: count, name: count}

- id: "1.1"
  text: {value: "'Clicked ' .. count .. ' times'"}
  classes: {name: zero, value: "count == 0"}

- id: "1.2"
  events: {name: click, value: "count + 1", action: increment}

- id: "1.3"
  attributes: {name: disabled, value: "count == 0"}
  events: {name: click, action: reset}
`,
			"public/styles.css": `body { font-family: system-ui, sans-serif; max-width: 40rem; margin: 0 auto; padding: 2rem; }
.zero { color: #6b7280; }
`,
			"README.md": `# [[.ProjectName]]

[[.Description]]

    tapas check
    tapas serve
`,
		},
	}
}

// filmsTemplate returns a searchable list loaded over HTTP.
func filmsTemplate() *Template {
	return &Template{
		Name:        "films",
		Description: "A searchable film list loaded from an HTTP API",
		Files: map[string]string{
			"tapas.json": `{
  "name": "[[.ProjectName]]",
  "document": "index.html",
  "bindings": "bindings.yaml",
  "stateFile": "state.json",
  "selectors": {"search": "search", "films": "films", "loading": "loading", "favourites": "favourites"},
  "filters": {"starred": {"list": "films", "field": "url"}},
  "actions": {"setSearch": "SET_SEARCH", "load": "LOAD_FILMS", "favourite": "FAVOURITE"},
  "reducer": [
    {"type": "SET_SEARCH", "op": "set", "path": "search"},
    {"type": "LOAD_FILMS", "op": "set", "path": "loading", "value": true},
    {"type": "FILMS_LOADED", "op": "set", "path": "films"},
    {"type": "FILMS_LOADED", "op": "set", "path": "loading", "value": false},
    {"type": "FILMS_FAILED", "op": "set", "path": "loading", "value": false},
    {"type": "FAVOURITE", "op": "append", "path": "favourites"}
  ],
  "fetch": {
    "LOAD_FILMS": {
      "url": "https://swapi.dev/api/films/?search={{search}}",
      "result": "results",
      "success": "FILMS_LOADED",
      "failure": "FILMS_FAILED",
      "latest": true
    }
  },
  "static": {"dir": "public"},
  "server": {"port": [[.Port]]}
}
`,
			"state.json": `{
  "search": "",
  "films": [],
  "favourites": [],
  "loading": false
}
`,
			"index.html": `<!DOCTYPE html>
<html>
<head>
  <title>[[.ProjectName]]</title>
  <link rel="stylesheet" href="/static/styles.css">
</head>
<body>
  <main data-tapas-id="1">
    <input data-tapas-id="1.1" placeholder="Search films">
    <button data-tapas-id="1.5">Search</button>
    <p data-tapas-id="1.2">Loading...</p>
    <ul data-tapas-id="1.3">
      <li data-tapas-id="1.3.1">
        <span data-tapas-id="1.3.1.1"></span>
        <button data-tapas-id="1.3.1.2">&#9733;</button>
      </li>
    </ul>
    <p data-tapas-id="1.4"></p>
  </main>
</body>
</html>
`,
			"bindings.yaml": `# [[.Description]]
- id: "1"
  selectors: [{selector: favourites, name: favourites}]
  events: {name: init, action: load}

- id: "1.1"
  selectors: [{selector: search, name: search}]
  attributes: {name: value, value: search}
  events: {name: input, value: event.value, action: setSearch}

- id: "1.5"
  events: {name: click, action: load}

- id: "1.2"
  selectors: [{selector: loading, name: loading}]
  attributes: {name: hidden, value: "not loading"}

- id: "1.3"
  selectors: [{selector: films, name: films}]
  list: {value: films, itemKey: item.url}

- id: "1.3.1"
  attributes: {name: data-url, value: item.url}

- id: "1.3.1.1"
  text: {value: "index .. '. ' .. item.title", transform: trim}

- id: "1.3.1.2"
  events: {name: click, value: item.url, action: favourite}

- id: "1.4"
  selectors: [{selector: starred, name: starred, args: favourites}]
  text: {value: "#starred .. ' starred'"}
`,
			"public/styles.css": `body { font-family: system-ui, sans-serif; max-width: 40rem; margin: 0 auto; padding: 2rem; }
li { display: flex; justify-content: space-between; }
`,
			"README.md": `# [[.ProjectName]]

[[.Description]]

Films come from https://swapi.dev. Type a title and press Search.

    tapas check
    tapas serve
`,
		},
	}
}
