package tapas

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vango-dev/tapas/internal/config"
	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/bind"
	"github.com/vango-dev/tapas/pkg/catalog"
	"github.com/vango-dev/tapas/pkg/expr"
	"github.com/vango-dev/tapas/pkg/server"
	"github.com/vango-dev/tapas/pkg/store"
)

// App turns a tapas.json project into live pages: it owns what every page
// instance shares (document source, descriptors, reducer, expression
// engine, metrics) and builds a fresh document, store and controller per
// page.
type App struct {
	mu      sync.RWMutex
	project *project

	engine   *expr.Engine
	globals  []expr.Option
	registry *prometheus.Registry
	metrics  *bind.Metrics
	client   *http.Client
	extend   []func(*catalog.Catalog)
	logger   *slog.Logger

	serverOnce sync.Once
	server     *server.Server
}

// project is what Reload replaces: the configuration and the files it
// names.
type project struct {
	config      *config.Config
	source      []byte
	descriptors []bind.Descriptor
	reducer     store.Reducer
	state       map[string]any
}

func loadProject(cfg *config.Config) (*project, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &project{config: cfg}

	source, err := os.ReadFile(cfg.DocumentPath())
	if err != nil {
		return nil, errors.New("E140").WithDetail(cfg.DocumentPath()).Wrap(err)
	}
	p.source = source

	if p.descriptors, err = bind.Load(cfg.BindingsPath()); err != nil {
		return nil, err
	}
	if p.reducer, err = store.OpsReducer(cfg.Reducer); err != nil {
		return nil, err
	}
	if p.state, err = cfg.LoadState(); err != nil {
		return nil, err
	}
	return p, nil
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// WithRegistry sets the Prometheus registry for binding and server
// metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) {
		a.registry = reg
	}
}

// WithHTTPClient sets the client used by fetch handlers.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		a.client = c
	}
}

// WithCatalog registers Go selectors, actions or transforms next to the
// ones declared in tapas.json. fn runs for the catalog of every page.
func WithCatalog(fn func(*catalog.Catalog)) Option {
	return func(a *App) {
		a.extend = append(a.extend, fn)
	}
}

// WithGlobal makes v visible to every binding expression under name.
func WithGlobal(name string, v any) Option {
	return func(a *App) {
		a.globals = append(a.globals, expr.WithGlobal(name, v))
	}
}

// New validates cfg and loads the document, the descriptors and the
// initial state it names.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	proj, err := loadProject(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{project: proj, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "tapas")

	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	a.metrics = bind.NewMetrics(bind.WithRegistry(a.registry))
	a.engine = expr.NewEngine(a.globals...)
	if a.client == nil {
		a.client = &http.Client{Timeout: 30 * time.Second}
	}
	return a, nil
}

// Load reads tapas.json from dir and creates the App.
func Load(dir string, opts ...Option) (*App, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

func (a *App) current() *project {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.project
}

// Config returns the project configuration.
func (a *App) Config() *config.Config { return a.current().config }

// Registry returns the Prometheus registry the App reports to.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Descriptors returns the loaded descriptors.
func (a *App) Descriptors() []bind.Descriptor { return a.current().descriptors }

// Catalog builds the catalog of one page: a Path selector per configured
// selector, a Filter per configured filter, a Dispatch per configured
// action, then the WithCatalog extensions.
func (a *App) Catalog() *catalog.Catalog {
	return a.catalog(a.Config())
}

func (a *App) catalog(cfg *config.Config) *catalog.Catalog {
	cat := catalog.New()
	for name, path := range cfg.Selectors {
		cat.Selectors.Register(name, catalog.Path(path))
	}
	for name, f := range cfg.Filters {
		cat.Selectors.Register(name, catalog.Filter(f.List, f.Field))
	}
	for name, t := range cfg.Actions {
		cat.Actions.Register(name, catalog.Dispatch(t))
	}
	for _, fn := range a.extend {
		fn(cat)
	}
	return cat
}

// Check builds and bootstraps one page, reporting the first binding error.
func (a *App) Check(ctx context.Context) error {
	p, err := a.NewPage(ctx)
	if err != nil {
		return err
	}
	return p.Close()
}

// Render builds a page, waits until the handlers started by its init hooks
// have settled or ctx is done, and writes the resulting HTML.
func (a *App) Render(ctx context.Context, w io.Writer) error {
	p, err := a.NewPage(ctx)
	if err != nil {
		return err
	}
	p.settle(ctx)
	if err := p.Controller.Document().Render(w); err != nil {
		p.Close()
		return err
	}
	return p.Close()
}

// Server returns the live server of the App, creating it on first use.
func (a *App) Server() *server.Server {
	a.serverOnce.Do(func() {
		cfg := a.Config()
		opts := []server.Option{
			server.WithConfig(&server.Config{
				Address:        cfg.Address(),
				IdleTimeout:    cfg.IdleTimeout(),
				AllowedOrigins: cfg.Server.AllowedOrigins,
			}),
			server.WithLogger(a.logger),
			server.WithRegistry(a.registry),
		}
		if dir := cfg.StaticDir(); dir != "" {
			opts = append(opts, server.WithMount(cfg.Static.Prefix, newStaticHandler(cfg)))
		}
		srv := server.New(a.serverPage, opts...)
		a.mu.Lock()
		a.server = srv
		a.mu.Unlock()
	})
	return a.liveServer()
}

// liveServer returns the server if Server has been called.
func (a *App) liveServer() *server.Server {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.server
}

// ServeHTTP implements http.Handler by delegating to the live server.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.Server().ServeHTTP(w, r)
}

// Run serves live pages on the configured address until ctx is done.
func (a *App) Run(ctx context.Context) error {
	return a.Server().Run(ctx)
}

// Close releases the expression engine. Call it after the server has shut
// down.
func (a *App) Close() {
	a.engine.Close()
}

func (a *App) serverPage(ctx context.Context) (*server.Page, error) {
	p, err := a.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return &server.Page{Controller: p.Controller, Close: p.Store.Close}, nil
}
