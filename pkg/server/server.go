package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/middleware"
)

// Server serves a bound page to browsers: every GET / starts a session
// with its own document and store, and the page's client script streams
// events in and patches out over /ws.
type Server struct {
	config   *Config
	sessions *Manager
	registry *prometheus.Registry
	metrics  *Metrics
	router   chi.Router
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mounts []mount

	httpServer *http.Server
}

type mount struct {
	prefix  string
	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithConfig sets the server configuration. Unset fields keep their
// defaults.
func WithConfig(c *Config) Option {
	return func(s *Server) {
		s.config = c
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithRegistry sets the Prometheus registry exposed on /metrics. Share it
// with bind.WithRegistry to export binding metrics too.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithMount serves h for every path below prefix, such as the static
// assets a page links to.
func WithMount(prefix string, h http.Handler) Option {
	return func(s *Server) {
		s.mounts = append(s.mounts, mount{prefix: strings.TrimSuffix(prefix, "/"), handler: h})
	}
}

// New creates a server building a page with factory for every session.
func New(factory Factory, opts ...Option) *Server {
	s := &Server{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.config = s.config.withDefaults()
	s.logger = s.logger.With("component", "server")
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	s.metrics = NewMetrics(s.registry)
	s.sessions = NewManager(factory, s.config, s.logger, s.metrics)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.config.checkOrigin,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.OpenTelemetry(
		middleware.WithRequestFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/healthz"
		}),
	))
	r.Use(middleware.Prometheus(middleware.WithRegistry(s.registry)))

	r.Get("/", s.handlePage)
	r.Get("/ws", s.handleWebSocket)
	r.Get(clientPath, s.serveClient)
	r.Head(clientPath, s.serveClient)
	for _, m := range s.mounts {
		r.Mount(m.prefix, m.handler)
	}
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Sessions returns the session manager.
func (s *Server) Sessions() *Manager { return s.sessions }

// Config returns the effective configuration.
func (s *Server) Config() *Config { return s.config }

// Reload asks every connected browser to reload. A non-empty file names
// the stylesheet that changed.
func (s *Server) Reload(file string) int {
	n := s.sessions.Broadcast(ReloadFrame{Type: FrameReload, File: file})
	s.logger.Debug("reload sent", "file", file, "sessions", n)
	return n
}

// ReportError shows err in the console of every connected browser.
func (s *Server) ReportError(err error) int {
	return s.sessions.Broadcast(errorFrame(err))
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		s.logger.Error("page build failed", "error", errors.Compact(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(sess.HTML())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.URL.Query().Get("session"))
	if sess == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sess.Serve(conn)
}

// Run listens on the configured address until ctx is done, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.sessions.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		err := s.Shutdown(context.Background())
		<-errCh
		return err
	}
}

// Shutdown closes every session, then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.sessions.Shutdown()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}
