package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/bind"
	"github.com/vango-dev/tapas/pkg/dom"
)

// Page is one live instance of a bound page: a bootstrapped controller
// over its own document and store.
type Page struct {
	Controller *bind.Controller

	// Close releases the page's store and controller. It runs after the
	// controller goroutine has stopped.
	Close func() error
}

// Factory builds a fresh page for a new session.
type Factory func(ctx context.Context) (*Page, error)

// Session is a page instance served to one browser tab.
//
// The document, the controller and the patch backlog belong to the
// controller goroutine. Network goroutines hand work to it with Post.
type Session struct {
	// ID is the session identifier carried by the page's client script.
	ID string

	page    *Page
	ctl     *bind.Controller
	doc     *dom.Document
	html    []byte
	config  *Config
	logger  *slog.Logger
	metrics *Metrics

	cancel context.CancelFunc
	group  *errgroup.Group
	ctx    context.Context

	// Owned by the controller goroutine.
	pending     []dom.Patch
	stopObserve func()

	mu         sync.Mutex // guards conn, lastActive and seq
	conn       *websocket.Conn
	lastActive time.Time
	seq        uint64

	closeOnce sync.Once
	closeErr  error
}

// newSession injects the client script into the page, renders it and
// starts the controller goroutine.
func newSession(id string, page *Page, config *Config, logger *slog.Logger, metrics *Metrics) (*Session, error) {
	s := &Session{
		ID:         id,
		page:       page,
		ctl:        page.Controller,
		doc:        page.Controller.Document(),
		config:     config,
		logger:     logger.With("session_id", id),
		metrics:    metrics,
		lastActive: time.Now(),
	}

	head := s.doc.Head()
	if head == nil {
		head = s.doc.Body()
	}
	if head == nil {
		return nil, errors.New("E034").WithDetail("page has neither head nor body")
	}
	script := s.doc.CreateElement("script")
	script.SetAttr("src", clientPath)
	script.SetAttr("data-session", id)
	script.SetAttr("defer", "")
	head.AppendChild(script)

	var b bytes.Buffer
	if err := s.doc.Render(&b); err != nil {
		return nil, err
	}
	s.html = b.Bytes()
	s.stopObserve = s.doc.Observe(s.collect)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group, s.ctx = errgroup.WithContext(ctx)
	s.group.Go(func() error {
		err := s.ctl.Run(s.ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return s, nil
}

// HTML returns the page as rendered when the session was created.
func (s *Session) HTML() []byte { return s.html }

// Post runs fn on the controller goroutine.
func (s *Session) Post(fn func()) { s.ctl.Post(fn) }

// collect buffers a patch and schedules a flush for the first one.
func (s *Session) collect(p dom.Patch) {
	if len(s.pending) == 0 {
		s.ctl.Post(s.flush)
	}
	s.pending = append(s.pending, p)
}

// flush sends the buffered patches. Without a connection they are kept
// until the next attach.
func (s *Session) flush() {
	if len(s.pending) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	s.seq++
	frame := PatchesFrame{Type: FramePatches, Seq: s.seq, Patches: s.pending}
	if err := s.writeLocked(frame); err != nil {
		s.logger.Warn("patch write failed", "error", err, "patches", len(s.pending))
		s.metrics.frameErrors.WithLabelValues("write").Inc()
		return
	}
	s.metrics.patchesSent.Add(float64(len(s.pending)))
	s.pending = nil
}

// handleEvent delivers a client event to the element at its path.
func (s *Session) handleEvent(f *ClientFrame) {
	el, ok := s.doc.ResolvePath(f.Path)
	if !ok {
		s.metrics.frameErrors.WithLabelValues("path").Inc()
		s.sendError(errors.New("E034").WithDetailf("no element at path %v", f.Path))
		return
	}
	ev := &dom.Event{Type: f.Event, Value: f.Value, Detail: f.Detail}
	if err := s.ctl.HandleEvent(s.ctx, el, ev); err != nil {
		s.metrics.frameErrors.WithLabelValues("handler").Inc()
		s.logger.Error("event failed", "event", f.Event, "error", errors.Compact(err))
		s.sendError(err)
	}
}

func (s *Session) sendError(err error) {
	s.send(errorFrame(err))
}

func errorFrame(err error) ErrorFrame {
	return ErrorFrame{Type: FrameError, Code: errors.Code(err), Message: errors.Compact(err)}
}

// send writes frame if a connection is attached. It reports whether the
// frame was written.
func (s *Session) send(frame any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return false
	}
	if err := s.writeLocked(frame); err != nil {
		s.logger.Warn("frame write failed", "error", err)
		s.metrics.frameErrors.WithLabelValues("write").Inc()
		return false
	}
	return true
}

func (s *Session) writeLocked(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// attach makes conn the session's connection, closing any previous one,
// and flushes the backlog.
func (s *Session) attach(conn *websocket.Conn) {
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.seq = 0
	s.lastActive = time.Now()
	s.mu.Unlock()

	if old != nil {
		old.Close()
	} else {
		s.metrics.connections.Inc()
	}
	s.ctl.Post(s.flush)
}

// detach forgets conn unless it has been replaced already.
func (s *Session) detach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return
	}
	s.conn = nil
	s.lastActive = time.Now()
	s.metrics.connections.Dec()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// Connected reports whether a websocket is attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// idle reports whether the session has been without a connection for
// longer than timeout.
func (s *Session) idle(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == nil && now.Sub(s.lastActive) > timeout
}

// Close stops the controller goroutine, then releases the page and the
// connection. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		err := s.group.Wait()
		s.stopObserve()
		s.ctl.Close()
		if s.page.Close != nil {
			err = errors.Join(err, s.page.Close())
		}

		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
			s.metrics.connections.Dec()
		}
		s.closeErr = err
	})
	return s.closeErr
}
