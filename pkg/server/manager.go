package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns the live sessions of a server and closes the ones left
// without a connection for longer than the idle timeout.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	factory Factory
	config  *Config
	logger  *slog.Logger
	metrics *Metrics

	done        chan struct{}
	cleanupDone chan struct{}
	shutdown    sync.Once
}

// NewManager creates a manager and starts its cleanup loop.
func NewManager(factory Factory, config *Config, logger *slog.Logger, metrics *Metrics) *Manager {
	m := &Manager{
		sessions:    make(map[string]*Session),
		factory:     factory,
		config:      config,
		logger:      logger,
		metrics:     metrics,
		done:        make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Create builds a page and starts a session for it.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	page, err := m.factory(ctx)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	s, err := newSession(id, page, m.config, m.logger, m.metrics)
	if err != nil {
		page.Controller.Close()
		if page.Close != nil {
			_ = page.Close()
		}
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.metrics.sessionsCreated.Inc()
	m.metrics.sessionsActive.Inc()
	m.logger.Debug("session created", "session_id", id)
	return s, nil
}

// Get returns the session with id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Close removes and closes the session with id.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if s != nil {
		m.closeSession(s)
	}
}

func (m *Manager) closeSession(s *Session) {
	if err := s.Close(); err != nil {
		m.logger.Error("session close failed", "session_id", s.ID, "error", err)
	}
	m.metrics.sessionsActive.Dec()
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Broadcast writes frame to every connected session and returns how many
// received it.
func (m *Manager) Broadcast(frame any) int {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	n := 0
	for _, s := range all {
		if s.send(frame) {
			n++
		}
	}
	return n
}

// cleanupLoop periodically removes idle sessions.
func (m *Manager) cleanupLoop() {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired(time.Now())
		case <-m.done:
			return
		}
	}
}

// cleanupExpired closes sessions without a connection that have been
// idle longer than the idle timeout.
func (m *Manager) cleanupExpired(now time.Time) int {
	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idle(now, m.config.IdleTimeout) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		m.closeSession(s)
		m.metrics.sessionsExpired.Inc()
	}
	if len(expired) > 0 {
		m.logger.Info("cleaned up expired sessions",
			"count", len(expired),
			"remaining", remaining)
	}
	return len(expired)
}

// Shutdown stops the cleanup loop and closes every session.
func (m *Manager) Shutdown() {
	m.shutdown.Do(func() {
		close(m.done)
		<-m.cleanupDone

		m.mu.Lock()
		all := make([]*Session, 0, len(m.sessions))
		for id, s := range m.sessions {
			all = append(all, s)
			delete(m.sessions, id)
		}
		m.mu.Unlock()

		for _, s := range all {
			m.closeSession(s)
		}
	})
}
