package access

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSession is returned when no session is running.
var ErrNoSession = errors.New("no access session running")

// Factory builds a fresh, unstarted session.
type Factory func() (*Session, error)

// Manager keeps at most one running session, since a session owns the camera.
type Manager struct {
	factory Factory

	mu      sync.Mutex
	current *Session
}

// NewManager creates a manager that builds sessions with factory.
func NewManager(factory Factory) *Manager {
	return &Manager{factory: factory}
}

// Start stops any running session and starts a new one.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Stop()
		m.current = nil
	}
	sess, err := m.factory()
	if err != nil {
		return nil, err
	}
	if err := sess.Start(ctx); err != nil {
		sess.Stop()
		return nil, err
	}
	m.current = sess
	return sess, nil
}

// Stop stops the running session.
func (m *Manager) Stop() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, ErrNoSession
	}
	sess := m.current
	m.current = nil
	return sess, sess.Stop()
}

// Current returns the running session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
