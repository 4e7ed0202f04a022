package model

import (
	"context"
	"fmt"
	"sync"
)

// Loader constructs a fresh Session for the named model.
type Loader func(ctx context.Context, modelID string) (*Session, error)

// Manager owns the process-wide model session. Trace requests borrow the
// session under a read lock; Load replaces it under the write lock, so a
// reload can never interleave with an in-flight trace.
type Manager struct {
	mu     sync.RWMutex
	sess   *Session
	loader Loader
}

// NewManager creates a manager with no session loaded.
func NewManager(loader Loader) *Manager {
	return &Manager{loader: loader}
}

// NewManagerWithSession creates a manager around an already-built session.
// Used by tests and by callers that construct the session themselves.
func NewManagerWithSession(sess *Session) *Manager {
	return &Manager{sess: sess}
}

// Use runs fn with the current session held under a read lock.
// Returns ErrNotLoaded when no model has been loaded yet.
func (m *Manager) Use(fn func(*Session) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.sess == nil {
		return ErrNotLoaded
	}
	return fn(m.sess)
}

// Info returns the loaded model's metadata.
func (m *Manager) Info() (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.sess == nil {
		return Info{}, ErrNotLoaded
	}
	return m.sess.Info, nil
}

// Loaded reports whether a session is available.
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess != nil
}

// Load builds a new session for modelID and swaps it in. The previous
// session's backend is closed after the swap.
func (m *Manager) Load(ctx context.Context, modelID string) (Info, error) {
	if m.loader == nil {
		return Info{}, fmt.Errorf("model: manager has no loader configured")
	}

	next, err := m.loader(ctx, modelID)
	if err != nil {
		return Info{}, fmt.Errorf("model: failed to load %q: %w", modelID, err)
	}

	m.mu.Lock()
	prev := m.sess
	m.sess = next
	m.mu.Unlock()

	if prev != nil && prev.Backend != nil {
		prev.Backend.Close()
	}
	return next.Info, nil
}

// Close releases the current session, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil || m.sess.Backend == nil {
		return nil
	}
	err := m.sess.Backend.Close()
	m.sess = nil
	return err
}
