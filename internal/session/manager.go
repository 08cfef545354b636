// Package session holds the registry of named kernel sessions.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/HyphaGroup/crucible/internal/kernel"
	"github.com/HyphaGroup/crucible/internal/logger"
	"github.com/HyphaGroup/crucible/internal/metrics"
	"github.com/HyphaGroup/crucible/internal/notebook"
	"github.com/HyphaGroup/crucible/internal/validation"
)

// Session is one live kernel with its accumulated notebook.
type Session struct {
	Name           string
	Transport      kernel.Transport
	Document       *notebook.Document
	Filepath       string
	ExecutionCount int

	mu sync.Mutex
}

// Lock serializes executions against this session's kernel.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the execution lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Manager is the name-keyed session registry. Sessions are created lazily
// on first use and live until explicitly closed or the server shuts down.
type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	creating   map[string]*creation
	runtime    kernel.Runtime
	scriptsDir string
}

// creation tracks one in-flight kernel start so that only same-name
// callers wait on it.
type creation struct {
	done chan struct{}
	sess *Session
	err  error
}

// NewManager creates a session manager writing notebooks under scriptsDir.
func NewManager(scriptsDir string, runtime kernel.Runtime) *Manager {
	return &Manager{
		sessions:   make(map[string]*Session),
		creating:   make(map[string]*creation),
		runtime:    runtime,
		scriptsDir: scriptsDir,
	}
}

// Ensure returns the session for name, creating it if needed. Creation
// starts a fresh kernel, allocates a new notebook artifact, and resets the
// execution counter to 1. A failed kernel start registers nothing. Kernel
// startup happens outside the registry lock, so a slow start only blocks
// callers for the same name.
func (m *Manager) Ensure(ctx context.Context, name string) (*Session, error) {
	if err := validation.ValidateSessionName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if sess, ok := m.sessions[name]; ok {
		m.mu.Unlock()
		return sess, nil
	}
	if c, ok := m.creating[name]; ok {
		m.mu.Unlock()
		select {
		case <-c.done:
			return c.sess, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &creation{done: make(chan struct{})}
	m.creating[name] = c
	m.mu.Unlock()

	transport, err := m.runtime.Start(ctx)

	m.mu.Lock()
	delete(m.creating, name)
	if err != nil {
		m.mu.Unlock()
		c.err = fmt.Errorf("failed to start kernel for session %q: %w", name, err)
		close(c.done)
		return nil, c.err
	}

	sess := &Session{
		Name:           name,
		Transport:      transport,
		Document:       notebook.NewDocument(),
		Filepath:       notebook.UniquePath(m.scriptsDir, validation.SanitizeFilename(name)),
		ExecutionCount: 1,
	}
	m.sessions[name] = sess
	m.mu.Unlock()

	c.sess = sess
	close(c.done)
	metrics.RecordSessionOpened()
	logger.Info("Created session %q (notebook: %s)", name, sess.Filepath)
	return sess, nil
}

// Get returns an existing session without creating one.
func (m *Manager) Get(name string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[name]
	return sess, ok
}

// Close removes the named session and stops its kernel. Returns false when
// no such session exists.
func (m *Manager) Close(name string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[name]
	if ok {
		delete(m.sessions, name)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	if err := sess.Transport.Stop(); err != nil {
		logger.Error("Failed to stop kernel for session %q: %v", name, err)
	}
	metrics.RecordSessionClosed()
	logger.Info("Closed session %q", name)
	return true
}

// CloseAll closes every session. Used during shutdown.
func (m *Manager) CloseAll() {
	for _, name := range m.List() {
		m.Close(name)
	}
}

// List returns the active session names, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
