package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
	"github.com/sweetpotato0/ai-groupchat/pkg/logging"
	"github.com/sweetpotato0/ai-groupchat/pkg/metrics"
	"github.com/sweetpotato0/ai-groupchat/ui"
)

// Store defines the interface for session archive backends that operate on
// serializable session records.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Load(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// Manager is the registry of live sessions keyed by the UI's session id.
// Records are archived to the store when configured.
type Manager struct {
	mu       sync.RWMutex
	store    Store
	sessions map[string]*Session
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option is a function that configures a Manager.
type Option func(*Manager)

// WithStore sets the archive store for the manager.
func WithStore(s Store) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithMetrics records the active session gauge.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithLogger overrides the logger used by the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new session manager with the given options.
//
// Example:
//
//	mgr := session.NewManager(session.WithStore(inmemory.NewInMemoryStore()))
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.WithComponent("session_manager")
	}
	return m
}

// Create registers a new session bound to channel.
func (m *Manager) Create(ctx context.Context, id string, channel ui.Channel) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	if channel == nil {
		return nil, fmt.Errorf("session %s: channel cannot be nil", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; ok {
		m.logger.WarnContext(ctx, "create session aborted; already exists", "id", id)
		return nil, fmt.Errorf("session %s: %w", id, errorskg.ErrSessionExists)
	}

	sess := New(ctx, id, channel)
	m.sessions[id] = sess
	m.metrics.SessionOpened()
	m.logger.InfoContext(ctx, "session created", "id", id)
	return sess, nil
}

// Get returns the live session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errorskg.ErrNotFound)
	}
	return sess, nil
}

// Delete closes the session, archives its final record and forgets it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: %w", id, errorskg.ErrNotFound)
	}
	m.metrics.SessionClosed()
	if err := sess.Close(); err != nil {
		m.logger.WarnContext(ctx, "close session failed", "id", id, "error", err)
	}
	if err := m.Save(ctx, sess); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "session deleted", "id", id)
	return nil
}

// Save archives a snapshot of sess. Without a store it does nothing.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Save(ctx, sess.Snapshot()); err != nil {
		m.logger.ErrorContext(ctx, "save session failed", "id", sess.ID(), "error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	m.logger.DebugContext(ctx, "session saved", "id", sess.ID())
	return nil
}

// Load returns the record of a live session, falling back to the archive.
func (m *Manager) Load(ctx context.Context, id string) (*Record, error) {
	if sess, err := m.Get(id); err == nil {
		return sess.Snapshot(), nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("session %s: %w", id, errorskg.ErrNotFound)
	}
	return m.store.Load(ctx, id)
}

// List returns the ids of live sessions, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Archived returns the ids of archived sessions.
func (m *Manager) Archived(ctx context.Context) ([]string, error) {
	if m.store == nil {
		return nil, nil
	}
	ids, err := m.store.List(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "list sessions failed", "error", err)
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
