package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
	"github.com/sweetpotato0/ai-groupchat/session"
)

// InMemoryStore archives session records in process memory. Records are lost
// on restart. With a record limit the least recently updated record is
// evicted first.
type InMemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*session.Record
	maxRecords int
}

// Option configures the store
type Option func(*InMemoryStore)

// WithMaxRecords bounds the number of archived records. Zero means unbounded.
func WithMaxRecords(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.maxRecords = n
		}
	}
}

// NewInMemoryStore creates a new in-memory session store
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		sessions: make(map[string]*session.Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save archives a copy of record, replacing any earlier copy.
func (s *InMemoryStore) Save(ctx context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("session record cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[record.ID] = record.Clone()
	s.evictLocked(record.ID)
	return nil
}

func (s *InMemoryStore) evictLocked(keep string) {
	for s.maxRecords > 0 && len(s.sessions) > s.maxRecords {
		var oldest *session.Record
		for id, r := range s.sessions {
			if id == keep {
				continue
			}
			if oldest == nil || r.UpdatedAt.Before(oldest.UpdatedAt) {
				oldest = r
			}
		}
		if oldest == nil {
			return
		}
		delete(s.sessions, oldest.ID)
	}
}

// Load returns a copy of the archived record.
func (s *InMemoryStore) Load(ctx context.Context, id string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, errorskg.ErrNotFound)
	}
	return rec.Clone(), nil
}

// Delete removes a record
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, errorskg.ErrNotFound)
	}
	delete(s.sessions, id)
	return nil
}

// List returns archived ids, sorted.
func (s *InMemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Count returns the number of archived records
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

// Exists checks if a record is archived
func (s *InMemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok, nil
}

// Clear removes all records
func (s *InMemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*session.Record)
	return nil
}
