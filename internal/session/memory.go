package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Sessions idle for longer
// than the TTL are dropped; a zero TTL keeps them until restart.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]*State
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryStore creates an empty MemoryStore whose sessions expire after
// ttl without writes.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*State),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the stored state, or a fresh one without storing it.
func (m *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.live(id); ok {
		return s.Clone(), nil
	}
	return NewState(id), nil
}

func (m *MemoryStore) CompleteLesson(_ context.Context, id string, n int) (*State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.upsert(id)
	advanced := s.Advance(n)
	return s.Clone(), advanced, nil
}

func (m *MemoryStore) RecordExchange(_ context.Context, id, query, response string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.upsert(id)
	s.Previous = &Exchange{Query: query, Response: response}
	return nil
}

// Len reports how many sessions are held.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// live returns the state for id unless it has expired. Callers hold mu.
func (m *MemoryStore) live(id string) (*State, bool) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.expired(s, m.now()) {
		delete(m.sessions, id)
		return nil, false
	}
	return s, true
}

// upsert returns the live state for id, creating it if needed, and sweeps
// expired sessions at most once per TTL. Callers hold mu.
func (m *MemoryStore) upsert(id string) *State {
	now := m.now()
	if m.ttl > 0 && now.Sub(m.lastSweep) >= m.ttl {
		for k, s := range m.sessions {
			if m.expired(s, now) {
				delete(m.sessions, k)
			}
		}
		m.lastSweep = now
	}

	s, ok := m.live(id)
	if !ok {
		s = NewState(id)
		s.UpdatedAt = now
		m.sessions[id] = s
	} else {
		// Any write counts as activity.
		s.UpdatedAt = now
	}
	return s
}

func (m *MemoryStore) expired(s *State, now time.Time) bool {
	return m.ttl > 0 && now.Sub(s.UpdatedAt) > m.ttl
}
