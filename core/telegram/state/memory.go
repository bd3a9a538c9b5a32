package state

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore constructs an in-memory Store. Sessions live for the process
// lifetime unless ttl > 0, in which case stale ones read back as idle.
func NewMemoryStore(ttl time.Duration) Store {
	return &memoryStore{
		sessions: make(map[int64]Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a copy of the stored session or a fresh idle one.
func (m *memoryStore) Get(_ context.Context, userID int64) (Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[userID]
	m.mu.RUnlock()

	if !ok {
		return NewSession(StateIdle), nil
	}
	if expired(sess.UpdatedAt, m.ttl, m.now()) {
		m.mu.Lock()
		delete(m.sessions, userID)
		m.mu.Unlock()
		return NewSession(StateIdle), nil
	}
	return sess.Clone(), nil
}

// Put replaces the session for a user.
func (m *memoryStore) Put(_ context.Context, userID int64, s Session) error {
	s = s.Clone()
	s.UpdatedAt = m.now()
	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()
	return nil
}

// Clear removes the entire session for a user.
func (m *memoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}

// Len reports the number of sessions that are not idle.
func (m *memoryStore) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	n := 0
	for _, s := range m.sessions {
		if s.Idle() || expired(s.UpdatedAt, m.ttl, now) {
			continue
		}
		n++
	}
	return n, nil
}
