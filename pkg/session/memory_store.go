package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in process memory. Use for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	snap := s.Snapshot()
	m.mu.Lock()
	m.sessions[snap.Token] = snap
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, token string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.Snapshot(), nil
}

func (m *MemoryStore) Update(ctx context.Context, s *Session, previousToken string) error {
	snap := s.Snapshot()
	m.mu.Lock()
	defer m.mu.Unlock()
	if previousToken != "" && previousToken != snap.Token {
		delete(m.sessions, previousToken)
	}
	m.sessions[snap.Token] = snap
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, token)
	return nil
}

func (m *MemoryStore) DeleteByUserID(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tokens []string
	for token, s := range m.sessions {
		if s.UserID == userID {
			tokens = append(tokens, token)
			delete(m.sessions, token)
		}
	}
	return tokens, nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

var _ Store = (*MemoryStore)(nil)
