package session

import (
	"fmt"
	"maps"
	"sync"
	"time"
)

// Session is a user session. A cached session is shared by every request
// that presents its token, so field access beyond construction goes through
// the accessor methods.
type Session struct {
	ID           string         `json:"id"`
	Token        string         `json:"token"`
	UserID       string         `json:"user_id,omitempty"`
	IP           string         `json:"ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Values       map[string]any `json:"values,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActiveAt time.Time      `json:"last_active_at"`
	ExpiresAt    time.Time      `json:"expires_at"`

	mu    sync.RWMutex
	dirty bool
}

// New creates a session with the given ID and token.
func New(id, token string, expiresAt time.Time) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Token:        token,
		Values:       make(map[string]any),
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    expiresAt,
		dirty:        true,
	}
}

// User returns the authenticated user id, or "" for anonymous sessions.
func (s *Session) User() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID
}

// SetUser binds the session to a user. An empty id makes it anonymous.
func (s *Session) SetUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UserID != id {
		s.UserID = id
		s.dirty = true
	}
}

// CurrentToken returns the token the session is presented with.
func (s *Session) CurrentToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Token
}

func (s *Session) swapToken(token string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.Token
	s.Token = token
	s.dirty = true
	return old
}

// IsAuthenticated reports whether the session has an associated user.
func (s *Session) IsAuthenticated() bool {
	return s.User() != ""
}

// SetValue stores a value and marks the session dirty.
func (s *Session) SetValue(key string, val any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	s.Values[key] = val
	s.dirty = true
}

// GetValue retrieves a value from the session.
func (s *Session) GetValue(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.Values[key]
	return val, ok
}

// DeleteValue removes a value. The session becomes dirty only if the key existed.
func (s *Session) DeleteValue(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Values[key]; ok {
		delete(s.Values, key)
		s.dirty = true
	}
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = now
	s.dirty = true
}

// IsDirty reports whether the session has unsaved changes.
func (s *Session) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// ClearDirty marks the session as saved.
func (s *Session) ClearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// IsExpired reports whether the session has expired.
func (s *Session) IsExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Now().After(s.ExpiresAt)
}

// Snapshot returns a copy safe to serialize while the session is in use.
func (s *Session) Snapshot() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Session{
		ID:           s.ID,
		Token:        s.Token,
		UserID:       s.UserID,
		IP:           s.IP,
		UserAgent:    s.UserAgent,
		Values:       maps.Clone(s.Values),
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

// Value returns the value stored under key as a T. Values decoded from the
// Redis store come back as JSON types, so numbers are float64.
func Value[T any](s *Session, key string) (T, error) {
	var zero T
	if s == nil {
		return zero, ErrNotFound
	}

	val, ok := s.GetValue(key)
	if !ok {
		return zero, ErrNotFound
	}

	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q holds %T", ErrTypeMismatch, key, val)
	}
	return typed, nil
}

// ValueOr returns the typed value for key or defaultVal.
func ValueOr[T any](s *Session, key string, defaultVal T) T {
	val, err := Value[T](s, key)
	if err != nil {
		return defaultVal
	}
	return val
}
