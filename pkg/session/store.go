package session

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("session: not found")
	ErrExpired       = errors.New("session: expired")
	ErrInvalidToken  = errors.New("session: invalid token")
	ErrStoreRequired = errors.New("session: store is required")
	ErrTypeMismatch  = errors.New("session: value type mismatch")
)

// Store persists sessions.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by its token.
	// Returns ErrNotFound if the session doesn't exist.
	Get(ctx context.Context, token string) (*Session, error)

	// Update saves changes to an existing session. previousToken is the
	// token the session was stored under, which differs after rotation.
	Update(ctx context.Context, s *Session, previousToken string) error

	// Delete removes the session stored under token.
	Delete(ctx context.Context, token string) error

	// DeleteByUserID removes all sessions for a user and returns their tokens.
	DeleteByUserID(ctx context.Context, userID string) ([]string, error)
}
