package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/homecloud/pkg/pinning"
	"github.com/dmitrymomot/homecloud/pkg/weakcache"
)

const tokenBytes = 32

// Cache resolves session tokens through a weak cache in front of a Store,
// so concurrent requests carrying the same cookie share one *Session.
type Cache struct {
	store   Store
	entries *weakcache.Cache[string, Session, struct{}]
	opts    *options
	logger  *slog.Logger
}

// NewCache creates a session cache over store.
func NewCache(pool *pinning.Pool, coord *pinning.Coordinator, store Store, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	entries, err := weakcache.New(pool, coord,
		func(ctx context.Context, token string, _ struct{}) (*Session, error) {
			return store.Get(ctx, token)
		},
		weakcache.WithName("sessions"),
		weakcache.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	return &Cache{
		store:   store,
		entries: entries,
		opts:    o,
		logger:  o.logger,
	}, nil
}

// Load returns the session named by token.
// Expired sessions are deleted and reported as ErrExpired.
func (c *Cache) Load(ctx context.Context, token string) (*Session, error) {
	if !validToken(token) {
		return nil, ErrInvalidToken
	}

	s, err := c.entries.Get(ctx, token, struct{}{})
	if err != nil {
		return nil, err
	}

	if s.IsExpired() {
		c.entries.Remove(token)
		if err := c.store.Delete(ctx, token); err != nil && !errors.Is(err, ErrNotFound) {
			c.logger.WarnContext(ctx, "failed to delete expired session",
				slog.String("session_id", s.ID),
				slog.Any("error", err),
			)
		}
		return nil, ErrExpired
	}
	return s, nil
}

// LoadRequest loads the session from the request cookie.
// Returns nil, nil if the request carries no session cookie.
func (c *Cache) LoadRequest(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(c.opts.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	return c.Load(r.Context(), cookie.Value)
}

// Create starts a new anonymous session for the request.
func (c *Cache) Create(ctx context.Context, r *http.Request) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	s := New(uuid.NewString(), token, time.Now().Add(c.opts.maxAge))
	if r != nil {
		s.IP = remoteIP(r)
		s.UserAgent = r.UserAgent()
	}

	if err := c.store.Create(ctx, s); err != nil {
		return nil, err
	}
	s.ClearDirty()
	c.entries.Set(token, s)

	c.logger.DebugContext(ctx, "session created", slog.String("session_id", s.ID))
	return s, nil
}

// Save persists a dirty session.
func (c *Cache) Save(ctx context.Context, s *Session) error {
	if !s.IsDirty() {
		return nil
	}
	token := s.CurrentToken()
	if err := c.store.Update(ctx, s.Snapshot(), token); err != nil {
		return err
	}
	s.ClearDirty()
	return nil
}

// RotateToken issues a new token for s, typically after sign-in.
func (c *Cache) RotateToken(ctx context.Context, s *Session) error {
	token, err := generateToken()
	if err != nil {
		return err
	}

	old := s.swapToken(token)
	if err := c.store.Update(ctx, s.Snapshot(), old); err != nil {
		s.swapToken(old)
		return err
	}
	s.ClearDirty()

	// The old entry must not dispose s, so it is dropped before s moves.
	c.entries.Remove(old)
	c.entries.Set(token, s)
	return nil
}

// Delete removes the session from the store and the cache.
func (c *Cache) Delete(ctx context.Context, s *Session) error {
	token := s.CurrentToken()
	c.entries.Remove(token)
	if err := c.store.Delete(ctx, token); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// DeleteUser removes every session of a user.
func (c *Cache) DeleteUser(ctx context.Context, userID string) error {
	tokens, err := c.store.DeleteByUserID(ctx, userID)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		c.entries.Remove(t)
	}
	return nil
}

// Invalidate drops a cached session without touching the store.
func (c *Cache) Invalidate(token string) {
	c.entries.Remove(token)
}

// Close saves sessions with unsaved changes and drops every cached session.
// The store itself is left open.
func (c *Cache) Close(ctx context.Context) error {
	var errs []error
	for s := range c.entries.Values() {
		if err := c.Save(ctx, s); err != nil {
			errs = append(errs, fmt.Errorf("session: save %s: %w", s.ID, err))
		}
	}
	c.entries.Clear()
	return errors.Join(errs...)
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// SetCookie writes the session cookie to the response.
func (c *Cache) SetCookie(w http.ResponseWriter, s *Session) {
	http.SetCookie(w, c.cookie(s.CurrentToken(), int(c.opts.maxAge/time.Second)))
}

// ClearCookie expires the session cookie.
func (c *Cache) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

func (c *Cache) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.opts.cookieName,
		Value:    value,
		Path:     c.opts.path,
		Domain:   c.opts.domain,
		MaxAge:   maxAge,
		Secure:   c.opts.secure,
		HttpOnly: true,
		SameSite: c.opts.sameSite,
	}
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func validToken(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(tokenBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
