package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/homecloud/pkg/health"
	"github.com/dmitrymomot/homecloud/pkg/logger"
	"github.com/dmitrymomot/homecloud/pkg/pinning"
	"github.com/dmitrymomot/homecloud/pkg/session"
	"github.com/dmitrymomot/homecloud/pkg/vfs"
)

// serveAttempts bounds how often a request reopens a file container that was
// closed between Open and reading its content.
const serveAttempts = 3

// handlerFunc is an HTTP handler that reports failures as errors.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	if s.cfg.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.accessLog, s.recoverer)

	r.Get("/healthz", health.LivenessHandler())
	r.Get("/readyz", health.ReadinessHandler(s.checks, health.WithLogger(s.logger)))

	r.Route("/files/{owner}", func(r chi.Router) {
		r.Get("/*", s.handle(s.serveFile))
		r.Head("/*", s.handle(s.serveFile))
		r.Delete("/*", s.handle(s.invalidateFile))
	})

	if s.cfg.Server.Debug {
		r.Get("/debug/cache", s.handle(s.cacheStats))
	}
	return r
}

func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		he := toHTTPError(err)
		if he.Code >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "request failed",
				slog.String("path", r.URL.Path),
				slog.Any("error", err),
			)
		}
		if sw, ok := w.(*statusWriter); ok && sw.written() {
			return
		}
		http.Error(w, he.Message, he.Code)
	}
}

// filePath builds the tree path of a /files/{owner}/* request.
func filePath(r *http.Request) (string, error) {
	return vfs.Clean("/" + chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "*"))
}

// user resolves the signed-in user from the session cookie. Requests
// without a usable session are anonymous.
func (s *Server) user(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, err := s.sessions.LoadRequest(r)
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrExpired),
		errors.Is(err, session.ErrInvalidToken):
		s.sessions.ClearCookie(w)
		return "", nil
	case err != nil:
		return "", err
	case sess == nil:
		return "", nil
	}
	return sess.User(), nil
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, want vfs.Perm) (string, error) {
	name, err := filePath(r)
	if err != nil {
		return "", err
	}
	user, err := s.user(w, r)
	if err != nil {
		return "", err
	}

	err = s.dir.Authorize(r.Context(), name, user, want)
	if errors.Is(err, vfs.ErrPermissionDenied) && user == "" {
		return "", errUnauthorized(err)
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) error {
	name, err := s.authorize(w, r, vfs.PermRead)
	if err != nil {
		return err
	}
	r = r.WithContext(logger.With(r.Context(), slog.String("file", name)))

	for attempt := 1; ; attempt++ {
		f, err := s.dir.Open(r.Context(), name)
		if err != nil {
			return err
		}
		// The built-in handlers load content before writing anything, so a
		// container closed under us by Invalidate can be reopened.
		err = s.handlers.Serve(w, r, f)
		if errors.Is(err, vfs.ErrClosed) && attempt < serveAttempts {
			s.logger.DebugContext(r.Context(), "file container closed while serving, reopening",
				slog.Int("attempt", attempt),
			)
			continue
		}
		return err
	}
}

// invalidateFile drops every cached item of a path, for callers that
// changed the file behind the server's back.
func (s *Server) invalidateFile(w http.ResponseWriter, r *http.Request) error {
	name, err := s.authorize(w, r, vfs.PermManage)
	if err != nil {
		return err
	}
	s.dir.Invalidate(name)
	s.logger.InfoContext(logger.With(r.Context(), slog.String("file", name)), "file invalidated")
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// CacheStats is the body of GET /debug/cache.
type CacheStats struct {
	Pool       pinning.Stats  `json:"pool"`
	Caches     map[string]int `json:"caches"`
	Registered int            `json:"registered"`
	Sweeps     int64          `json:"sweeps"`
	Pruned     int64          `json:"pruned"`
}

func (s *Server) Stats() CacheStats {
	caches := s.dir.Stats()
	caches["sessions"] = s.sessions.Len()
	return CacheStats{
		Pool:       s.pool.Stats(),
		Caches:     caches,
		Registered: s.coord.Registered(),
		Sweeps:     s.coord.Sweeps(),
		Pruned:     s.coord.Pruned(),
	}
}

func (s *Server) cacheStats(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	return json.NewEncoder(w).Encode(s.Stats())
}
