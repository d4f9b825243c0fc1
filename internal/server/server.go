package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/homecloud/internal/config"
	"github.com/dmitrymomot/homecloud/pkg/db"
	"github.com/dmitrymomot/homecloud/pkg/health"
	"github.com/dmitrymomot/homecloud/pkg/logger"
	"github.com/dmitrymomot/homecloud/pkg/pinning"
	"github.com/dmitrymomot/homecloud/pkg/redis"
	"github.com/dmitrymomot/homecloud/pkg/session"
	"github.com/dmitrymomot/homecloud/pkg/storage"
	"github.com/dmitrymomot/homecloud/pkg/vfs"
)

// Server owns the process-wide pin pool and sweep coordinator together with
// every cache built on them. It is constructed once per process.
type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	pool     *pinning.Pool
	coord    *pinning.Coordinator
	dir      *vfs.Directory
	handlers *vfs.Handlers
	sessions *session.Cache
	checks   health.Checks
	router   chi.Router

	// hooks close external connections, in registration order.
	hooks     []func(context.Context) error
	closeOnce sync.Once
	closeErr  error
}

// Option replaces a backend that would otherwise be built from config.
type Option func(*backends)

type backends struct {
	store    vfs.Store
	blobs    storage.Blobs
	sessions session.Store
	handlers *vfs.Handlers
}

// WithStore sets the file metadata store instead of connecting to PostgreSQL.
func WithStore(s vfs.Store) Option {
	return func(b *backends) { b.store = s }
}

// WithBlobs sets the blob store instead of connecting to S3.
func WithBlobs(bl storage.Blobs) Option {
	return func(b *backends) { b.blobs = bl }
}

// WithSessionStore sets the session store instead of connecting to Redis.
func WithSessionStore(s session.Store) Option {
	return func(b *backends) { b.sessions = s }
}

// WithHandlers sets the per-class file handlers.
func WithHandlers(h *vfs.Handlers) Option {
	return func(b *backends) { b.handlers = h }
}

// New connects the configured backends and builds the caches and router.
// On error everything opened so far is closed again.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts ...Option) (*Server, error) {
	if log == nil {
		log = logger.Discard()
	}

	b := &backends{}
	for _, opt := range opts {
		opt(b)
	}

	s := &Server{
		cfg:    cfg,
		logger: log,
		checks: health.Checks{},
		pool: pinning.NewPool(
			pinning.WithCapacity(cfg.Cache.Capacity),
			pinning.WithMaxMemory(cfg.Cache.MaxMemory),
			pinning.WithPoolLogger(log),
		),
		coord: pinning.NewCoordinator(
			pinning.WithSchedule(cfg.Cache.SweepSchedule),
			pinning.WithConcurrency(cfg.Cache.SweepConcurrency),
			pinning.WithCoordinatorLogger(log),
		),
	}

	if err := s.build(ctx, b); err != nil {
		return nil, errors.Join(err, s.Close(ctx))
	}
	return s, nil
}

func (s *Server) build(ctx context.Context, b *backends) error {
	if err := s.connect(ctx, b); err != nil {
		return err
	}

	var err error
	s.dir, err = vfs.NewDirectory(s.pool, s.coord, b.store, b.blobs,
		vfs.WithLogger(s.logger),
		vfs.WithLoadTimeout(s.cfg.Cache.LoadTimeout),
	)
	if err != nil {
		return err
	}

	s.sessions, err = session.NewCache(s.pool, s.coord, b.sessions,
		session.WithCookieName(s.cfg.Session.CookieName),
		session.WithMaxAge(s.cfg.Session.MaxAge),
		session.WithDomain(s.cfg.Session.Domain),
		session.WithSecure(s.cfg.Session.Secure),
		session.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}

	s.handlers = b.handlers
	if s.handlers == nil {
		s.handlers = vfs.NewHandlers()
	}

	s.router = s.routes()
	return nil
}

// connect opens whatever backend was not supplied as an option.
func (s *Server) connect(ctx context.Context, b *backends) error {
	if b.store == nil {
		if !s.cfg.Database.Enabled() {
			return vfs.ErrStoreRequired
		}
		pool, err := db.Connect(ctx, s.cfg.Database, s.logger)
		if err != nil {
			return err
		}
		s.hooks = append(s.hooks, db.Shutdown(pool))
		s.checks["postgres"] = db.Healthcheck(pool)
		b.store = vfs.NewPGStore(pool)
	}

	if b.blobs == nil {
		if s.cfg.Storage.Enabled() {
			blobs, err := storage.New(s.cfg.Storage)
			if err != nil {
				return err
			}
			s.checks["s3"] = blobs.Ping
			b.blobs = blobs
		} else {
			s.logger.WarnContext(ctx, "no blob storage configured, file content is kept in memory")
			b.blobs = storage.NewMemory()
		}
	}

	if b.sessions == nil {
		if s.cfg.Redis.Enabled() {
			client, err := redis.Connect(ctx, s.cfg.Redis, s.logger)
			if err != nil {
				return err
			}
			s.hooks = append(s.hooks, redis.Shutdown(client))
			s.checks["redis"] = redis.Healthcheck(client)
			b.sessions = session.NewRedisStore(client, "")
		} else {
			s.logger.WarnContext(ctx, "no redis configured, sessions are kept in memory")
			b.sessions = session.NewMemoryStore()
		}
	}
	return nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Pool returns the shared pin pool.
func (s *Server) Pool() *pinning.Pool {
	return s.pool
}

// Coordinator returns the shared sweep coordinator.
func (s *Server) Coordinator() *pinning.Coordinator {
	return s.coord
}

// Close stops the coordinator, disposes every cached file, saves and drops
// cached sessions, disables the pin pool and closes external connections. It is safe to call repeatedly.
func (s *Server) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error

		if err := s.coord.Stop(ctx); err != nil && !errors.Is(err, pinning.ErrNotStarted) {
			errs = append(errs, err)
		}
		if s.dir != nil {
			if err := s.dir.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		// Before the hooks, which close the session store's Redis client.
		if s.sessions != nil {
			if err := s.sessions.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.pool.Close()

		for _, hook := range s.hooks {
			if err := hook(ctx); err != nil {
				s.logger.ErrorContext(ctx, "shutdown hook failed", slog.Any("error", err))
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
