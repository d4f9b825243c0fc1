package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var (
	ErrNoURL         = errors.New("redis: no connection URL")
	ErrInvalidURL    = errors.New("redis: invalid connection URL")
	ErrUnreachable   = errors.New("redis: server unreachable")
	ErrUnhealthy     = errors.New("redis: unhealthy")
	ErrPoolExhausted = errors.New("redis: connection pool exhausted")
)

// Connect opens a client for the session store and waits until the server
// answers PING. Failed attempts are logged and retried with a linear
// backoff: the wait before attempt n+1 is n times cfg.RetryInterval.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*goredis.Client, error) {
	cfg = cfg.withDefaults()
	ro, err := cfg.clientOptions()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.RetryAttempts; attempt++ {
		client := goredis.NewClient(ro)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			log.DebugContext(ctx, "redis connected",
				slog.String("addr", ro.Addr),
				slog.Int("db", ro.DB),
				slog.Int("pool_size", ro.PoolSize),
			)
			return client, nil
		}
		_ = client.Close()

		log.WarnContext(ctx, "redis connection attempt failed",
			slog.String("addr", ro.Addr),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.RetryAttempts),
			slog.Any("error", lastErr),
		)
		if attempt == cfg.RetryAttempts {
			break
		}
		if err := sleep(ctx, time.Duration(attempt)*cfg.RetryInterval); err != nil {
			return nil, errors.Join(ErrUnreachable, err)
		}
	}
	return nil, errors.Join(ErrUnreachable, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// poolStatter is the part of *goredis.Client a readiness check needs.
type poolStatter interface {
	Ping(ctx context.Context) *goredis.StatusCmd
	PoolStats() *goredis.PoolStats
}

// Healthcheck returns a readiness check for the session store. Besides the
// PING, it fails with ErrPoolExhausted when session reads timed out waiting
// for a free connection since the previous check, which means PoolSize is
// too small for the request load.
func Healthcheck(client *goredis.Client) func(context.Context) error {
	if client == nil {
		return func(context.Context) error { return ErrUnhealthy }
	}
	return healthcheck(client)
}

func healthcheck(client poolStatter) func(context.Context) error {
	var seen atomic.Uint32
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrUnhealthy, err)
		}
		timeouts := client.PoolStats().Timeouts
		if prev := seen.Swap(timeouts); timeouts > prev {
			return fmt.Errorf("%w: %d waits for a connection timed out", ErrPoolExhausted, timeouts-prev)
		}
		return nil
	}
}

// Shutdown returns a server shutdown hook that closes the client.
// A client closed earlier is not an error.
func Shutdown(client io.Closer) func(context.Context) error {
	return func(context.Context) error {
		if err := client.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
		return nil
	}
}
