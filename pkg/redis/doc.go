// Package redis connects the go-redis client behind session.RedisStore.
//
// Connect validates a redis:// or rediss:// URL, fills pool defaults and
// retries the first PING with a linear backoff, logging each failure:
//
//	client, err := redis.Connect(ctx, cfg.Redis, log)
//	if err != nil {
//		return err
//	}
//	store := session.NewRedisStore(client, "")
//
// Healthcheck turns the client into a readiness check that also watches for
// connection pool timeouts, and Shutdown into a server shutdown hook.
package redis
