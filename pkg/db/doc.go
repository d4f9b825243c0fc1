// Package db opens the PostgreSQL pool backing vfs.PGStore.
//
// Connect wraps [github.com/jackc/pgx/v5/pgxpool] with startup retries and
// a ping, so the server fails fast when the database never comes up:
//
//	pool, err := db.Connect(ctx, cfg.Database, log)
//	if err != nil {
//		return err
//	}
//	store := vfs.NewPGStore(pool)
//
// Zero-valued Config fields keep the pgxpool defaults. Healthcheck adapts
// the pool to a readiness check and Shutdown to a server shutdown hook.
package db
