// Package session manages user sessions for the web server.
//
// Sessions are persisted by a Store (RedisStore in production, MemoryStore in
// development and tests) and resolved through a Cache. The cache keeps one
// *Session per token in a weak cache backed by the process pin pool, so
// concurrent requests with the same cookie share the same value and hot
// sessions skip the store.
//
//	store := session.NewRedisStore(redisClient, "")
//	sessions, err := session.NewCache(pool, coord, store,
//		session.WithMaxAge(7*24*time.Hour),
//		session.WithLogger(logger),
//	)
//
//	s, err := sessions.LoadRequest(r)
//	if s == nil {
//		s, err = sessions.Create(ctx, r)
//		sessions.SetCookie(w, s)
//	}
//
// Sessions are safe for concurrent use. Call Save after mutating one and
// RotateToken after a privilege change such as sign-in.
package session
