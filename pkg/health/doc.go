// Package health provides liveness and readiness HTTP handlers.
//
// [LivenessHandler] always answers OK while the process runs.
// [ReadinessHandler] runs a set of named [Checks] concurrently under a shared
// timeout and answers 503 when any of them fails:
//
//	r.Get("/healthz", health.LivenessHandler())
//	r.Get("/readyz", health.ReadinessHandler(health.Checks{
//		"postgres": db.Healthcheck(pool),
//		"redis":    redis.Healthcheck(client),
//	}, health.WithLogger(log)))
//
// Responses are plain text unless the client asks for JSON with
// Accept: application/json or ?format=json. A failed plain-text readiness
// answer names the failing backends; the JSON body carries each check's
// status, latency and error.
package health
