// Package logger builds the process slog.Logger.
//
// Output is JSON on stdout by default. ContextExtractor functions pull
// request-scoped values such as the request ID out of the context on every
// log call:
//
//	log := logger.New(cfg.Log, func(ctx context.Context) (slog.Attr, bool) {
//		if id := middleware.GetReqID(ctx); id != "" {
//			return slog.String("request_id", id), true
//		}
//		return slog.Attr{}, false
//	})
//
// With attaches attributes to a context so that every record logged with it,
// in any package, carries them:
//
//	ctx = logger.With(ctx, slog.String("path", name))
//	log.DebugContext(ctx, "replaced stale file container")
//
// With a Sentry DSN configured, warnings and errors are also sent to Sentry.
// If Sentry fails to initialise the logger falls back to stdout only.
//
// Library packages default to Discard when no logger is passed.
package logger
