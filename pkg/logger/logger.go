package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// Config selects the log level, output format and optional Sentry reporting.
type Config struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // json or text

	SentryDSN         string `yaml:"sentry_dsn" env:"SENTRY_DSN"`
	SentryEnvironment string `yaml:"sentry_environment" env:"SENTRY_ENVIRONMENT"`
}

// New builds a logger writing to stdout. When a Sentry DSN is configured,
// warnings and errors are also forwarded to Sentry; errors become issues.
func New(cfg Config, extractors ...ContextExtractor) *slog.Logger {
	return NewWriter(os.Stdout, cfg, extractors...)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, cfg Config, extractors ...ContextExtractor) *slog.Logger {
	level := ParseLevel(cfg.Level)
	ho := &slog.HandlerOptions{Level: level}

	var out slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		out = slog.NewTextHandler(w, ho)
	} else {
		out = slog.NewJSONHandler(w, ho)
	}

	if cfg.SentryDSN == "" {
		return slog.New(withContext(out, extractors))
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		EnableLogs:  true,
	}); err != nil {
		slog.New(out).Error("sentry init failed, logging to output only", slog.Any("error", err))
		return slog.New(withContext(out, extractors))
	}

	sh := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background())

	return slog.New(withContext(fanout{out, sh}, extractors))
}

// Discard returns a logger that drops every record. Components fall back to
// it when no logger is supplied.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a level name to a slog.Level. Unknown names yield Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
