package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type brokenHandler struct {
	slog.Handler
}

func (brokenHandler) Handle(context.Context, slog.Record) error {
	return errors.New("sink unavailable")
}

func TestFanout(t *testing.T) {
	t.Parallel()

	t.Run("failing handler does not stop delivery", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		text := slog.NewTextHandler(&buf, nil)
		h := fanout{brokenHandler{Handler: text}, text}

		rec := slog.NewRecord(time.Now(), slog.LevelInfo, "sweep done", 0)
		err := h.Handle(context.Background(), rec)
		require.ErrorContains(t, err, "sink unavailable")
		require.Contains(t, buf.String(), "sweep done")
	})

	t.Run("enabled if any handler is", func(t *testing.T) {
		t.Parallel()

		warn := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
		debug := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})

		require.False(t, fanout{warn}.Enabled(context.Background(), slog.LevelInfo))
		require.True(t, fanout{warn, debug}.Enabled(context.Background(), slog.LevelInfo))
	})

	t.Run("attrs reach every handler", func(t *testing.T) {
		t.Parallel()

		var a, b bytes.Buffer
		h := fanout{slog.NewTextHandler(&a, nil), slog.NewTextHandler(&b, nil)}
		slog.New(h).With(slog.String("cache", "sessions")).Info("cleared")

		require.Contains(t, a.String(), "cache=sessions")
		require.Contains(t, b.String(), "cache=sessions")
	})
}

func TestWithContext_SkipsNilExtractors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := withContext(slog.NewTextHandler(&buf, nil), []ContextExtractor{nil})
	require.Empty(t, h.(*contextHandler).extract)

	slog.New(h).Info("ok")
	require.Contains(t, buf.String(), "msg=ok")
}
