// Command homecloud serves files of a personal cloud over HTTP.
//
// Usage:
//
//	homecloud -config /etc/homecloud.yaml
//
// Every setting can be overridden with HOMECLOUD_* environment variables,
// for example HOMECLOUD_SERVER_ADDRESS=:9000.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/dmitrymomot/homecloud/internal/config"
	"github.com/dmitrymomot/homecloud/internal/server"
	"github.com/dmitrymomot/homecloud/pkg/logger"
)

func main() {
	path := flag.String("config", os.Getenv("HOMECLOUD_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	if err := run(context.Background(), *path); err != nil {
		fmt.Fprintln(os.Stderr, "homecloud:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log, server.RequestIDExtractor())
	if cfg.Log.SentryDSN != "" {
		defer sentry.Flush(2 * time.Second)
	}

	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		log.Error("server setup failed", slog.Any("error", err))
		return err
	}
	return srv.Run(ctx)
}
