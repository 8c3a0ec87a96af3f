// Command sweep-blobs deletes stored blobs no document references
// anymore. The API cleans up orphaned blobs best-effort after each
// write; this job catches the deletions that slipped through. Intended
// for an external cron job.
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/forgekit/forge-backend/internal/adapter/fsblob"
	"github.com/forgekit/forge-backend/internal/adapter/postgres"
	"github.com/forgekit/forge-backend/internal/adapter/postgres/document"
	"github.com/forgekit/forge-backend/internal/app"
	"github.com/forgekit/forge-backend/internal/catalog"
	"github.com/forgekit/forge-backend/internal/config"
	"github.com/forgekit/forge-backend/internal/service/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	blobs, err := fsblob.New(cfg.Blob.Dir, cfg.Blob.BaseURL)
	if err != nil {
		logger.Error("open blob store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	s := sweeper.New(logger, document.New(pool), blobs, catalog.Schemas())

	removed, err := s.Sweep(ctx)
	if err != nil {
		logger.Error("sweep failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("sweep completed", slog.Int("removed", removed))
}
