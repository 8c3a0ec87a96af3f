// Command purge-cache hard-deletes expired rows from every cache table.
// It is intended to be invoked by an external cron job, not as an
// in-process goroutine.
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/forgekit/forge-backend/internal/adapter/postgres"
	"github.com/forgekit/forge-backend/internal/adapter/postgres/document"
	"github.com/forgekit/forge-backend/internal/app"
	"github.com/forgekit/forge-backend/internal/catalog"
	"github.com/forgekit/forge-backend/internal/config"
	"github.com/forgekit/forge-backend/internal/crud"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	docs := document.New(pool)
	caches := catalog.CacheTables(crud.Deps{
		Store:  docs,
		Tx:     postgres.NewTxManager(pool),
		Logger: logger,
	})

	total := int64(0)
	for table, cache := range caches {
		purged, err := cache.Purge(ctx)
		if err != nil {
			logger.Error("purge failed",
				slog.String("table", table),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		logger.Info("cache purged",
			slog.String("table", table),
			slog.Int64("purged", purged),
		)
		total += purged
	}

	logger.Info("purge completed", slog.Int64("total", total))
}
