package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgekit/forge-backend/internal/adapter/fsblob"
	"github.com/forgekit/forge-backend/internal/adapter/postgres"
	"github.com/forgekit/forge-backend/internal/adapter/postgres/document"
	orgrepo "github.com/forgekit/forge-backend/internal/adapter/postgres/org"
	"github.com/forgekit/forge-backend/internal/adapter/postgres/ratelimit"
	"github.com/forgekit/forge-backend/internal/adapter/postgres/user"
	"github.com/forgekit/forge-backend/internal/auth"
	"github.com/forgekit/forge-backend/internal/catalog"
	"github.com/forgekit/forge-backend/internal/config"
	"github.com/forgekit/forge-backend/internal/crud"
	"github.com/forgekit/forge-backend/internal/service/author"
	"github.com/forgekit/forge-backend/internal/service/org"
	"github.com/forgekit/forge-backend/internal/transport/middleware"
	"github.com/forgekit/forge-backend/internal/transport/rest"
)

// accessTokenTTL applies only to tokens minted by local tooling; the
// server itself only validates.
const accessTokenTTL = 15 * time.Minute

// Run is the application entry point. It loads configuration, connects
// the collaborators, builds the endpoint registry for the table catalog,
// and serves HTTP until ctx is cancelled.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
	)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	blobs, err := fsblob.New(cfg.Blob.Dir, cfg.Blob.BaseURL)
	if err != nil {
		return err
	}

	docs := document.New(pool)
	orgs := orgrepo.New(pool)
	users := user.New(pool)
	limits := ratelimit.New(pool)
	tx := postgres.NewTxManager(pool)

	authors := author.New(users)
	orgSvc := org.NewService(logger, orgs, tx)

	registry, err := catalog.Build(cfg.Limits, crud.Deps{
		Store:   docs,
		Tx:      tx,
		Blobs:   blobs,
		Authors: authors,
		Limits:  limits,
		Orgs:    orgs,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}
	logger.Info("catalog registered", slog.Any("tables", registry.Tables()))

	router := rest.NewRouter(rest.RouterDeps{
		API:    rest.NewAPIHandler(logger, registry),
		Orgs:   rest.NewOrgsHandler(logger, orgSvc),
		Files:  rest.NewFilesHandler(logger, blobs),
		Health: rest.NewHealthHandler(pool, BuildVersion()),
	})

	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, accessTokenTTL)
	ipLimiter := middleware.NewRateLimiter(time.Minute)
	defer ipLimiter.Stop()

	handler := middleware.Chain(
		middleware.RequestID,
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.CORS(cfg.CORS),
		ipLimiter.Limit(cfg.Limits.RequestsPerMinute),
		middleware.Auth(jwt),
	)(router)

	srv := rest.NewServer(cfg.Server, handler)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", srv.Addr()))
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
