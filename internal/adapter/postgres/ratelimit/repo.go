// Package ratelimit persists per-(user, table) write windows. Put runs
// inside the create transaction, so the counter advances atomically with
// the write it admits.
package ratelimit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgekit/forge-backend/internal/adapter/postgres"
	"github.com/forgekit/forge-backend/internal/domain"
)

// Repo provides rate limit window persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new rate limit repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const getSQL = `
SELECT user_id, tbl, count, window_start
FROM rate_limit_windows
WHERE user_id = $1 AND tbl = $2
FOR UPDATE`

const putSQL = `
INSERT INTO rate_limit_windows (user_id, tbl, count, window_start)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, tbl) DO UPDATE SET count = EXCLUDED.count, window_start = EXCLUDED.window_start`

// Get locks the caller's window row for the rest of the transaction, so
// concurrent creates by one user serialize on the counter.
func (r *Repo) Get(ctx context.Context, userID uuid.UUID, table string) (*domain.RateLimitWindow, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var w domain.RateLimitWindow
	err := q.QueryRow(ctx, getSQL, userID, table).
		Scan(&w.UserID, &w.Table, &w.Count, &w.WindowStart)
	if err != nil {
		return nil, postgres.MapError(err, "rate limit window")
	}
	return &w, nil
}

func (r *Repo) Put(ctx context.Context, w domain.RateLimitWindow) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := q.Exec(ctx, putSQL, w.UserID, w.Table, w.Count, w.WindowStart)
	return postgres.MapError(err, "rate limit window")
}
