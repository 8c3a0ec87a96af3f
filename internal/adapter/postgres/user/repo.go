// Package user implements user persistence; the crud layer only ever
// sees users as authors of documents.
package user

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgekit/forge-backend/internal/adapter/postgres"
	"github.com/forgekit/forge-backend/internal/domain"
)

// Repo provides user persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new user repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const getByIDSQL = `
SELECT id, name, avatar_url
FROM users
WHERE id = $1`

const getByIDsSQL = `
SELECT id, name, avatar_url
FROM users
WHERE id = ANY($1::uuid[])`

const upsertSQL = `
INSERT INTO users (id, name, avatar_url)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, avatar_url = EXCLUDED.avatar_url`

func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Author, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var a domain.Author
	err := q.QueryRow(ctx, getByIDSQL, id).Scan(&a.ID, &a.Name, &a.AvatarURL)
	if err != nil {
		return nil, postgres.MapError(err, "user")
	}
	return &a, nil
}

// GetByIDs returns the authors found; unknown ids are simply absent from
// the result map.
func (r *Repo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Author, error) {
	out := make(map[uuid.UUID]domain.Author, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	q := postgres.QuerierFromCtx(ctx, r.pool)
	rows, err := q.Query(ctx, getByIDsSQL, ids)
	if err != nil {
		return nil, postgres.MapError(err, "user")
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Author
		if err := rows.Scan(&a.ID, &a.Name, &a.AvatarURL); err != nil {
			return nil, postgres.MapError(err, "user")
		}
		out[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "user")
	}
	return out, nil
}

func (r *Repo) Upsert(ctx context.Context, a *domain.Author) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := q.Exec(ctx, upsertSQL, a.ID, a.Name, a.AvatarURL)
	return postgres.MapError(err, "user")
}
