// Package org implements organization and membership persistence.
package org

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgekit/forge-backend/internal/adapter/postgres"
	"github.com/forgekit/forge-backend/internal/domain"
)

// Repo provides organization persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new organization repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const getOrgSQL = `
SELECT id, slug, name, user_id, created_at, updated_at
FROM organizations
WHERE id = $1`

const getOrgBySlugSQL = `
SELECT id, slug, name, user_id, created_at, updated_at
FROM organizations
WHERE slug = $1`

const insertOrgSQL = `
INSERT INTO organizations (id, slug, name, user_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`

const updateOrgSQL = `
UPDATE organizations
SET slug = $2, name = $3, updated_at = $4
WHERE id = $1`

const getMemberSQL = `
SELECT org_id, user_id, is_admin, created_at
FROM org_members
WHERE org_id = $1 AND user_id = $2`

const listMembersSQL = `
SELECT org_id, user_id, is_admin, created_at
FROM org_members
WHERE org_id = $1
ORDER BY created_at`

const upsertMemberSQL = `
INSERT INTO org_members (org_id, user_id, is_admin, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (org_id, user_id) DO UPDATE SET is_admin = EXCLUDED.is_admin`

const deleteMemberSQL = `DELETE FROM org_members WHERE org_id = $1 AND user_id = $2`

func (r *Repo) GetOrg(ctx context.Context, orgID uuid.UUID) (*domain.Organization, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var o domain.Organization
	err := q.QueryRow(ctx, getOrgSQL, orgID).
		Scan(&o.ID, &o.Slug, &o.Name, &o.UserID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "organization")
	}
	return &o, nil
}

func (r *Repo) GetOrgBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var o domain.Organization
	err := q.QueryRow(ctx, getOrgBySlugSQL, slug).
		Scan(&o.ID, &o.Slug, &o.Name, &o.UserID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "organization")
	}
	return &o, nil
}

func (r *Repo) Insert(ctx context.Context, o *domain.Organization) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := q.Exec(ctx, insertOrgSQL, o.ID, o.Slug, o.Name, o.UserID, o.CreatedAt, o.UpdatedAt)
	return postgres.MapError(err, "organization")
}

func (r *Repo) Update(ctx context.Context, o *domain.Organization) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx, updateOrgSQL, o.ID, o.Slug, o.Name, o.UpdatedAt)
	if err != nil {
		return postgres.MapError(err, "organization")
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(domain.ErrNotFound, "organization")
	}
	return nil
}

func (r *Repo) GetMember(ctx context.Context, orgID, userID uuid.UUID) (*domain.OrgMember, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var m domain.OrgMember
	err := q.QueryRow(ctx, getMemberSQL, orgID, userID).
		Scan(&m.OrgID, &m.UserID, &m.IsAdmin, &m.CreatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "org member")
	}
	return &m, nil
}

func (r *Repo) ListMembers(ctx context.Context, orgID uuid.UUID) ([]domain.OrgMember, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx, listMembersSQL, orgID)
	if err != nil {
		return nil, postgres.MapError(err, "org member")
	}
	defer rows.Close()

	var out []domain.OrgMember
	for rows.Next() {
		var m domain.OrgMember
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.IsAdmin, &m.CreatedAt); err != nil {
			return nil, postgres.MapError(err, "org member")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "org member")
	}
	return out, nil
}

func (r *Repo) UpsertMember(ctx context.Context, m *domain.OrgMember) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := q.Exec(ctx, upsertMemberSQL, m.OrgID, m.UserID, m.IsAdmin, m.CreatedAt)
	return postgres.MapError(err, "org member")
}

func (r *Repo) DeleteMember(ctx context.Context, orgID, userID uuid.UUID) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx, deleteMemberSQL, orgID, userID)
	if err != nil {
		return postgres.MapError(err, "org member")
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(domain.ErrNotFound, "org member")
	}
	return nil
}
