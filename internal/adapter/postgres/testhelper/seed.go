package testhelper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgekit/forge-backend/internal/domain"
)

func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedUser creates a user row and returns its author profile.
func SeedUser(t *testing.T, pool *pgxpool.Pool) domain.Author {
	t.Helper()

	author := domain.Author{
		ID:   uuid.New(),
		Name: "Test User " + uniqueSuffix(),
	}
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, name, avatar_url) VALUES ($1, $2, $3)`,
		author.ID, author.Name, author.AvatarURL,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedUser: %v", err)
	}
	return author
}

// SeedOrg creates an organization owned by the given user.
func SeedOrg(t *testing.T, pool *pgxpool.Pool, ownerID uuid.UUID) domain.Organization {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	org := domain.Organization{
		ID:        uuid.New(),
		Slug:      "org-" + uniqueSuffix(),
		Name:      "Test Org " + uniqueSuffix(),
		UserID:    ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := pool.Exec(context.Background(),
		`INSERT INTO organizations (id, slug, name, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		org.ID, org.Slug, org.Name, org.UserID, org.CreatedAt, org.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedOrg: %v", err)
	}
	return org
}

// SeedDocument inserts a document row directly.
func SeedDocument(t *testing.T, pool *pgxpool.Pool, table string, doc *domain.Document) {
	t.Helper()

	editors := make([]string, 0, len(doc.Editors))
	for _, e := range doc.Editors {
		editors = append(editors, e.String())
	}
	_, err := pool.Exec(context.Background(),
		`INSERT INTO documents (id, tbl, creation_time, updated_at, user_id, org_id, deleted_at, editors, fields)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, table, doc.CreationTime, doc.UpdatedAt, doc.UserID, doc.OrgID, doc.DeletedAt, editors, doc.Fields,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedDocument: %v", err)
	}
}
