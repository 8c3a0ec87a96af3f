// Package crud synthesizes the endpoint handler bundles for registered
// tables. Five factory shapes cover the access-control variants: Crud
// (owner-scoped), OrgCrud (organization role/editor ACL), ChildCrud
// (parent-owned), CacheCrud (TTL-keyed), SingletonCrud (one document per
// user). All of them share the conflict detector, the file-reference
// janitor, the where-clause evaluation, and the policy step.
package crud

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
)

// Store is the transactional document store the factories run against.
// Implementations: internal/adapter/postgres/document, internal/adapter/memstore.
type Store interface {
	// Get returns a document regardless of its soft-delete state.
	// Returns domain.ErrNotFound when absent.
	Get(ctx context.Context, table string, id uuid.UUID) (*domain.Document, error)
	// GetByField returns the first document whose field equals value,
	// including soft-deleted ones. Returns domain.ErrNotFound when absent.
	GetByField(ctx context.Context, table, field string, value any) (*domain.Document, error)
	// GetByOwner returns the caller's document in a singleton table.
	GetByOwner(ctx context.Context, table string, userID uuid.UUID) (*domain.Document, error)

	Insert(ctx context.Context, table string, doc *domain.Document) error
	Update(ctx context.Context, table string, doc *domain.Document) error

	// Delete hard-deletes a row. Returns domain.ErrNotFound when absent.
	Delete(ctx context.Context, table string, id uuid.UUID) error
	// DeleteMatching hard-deletes every row whose field equals value and
	// returns the count removed. Used by cascades and cache invalidation.
	DeleteMatching(ctx context.Context, table, field string, value any) (int64, error)
	// DeleteStale hard-deletes rows not updated since the cutoff.
	DeleteStale(ctx context.Context, table string, cutoff time.Time) (int64, error)

	Find(ctx context.Context, table string, q domain.Query) ([]domain.Document, error)
	Page(ctx context.Context, table string, q domain.Query, opts domain.PaginationOpts) (*domain.DocumentPage, error)
	// Search matches the designated search field case-insensitively by
	// substring, combined with the query filter.
	Search(ctx context.Context, table, field, query string, q domain.Query) ([]domain.Document, error)
}

// TxManager runs a function inside one store transaction. The conflict
// check and the write it guards always share a transaction.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// BlobStore is the external blob collaborator; the factories only ever
// delete orphaned references.
type BlobStore interface {
	Delete(ctx context.Context, id string) error
}

// AuthorSource resolves public author profiles in batch. Implementations
// must tolerate unknown ids (absent from the result map).
type AuthorSource interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Author, error)
}

// RateLimitStore persists per-(user, table) write windows.
type RateLimitStore interface {
	// Get returns domain.ErrNotFound when no window exists yet.
	Get(ctx context.Context, userID uuid.UUID, table string) (*domain.RateLimitWindow, error)
	Put(ctx context.Context, w domain.RateLimitWindow) error
}

// OrgDirectory resolves organizations and memberships for the org-scoped
// factory. Implemented by the org service.
type OrgDirectory interface {
	GetOrg(ctx context.Context, orgID uuid.UUID) (*domain.Organization, error)
	// GetMember returns domain.ErrNotFound when the user has no
	// membership row (the org owner usually has none).
	GetMember(ctx context.Context, orgID, userID uuid.UUID) (*domain.OrgMember, error)
}
