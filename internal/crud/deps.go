package crud

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/policy"
	"github.com/forgekit/forge-backend/pkg/ctxutil"
)

// Deps are the external collaborators shared by every factory.
type Deps struct {
	Store   Store
	Tx      TxManager
	Blobs   BlobStore
	Authors AuthorSource
	Limits  RateLimitStore
	Orgs    OrgDirectory
	Logger  *slog.Logger

	// Now overrides the clock in tests; defaults to time.Now.
	Now func() time.Time
}

func (d *Deps) clock() func() time.Time {
	if d.Now != nil {
		return d.Now
	}
	return time.Now
}

// callerFromCtx resolves the request identity the same way for every
// handler invocation; factories keep no per-session state.
func callerFromCtx(ctx context.Context) policy.Caller {
	id, ok := ctxutil.UserIDFromCtx(ctx)
	if !ok {
		return policy.Anonymous
	}
	return policy.Caller{ID: id, Authenticated: true}
}

// Cascade declares a child table whose rows are hard-deleted when a
// parent document is removed. ParentField is the child field holding the
// parent id (stored as a string).
type Cascade struct {
	Table       string
	ParentField string
}

func parentRef(id uuid.UUID) string { return id.String() }
