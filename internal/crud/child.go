package crud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
	"github.com/forgekit/forge-backend/internal/policy"
	"github.com/forgekit/forge-backend/internal/schema"
)

// ChildOptions configure the parent binding of a ChildCrud.
type ChildOptions struct {
	Options

	// ParentTable holds the owning documents; ParentField is the child
	// field carrying the parent id as a string.
	ParentTable string
	ParentField string

	// PublicFlagField names a bool field on the parent that opens the
	// child collection to unauthenticated reads. Empty disables the
	// public variants.
	PublicFlagField string
}

// ChildCrud manages documents that belong to exactly one parent
// document, e.g. messages under a chat. Every operation authorizes
// against the parent's owner, never the child's own userId.
type ChildCrud struct {
	table   string
	schema  *schema.Schema
	opts    ChildOptions
	store   Store
	tx      TxManager
	authors AuthorSource
	limits  RateLimitStore
	jan     janitor
	log     *slog.Logger
	now     func() time.Time
}

// NewChild builds the parent-owned handler set for a table.
func NewChild(s *schema.Schema, opts ChildOptions, deps Deps) *ChildCrud {
	return &ChildCrud{
		table:   s.Table,
		schema:  s,
		opts:    opts,
		store:   deps.Store,
		tx:      deps.Tx,
		authors: deps.Authors,
		limits:  deps.Limits,
		jan:     janitor{blobs: deps.Blobs, log: deps.Logger.With("table", s.Table)},
		log:     deps.Logger.With("table", s.Table),
		now:     deps.clock(),
	}
}

// resolveParent loads the parent and checks the caller owns it. A
// missing or soft-deleted parent is NOT_FOUND; a parent owned by
// someone else is NOT_AUTHORIZED.
func (c *ChildCrud) resolveParent(ctx context.Context, parentID uuid.UUID, caller policy.Caller) (*domain.Document, error) {
	parent, err := c.store.Get(ctx, c.opts.ParentTable, parentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound(c.opts.ParentTable)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", c.opts.ParentTable, err)
	}
	if parent.Deleted() {
		return nil, domain.NotFound(c.opts.ParentTable)
	}
	if !caller.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}
	if parent.UserID != caller.ID {
		return nil, domain.ErrNotAuthorized
	}
	return parent, nil
}

// resolveParentPublic is the read-side variant: the owner always passes,
// anyone else passes only when the parent's public flag is set. Private
// parents read as NOT_FOUND so their existence does not leak.
func (c *ChildCrud) resolveParentPublic(ctx context.Context, parentID uuid.UUID, caller policy.Caller) (*domain.Document, error) {
	parent, err := c.store.Get(ctx, c.opts.ParentTable, parentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound(c.opts.ParentTable)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", c.opts.ParentTable, err)
	}
	if parent.Deleted() {
		return nil, domain.NotFound(c.opts.ParentTable)
	}
	if caller.Authenticated && parent.UserID == caller.ID {
		return parent, nil
	}
	if c.opts.PublicFlagField != "" {
		if public, ok := parent.Fields[c.opts.PublicFlagField].(bool); ok && public {
			return parent, nil
		}
	}
	return nil, domain.NotFound(c.opts.ParentTable)
}

func (c *ChildCrud) parentOf(doc *domain.Document) (uuid.UUID, error) {
	ref, ok := doc.Fields[c.opts.ParentField].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("%s: document %s has no %s", c.table, doc.ID, c.opts.ParentField)
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: bad %s on %s: %w", c.table, c.opts.ParentField, doc.ID, err)
	}
	return id, nil
}

// Create inserts a child under the parent. The parent reference field
// is set by the factory and never taken from caller input.
func (c *ChildCrud) Create(ctx context.Context, parentID uuid.UUID, fields map[string]any) (uuid.UUID, error) {
	caller := callerFromCtx(ctx)
	if !caller.Authenticated {
		return uuid.Nil, domain.ErrNotAuthenticated
	}

	// The parent reference is factory-controlled; it overwrites caller
	// input and must be present before validation since the catalog
	// declares it required.
	if fields == nil {
		fields = map[string]any{}
	}
	fields[c.opts.ParentField] = parentRef(parentID)
	clean, err := c.schema.Validate(fields)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = c.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := c.resolveParent(ctx, parentID, caller); err != nil {
			return err
		}

		now := c.now()
		if err := takeWriteSlot(ctx, c.limits, caller.ID, c.table, c.opts.MaxWritesPerWindow, c.opts.RateWindow, now); err != nil {
			return err
		}

		doc := &domain.Document{
			ID:           uuid.New(),
			CreationTime: now,
			UpdatedAt:    now,
			UserID:       caller.ID,
			Fields:       clean,
		}
		if err := c.store.Insert(ctx, c.table, doc); err != nil {
			return fmt.Errorf("insert %s: %w", c.table, err)
		}
		id = doc.ID
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	c.log.DebugContext(ctx, "child document created",
		slog.String("id", id.String()),
		slog.String("parent_id", parentID.String()),
	)
	return id, nil
}

// Read returns the enriched child after authorizing against its parent,
// or nil when the child is absent or soft-deleted.
func (c *ChildCrud) Read(ctx context.Context, id uuid.UUID) (*domain.EnrichedDocument, error) {
	return c.read(ctx, id, c.resolveParent)
}

// PublicRead is Read for unauthenticated callers; it succeeds only when
// the parent carries the public flag.
func (c *ChildCrud) PublicRead(ctx context.Context, id uuid.UUID) (*domain.EnrichedDocument, error) {
	return c.read(ctx, id, c.resolveParentPublic)
}

func (c *ChildCrud) read(ctx context.Context, id uuid.UUID, resolve func(context.Context, uuid.UUID, policy.Caller) (*domain.Document, error)) (*domain.EnrichedDocument, error) {
	caller := callerFromCtx(ctx)

	doc, err := c.store.Get(ctx, c.table, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", c.table, err)
	}
	if doc.Deleted() {
		return nil, nil
	}

	parentID, err := c.parentOf(doc)
	if err != nil {
		return nil, err
	}
	if _, err := resolve(ctx, parentID, caller); err != nil {
		return nil, err
	}
	return enrichOne(ctx, c.authors, doc, caller.ID)
}

// List returns the parent's non-deleted children, oldest first per the
// store's cursor contract.
func (c *ChildCrud) List(ctx context.Context, parentID uuid.UUID, req ListRequest) (*domain.Page, error) {
	return c.list(ctx, parentID, req, c.resolveParent)
}

// PublicList is List gated on the parent's public flag instead of
// ownership.
func (c *ChildCrud) PublicList(ctx context.Context, parentID uuid.UUID, req ListRequest) (*domain.Page, error) {
	return c.list(ctx, parentID, req, c.resolveParentPublic)
}

func (c *ChildCrud) list(ctx context.Context, parentID uuid.UUID, req ListRequest, resolve func(context.Context, uuid.UUID, policy.Caller) (*domain.Document, error)) (*domain.Page, error) {
	caller := callerFromCtx(ctx)
	if _, err := resolve(ctx, parentID, caller); err != nil {
		return nil, err
	}

	opts := req.PaginationOpts
	if opts.NumItems <= 0 {
		opts.NumItems = defaultPageSize
	}
	if opts.NumItems > maxPageSize {
		opts.NumItems = maxPageSize
	}

	// parent scope is ANDed with whatever filter the caller supplied
	where := &domain.Where{Eq: map[string]any{c.opts.ParentField: parentRef(parentID)}}
	if req.Where != nil && !req.Where.IsZero() {
		for k, v := range req.Where.Eq {
			if k == c.opts.ParentField {
				continue
			}
			where.Eq[k] = v
		}
		where.Or = req.Where.Or
		where.Own = req.Where.Own
	}

	pg, err := c.store.Page(ctx, c.table, domain.Query{Where: where, Caller: caller.ID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.table, err)
	}

	enriched, err := enrich(ctx, c.authors, pg.Page, caller.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Page{Page: enriched, ContinueCursor: pg.ContinueCursor, IsDone: pg.IsDone}, nil
}

// Update applies a partial update to a child after authorizing against
// its parent. The parent reference field itself is immutable.
func (c *ChildCrud) Update(ctx context.Context, id uuid.UUID, fields map[string]any, expected *time.Time) (*domain.Document, error) {
	caller := callerFromCtx(ctx)
	if !caller.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}

	delete(fields, c.opts.ParentField)
	clean, err := c.schema.ValidatePartial(fields)
	if err != nil {
		return nil, err
	}

	var updated *domain.Document
	var orphans []string
	err = c.tx.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := c.store.Get(ctx, c.table, id)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFound(c.table)
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", c.table, err)
		}
		if doc.Deleted() {
			return domain.NotFound(c.table)
		}

		parentID, err := c.parentOf(doc)
		if err != nil {
			return err
		}
		if _, err := c.resolveParent(ctx, parentID, caller); err != nil {
			return err
		}
		if err := checkConflict(doc, expected, fields); err != nil {
			return err
		}

		merged := mergeFields(doc.Fields, clean)
		orphans = schema.OrphanedRefs(c.schema, doc.Fields, merged)

		doc.Fields = merged
		doc.UpdatedAt = nextUpdatedAt(c.now(), doc.UpdatedAt)
		if err := c.store.Update(ctx, c.table, doc); err != nil {
			return fmt.Errorf("update %s: %w", c.table, err)
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.jan.deleteRefs(ctx, orphans)
	return updated, nil
}

// Rm soft-deletes a child after authorizing against its parent.
// Idempotent for absent and already-deleted children.
func (c *ChildCrud) Rm(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	caller := callerFromCtx(ctx)
	if !caller.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}

	var removed *domain.Document
	err := c.tx.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := c.store.Get(ctx, c.table, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", c.table, err)
		}
		if doc.Deleted() {
			return nil
		}

		parentID, err := c.parentOf(doc)
		if err != nil {
			return err
		}
		if _, err := c.resolveParent(ctx, parentID, caller); err != nil {
			return err
		}

		now := c.now()
		doc.DeletedAt = &now
		doc.UpdatedAt = nextUpdatedAt(now, doc.UpdatedAt)
		if err := c.store.Update(ctx, c.table, doc); err != nil {
			return fmt.Errorf("soft delete %s: %w", c.table, err)
		}
		removed = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	if removed != nil {
		c.jan.cleanupAll(ctx, c.schema, removed.Fields)
	}
	return removed, nil
}
