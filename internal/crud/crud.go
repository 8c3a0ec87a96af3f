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

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Options tune one factory instance.
type Options struct {
	// MaxWritesPerWindow caps creates per user per RateWindow; 0 disables
	// throttling.
	MaxWritesPerWindow int
	RateWindow         time.Duration

	// Cascades are child tables hard-deleted when a document of this
	// table is removed.
	Cascades []Cascade
}

// Crud is the owner-scoped factory: every document belongs to the user
// who created it, and only that user can see (with own) or modify it.
type Crud struct {
	table   string
	schema  *schema.Schema
	opts    Options
	store   Store
	tx      TxManager
	authors AuthorSource
	limits  RateLimitStore
	jan     janitor
	log     *slog.Logger
	now     func() time.Time
}

// New builds the owner-scoped handler set for a table.
func New(s *schema.Schema, opts Options, deps Deps) *Crud {
	return &Crud{
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

// Create validates fields against the schema and inserts a new document
// owned by the caller. The rate-limit window advances atomically with
// the insert.
func (c *Crud) Create(ctx context.Context, fields map[string]any) (uuid.UUID, error) {
	caller := callerFromCtx(ctx)
	if err := policy.Allow(policy.Input{Caller: caller, Op: policy.OpCreate}); err != nil {
		return uuid.Nil, err
	}

	clean, err := c.schema.Validate(fields)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = c.tx.RunInTx(ctx, func(ctx context.Context) error {
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

	c.log.DebugContext(ctx, "document created",
		slog.String("id", id.String()),
		slog.String("user_id", caller.ID.String()),
	)
	return id, nil
}

// ReadOptions narrow a direct read.
type ReadOptions struct {
	Own   bool
	Where *domain.Where
}

// Read returns the enriched document, or nil when it is absent,
// soft-deleted, filtered out by Where, or (with Own) not the caller's.
// An anonymous caller with Own always gets nil.
func (c *Crud) Read(ctx context.Context, id uuid.UUID, opts ReadOptions) (*domain.EnrichedDocument, error) {
	caller := callerFromCtx(ctx)
	if opts.Own && !caller.Authenticated {
		return nil, nil
	}

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
	if opts.Own && doc.UserID != caller.ID {
		return nil, nil
	}
	if !opts.Where.Matches(doc, caller.ID) {
		return nil, nil
	}

	return enrichOne(ctx, c.authors, doc, caller.ID)
}

// Update applies a partial field update to a caller-owned document.
// Missing, soft-deleted, and foreign documents all fail with NOT_FOUND;
// a stale expected token fails with CONFLICT before anything is written.
func (c *Crud) Update(ctx context.Context, id uuid.UUID, fields map[string]any, expected *time.Time) (*domain.Document, error) {
	caller := callerFromCtx(ctx)
	if !caller.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}

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
		if err := policy.Allow(policy.Input{Caller: caller, Op: policy.OpUpdate, Doc: doc}); err != nil {
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

// Rm soft-deletes a caller-owned document. Removing an absent or
// already-deleted document is an idempotent no-op returning nil. All of
// the document's blob references are scheduled for cleanup, and cascade
// children are hard-deleted in the same transaction.
func (c *Crud) Rm(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
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
		if err := policy.Allow(policy.Input{Caller: caller, Op: policy.OpDelete, Doc: doc}); err != nil {
			return err
		}

		now := c.now()
		doc.DeletedAt = &now
		doc.UpdatedAt = nextUpdatedAt(now, doc.UpdatedAt)
		if err := c.store.Update(ctx, c.table, doc); err != nil {
			return fmt.Errorf("soft delete %s: %w", c.table, err)
		}

		if err := c.cascade(ctx, id); err != nil {
			return err
		}
		removed = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	if removed != nil {
		c.jan.cleanupAll(ctx, c.schema, removed.Fields)
		c.log.DebugContext(ctx, "document soft-deleted", slog.String("id", id.String()))
	}
	return removed, nil
}

// Restore clears a soft-delete mark. Restoring a non-deleted document is
// a no-op returning the document unchanged.
func (c *Crud) Restore(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	caller := callerFromCtx(ctx)
	if !caller.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}

	var restored *domain.Document
	err := c.tx.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := c.store.Get(ctx, c.table, id)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFound(c.table)
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", c.table, err)
		}
		if err := policy.Allow(policy.Input{Caller: caller, Op: policy.OpRestore, Doc: doc}); err != nil {
			return err
		}
		if !doc.Deleted() {
			restored = doc
			return nil
		}

		doc.DeletedAt = nil
		doc.UpdatedAt = nextUpdatedAt(c.now(), doc.UpdatedAt)
		if err := c.store.Update(ctx, c.table, doc); err != nil {
			return fmt.Errorf("restore %s: %w", c.table, err)
		}
		restored = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// BulkResult reports a bulk operation item by item. The batch never
// aborts on a single failure: stale ids on the caller's side must not
// poison the rest of a selection, and each sub-operation is
// independently atomic anyway.
type BulkResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    []BulkFailure `json:"failed,omitempty"`
}

// BulkFailure identifies one failed item of a bulk operation.
type BulkFailure struct {
	ID      uuid.UUID   `json:"id"`
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

// BulkRm soft-deletes each id with Rm semantics. An empty ids slice is a
// valid no-op.
func (c *Crud) BulkRm(ctx context.Context, ids []uuid.UUID) (*BulkResult, error) {
	res := &BulkResult{}
	for _, id := range ids {
		if _, err := c.Rm(ctx, id); err != nil {
			res.Failed = append(res.Failed, bulkFailure(id, err))
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

// BulkUpdate applies the same partial update to each id with Update
// semantics.
func (c *Crud) BulkUpdate(ctx context.Context, ids []uuid.UUID, fields map[string]any) (*BulkResult, error) {
	res := &BulkResult{}
	for _, id := range ids {
		if _, err := c.Update(ctx, id, fields, nil); err != nil {
			res.Failed = append(res.Failed, bulkFailure(id, err))
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

func bulkFailure(id uuid.UUID, err error) BulkFailure {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return BulkFailure{ID: id, Code: derr.Code, Message: derr.Message}
	}
	return BulkFailure{ID: id, Code: "INTERNAL", Message: err.Error()}
}

// ListRequest is the cursor-paginated listing input.
type ListRequest struct {
	PaginationOpts domain.PaginationOpts
	Where          *domain.Where
}

// List returns non-deleted documents matching Where, enriched, following
// the store's cursor contract.
func (c *Crud) List(ctx context.Context, req ListRequest) (*domain.Page, error) {
	caller := callerFromCtx(ctx)

	opts := req.PaginationOpts
	if opts.NumItems <= 0 {
		opts.NumItems = defaultPageSize
	}
	if opts.NumItems > maxPageSize {
		opts.NumItems = maxPageSize
	}

	pg, err := c.store.Page(ctx, c.table, domain.Query{Where: req.Where, Caller: caller.ID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.table, err)
	}

	enriched, err := enrich(ctx, c.authors, pg.Page, caller.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Page{Page: enriched, ContinueCursor: pg.ContinueCursor, IsDone: pg.IsDone}, nil
}

// SearchRequest is the full-text search input.
type SearchRequest struct {
	Query string
	Where *domain.Where
}

// Search matches the schema's designated search field case-insensitively
// and returns enriched documents without pagination.
func (c *Crud) Search(ctx context.Context, req SearchRequest) ([]domain.EnrichedDocument, error) {
	if c.schema.SearchField == "" {
		return nil, domain.Validation("query", "table has no search field")
	}
	caller := callerFromCtx(ctx)

	docs, err := c.store.Search(ctx, c.table, c.schema.SearchField, req.Query, domain.Query{Where: req.Where, Caller: caller.ID})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.table, err)
	}
	return enrich(ctx, c.authors, docs, caller.ID)
}

func (c *Crud) cascade(ctx context.Context, parentID uuid.UUID) error {
	for _, casc := range c.opts.Cascades {
		if _, err := c.store.DeleteMatching(ctx, casc.Table, casc.ParentField, parentRef(parentID)); err != nil {
			return fmt.Errorf("cascade delete %s: %w", casc.Table, err)
		}
	}
	return nil
}

// mergeFields overlays a validated partial update onto existing fields.
// An explicit null clears the field.
func mergeFields(current, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}
