package crud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
	"github.com/forgekit/forge-backend/internal/policy"
	"github.com/forgekit/forge-backend/internal/schema"
)

// OrgCrud is the organization-scoped factory. Writes are allowed to the
// org owner, org admins, the document's creator, and users on the
// document's editor list; editor-list management is admin-only.
type OrgCrud struct {
	table   string
	schema  *schema.Schema
	opts    Options
	store   Store
	tx      TxManager
	orgs    OrgDirectory
	authors AuthorSource
	jan     janitor
	log     *slog.Logger
	now     func() time.Time
}

// NewOrg builds the org-scoped handler set for a table.
func NewOrg(s *schema.Schema, opts Options, deps Deps) *OrgCrud {
	return &OrgCrud{
		table:   s.Table,
		schema:  s,
		opts:    opts,
		store:   deps.Store,
		tx:      deps.Tx,
		orgs:    deps.Orgs,
		authors: deps.Authors,
		jan:     janitor{blobs: deps.Blobs, log: deps.Logger.With("table", s.Table)},
		log:     deps.Logger.With("table", s.Table),
		now:     deps.clock(),
	}
}

// orgInput assembles the policy input for a caller acting on a document
// inside an org. Doc may be nil (create).
func (c *OrgCrud) orgInput(ctx context.Context, caller policy.Caller, op policy.Op, orgID uuid.UUID, doc *domain.Document) (policy.Input, error) {
	in := policy.Input{Caller: caller, Op: op, Doc: doc}
	if !caller.Authenticated {
		return in, nil // policy rejects before org resolution matters
	}

	org, err := c.orgs.GetOrg(ctx, orgID)
	if errors.Is(err, domain.ErrNotFound) {
		return in, domain.NotFound("organization")
	}
	if err != nil {
		return in, fmt.Errorf("get organization: %w", err)
	}
	in.Org = org

	member, err := c.orgs.GetMember(ctx, orgID, caller.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return in, fmt.Errorf("get membership: %w", err)
	}
	in.Member = member
	return in, nil
}

// requireRead gates every read path on org membership; non-members and
// anonymous callers see nothing, document or collection alike.
func (c *OrgCrud) requireRead(ctx context.Context, caller policy.Caller, orgID uuid.UUID) error {
	in, err := c.orgInput(ctx, caller, policy.OpRead, orgID, nil)
	if err != nil {
		return err
	}
	return policy.Allow(in)
}

// getScoped loads a document and verifies it belongs to the org; a
// mismatch reads as NOT_FOUND so ids cannot be probed across orgs.
func (c *OrgCrud) getScoped(ctx context.Context, orgID, id uuid.UUID) (*domain.Document, error) {
	doc, err := c.store.Get(ctx, c.table, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound(c.table)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", c.table, err)
	}
	if doc.OrgID == nil || *doc.OrgID != orgID {
		return nil, domain.NotFound(c.table)
	}
	return doc, nil
}

// Create inserts a document scoped to the org. The caller must be a
// member (the owner counts without a member row).
func (c *OrgCrud) Create(ctx context.Context, orgID uuid.UUID, fields map[string]any) (uuid.UUID, error) {
	caller := callerFromCtx(ctx)
	in, err := c.orgInput(ctx, caller, policy.OpCreate, orgID, nil)
	if err != nil {
		return uuid.Nil, err
	}
	if err := policy.Allow(in); err != nil {
		return uuid.Nil, err
	}

	clean, err := c.schema.Validate(fields)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = c.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := c.now()
		doc := &domain.Document{
			ID:           uuid.New(),
			CreationTime: now,
			UpdatedAt:    now,
			UserID:       caller.ID,
			OrgID:        &orgID,
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

	c.log.DebugContext(ctx, "org document created",
		slog.String("id", id.String()),
		slog.String("org_id", orgID.String()),
	)
	return id, nil
}

// Read returns the enriched document, including soft-deleted ones (their
// deletedAt is visible so a client can offer restore). Returns nil when
// absent or outside the org. The caller must be a member.
func (c *OrgCrud) Read(ctx context.Context, orgID, id uuid.UUID) (*domain.EnrichedDocument, error) {
	caller := callerFromCtx(ctx)
	if err := c.requireRead(ctx, caller, orgID); err != nil {
		return nil, err
	}
	doc, err := c.getScoped(ctx, orgID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return enrichOne(ctx, c.authors, doc, caller.ID)
}

// Update applies a partial update under the org ACL.
func (c *OrgCrud) Update(ctx context.Context, orgID, id uuid.UUID, fields map[string]any, expected *time.Time) (*domain.Document, error) {
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
		doc, err := c.getScoped(ctx, orgID, id)
		if err != nil {
			return err
		}
		if doc.Deleted() {
			return domain.NotFound(c.table)
		}

		in, err := c.orgInput(ctx, caller, policy.OpUpdate, orgID, doc)
		if err != nil {
			return err
		}
		if err := policy.Allow(in); err != nil {
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

// Rm soft-deletes under the org ACL; cascade children are hard-deleted
// in the same transaction. Idempotent like the owner-scoped variant.
func (c *OrgCrud) Rm(ctx context.Context, orgID, id uuid.UUID) (*domain.Document, error) {
	caller := callerFromCtx(ctx)
	if !caller.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}

	var removed *domain.Document
	err := c.tx.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := c.getScoped(ctx, orgID, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if doc.Deleted() {
			return nil
		}

		in, err := c.orgInput(ctx, caller, policy.OpDelete, orgID, doc)
		if err != nil {
			return err
		}
		if err := policy.Allow(in); err != nil {
			return err
		}

		now := c.now()
		doc.DeletedAt = &now
		doc.UpdatedAt = nextUpdatedAt(now, doc.UpdatedAt)
		if err := c.store.Update(ctx, c.table, doc); err != nil {
			return fmt.Errorf("soft delete %s: %w", c.table, err)
		}

		for _, casc := range c.opts.Cascades {
			if _, err := c.store.DeleteMatching(ctx, casc.Table, casc.ParentField, parentRef(id)); err != nil {
				return fmt.Errorf("cascade delete %s: %w", casc.Table, err)
			}
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

// Restore clears a soft-delete mark under the org ACL; a no-op for
// non-deleted documents.
func (c *OrgCrud) Restore(ctx context.Context, orgID, id uuid.UUID) (*domain.Document, error) {
	caller := callerFromCtx(ctx)
	if !caller.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}

	var restored *domain.Document
	err := c.tx.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := c.getScoped(ctx, orgID, id)
		if err != nil {
			return err
		}

		in, err := c.orgInput(ctx, caller, policy.OpRestore, orgID, doc)
		if err != nil {
			return err
		}
		if err := policy.Allow(in); err != nil {
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

// AddEditor grants edit rights on one document. Admin-only, and the
// editor must already be a member of the organization.
func (c *OrgCrud) AddEditor(ctx context.Context, orgID, id, editorID uuid.UUID) (*domain.Document, error) {
	return c.mutateEditors(ctx, orgID, id, func(editors []uuid.UUID) ([]uuid.UUID, error) {
		if err := c.requireMembership(ctx, orgID, editorID); err != nil {
			return nil, err
		}
		if slices.Contains(editors, editorID) {
			return editors, nil
		}
		return append(editors, editorID), nil
	})
}

// RemoveEditor revokes edit rights on one document. Unlike AddEditor it
// follows the general write ACL, so a document's creator can trim its
// editor list.
func (c *OrgCrud) RemoveEditor(ctx context.Context, orgID, id, editorID uuid.UUID) (*domain.Document, error) {
	caller := callerFromCtx(ctx)
	if !caller.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}

	var updated *domain.Document
	err := c.tx.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := c.getScoped(ctx, orgID, id)
		if err != nil {
			return err
		}
		in, err := c.orgInput(ctx, caller, policy.OpUpdate, orgID, doc)
		if err != nil {
			return err
		}
		if err := policy.Allow(in); err != nil {
			return err
		}

		doc.Editors = slices.DeleteFunc(doc.Editors, func(e uuid.UUID) bool { return e == editorID })
		doc.UpdatedAt = nextUpdatedAt(c.now(), doc.UpdatedAt)
		if err := c.store.Update(ctx, c.table, doc); err != nil {
			return fmt.Errorf("update editors %s: %w", c.table, err)
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetEditors replaces the entire editor list atomically. Admin-only;
// every editor must be a member of the organization.
func (c *OrgCrud) SetEditors(ctx context.Context, orgID, id uuid.UUID, editorIDs []uuid.UUID) (*domain.Document, error) {
	return c.mutateEditors(ctx, orgID, id, func([]uuid.UUID) ([]uuid.UUID, error) {
		for _, e := range editorIDs {
			if err := c.requireMembership(ctx, orgID, e); err != nil {
				return nil, err
			}
		}
		return slices.Clone(editorIDs), nil
	})
}

func (c *OrgCrud) mutateEditors(ctx context.Context, orgID, id uuid.UUID, fn func([]uuid.UUID) ([]uuid.UUID, error)) (*domain.Document, error) {
	caller := callerFromCtx(ctx)
	if !caller.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}

	var updated *domain.Document
	err := c.tx.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := c.getScoped(ctx, orgID, id)
		if err != nil {
			return err
		}
		in, err := c.orgInput(ctx, caller, policy.OpManageEditors, orgID, doc)
		if err != nil {
			return err
		}
		if err := policy.Allow(in); err != nil {
			return err
		}

		editors, err := fn(doc.Editors)
		if err != nil {
			return err
		}
		doc.Editors = editors
		doc.UpdatedAt = nextUpdatedAt(c.now(), doc.UpdatedAt)
		if err := c.store.Update(ctx, c.table, doc); err != nil {
			return fmt.Errorf("update editors %s: %w", c.table, err)
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *OrgCrud) requireMembership(ctx context.Context, orgID, userID uuid.UUID) error {
	org, err := c.orgs.GetOrg(ctx, orgID)
	if err != nil {
		return fmt.Errorf("get organization: %w", err)
	}
	if org.IsOwner(userID) {
		return nil
	}
	_, err = c.orgs.GetMember(ctx, orgID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotOrgMember
	}
	if err != nil {
		return fmt.Errorf("get membership: %w", err)
	}
	return nil
}

// BulkRm soft-deletes each id with Rm semantics, reporting per item.
func (c *OrgCrud) BulkRm(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (*BulkResult, error) {
	res := &BulkResult{}
	for _, id := range ids {
		if _, err := c.Rm(ctx, orgID, id); err != nil {
			res.Failed = append(res.Failed, bulkFailure(id, err))
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

// BulkUpdate applies the same partial update to each id with Update
// semantics.
func (c *OrgCrud) BulkUpdate(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID, fields map[string]any) (*BulkResult, error) {
	res := &BulkResult{}
	for _, id := range ids {
		if _, err := c.Update(ctx, orgID, id, fields, nil); err != nil {
			res.Failed = append(res.Failed, bulkFailure(id, err))
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

// IsSlugAvailable reports whether no other document in the org uses the
// slug. excludeID skips one document so a rename-in-place does not
// collide with itself. Soft-deleted documents still hold their slug.
func (c *OrgCrud) IsSlugAvailable(ctx context.Context, orgID uuid.UUID, slug string, excludeID *uuid.UUID) (bool, error) {
	slug = strings.TrimSpace(strings.ToLower(slug))
	if slug == "" {
		return false, domain.Validation("slug", "must not be empty")
	}

	docs, err := c.store.Find(ctx, c.table, domain.Query{
		Where:          &domain.Where{Eq: map[string]any{"slug": slug}},
		OrgID:          &orgID,
		IncludeDeleted: true,
	})
	if err != nil {
		return false, fmt.Errorf("slug lookup %s: %w", c.table, err)
	}

	for i := range docs {
		if excludeID != nil && docs[i].ID == *excludeID {
			continue
		}
		return false, nil
	}
	return true, nil
}

// List returns non-deleted documents of the org, enriched and paginated.
// Members only.
func (c *OrgCrud) List(ctx context.Context, orgID uuid.UUID, req ListRequest) (*domain.Page, error) {
	caller := callerFromCtx(ctx)
	if err := c.requireRead(ctx, caller, orgID); err != nil {
		return nil, err
	}

	opts := req.PaginationOpts
	if opts.NumItems <= 0 {
		opts.NumItems = defaultPageSize
	}
	if opts.NumItems > maxPageSize {
		opts.NumItems = maxPageSize
	}

	pg, err := c.store.Page(ctx, c.table, domain.Query{Where: req.Where, Caller: caller.ID, OrgID: &orgID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.table, err)
	}

	enriched, err := enrich(ctx, c.authors, pg.Page, caller.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Page{Page: enriched, ContinueCursor: pg.ContinueCursor, IsDone: pg.IsDone}, nil
}

// Search matches the schema's search field within the org. Members only.
func (c *OrgCrud) Search(ctx context.Context, orgID uuid.UUID, req SearchRequest) ([]domain.EnrichedDocument, error) {
	if c.schema.SearchField == "" {
		return nil, domain.Validation("query", "table has no search field")
	}
	caller := callerFromCtx(ctx)
	if err := c.requireRead(ctx, caller, orgID); err != nil {
		return nil, err
	}

	docs, err := c.store.Search(ctx, c.table, c.schema.SearchField, req.Query, domain.Query{Where: req.Where, Caller: caller.ID, OrgID: &orgID})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.table, err)
	}
	return enrich(ctx, c.authors, docs, caller.ID)
}
