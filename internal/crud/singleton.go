package crud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
	"github.com/forgekit/forge-backend/internal/schema"
)

// SingletonCrud keeps at most one document per user, e.g. a profile.
// There is no id in the public surface; the caller identity is the key.
type SingletonCrud struct {
	table string
	sch   *schema.Schema
	store Store
	tx    TxManager
	jan   janitor
	log   *slog.Logger
	now   func() time.Time
}

// NewSingleton builds the one-per-user handler set for a table.
func NewSingleton(s *schema.Schema, deps Deps) *SingletonCrud {
	return &SingletonCrud{
		table: s.Table,
		sch:   s,
		store: deps.Store,
		tx:    deps.Tx,
		jan:   janitor{blobs: deps.Blobs, log: deps.Logger.With("table", s.Table)},
		log:   deps.Logger.With("table", s.Table),
		now:   deps.clock(),
	}
}

// Get returns the caller's document, or nil when none exists yet.
func (c *SingletonCrud) Get(ctx context.Context) (*domain.Document, error) {
	caller := callerFromCtx(ctx)
	if !caller.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}

	doc, err := c.store.GetByOwner(ctx, c.table, caller.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", c.table, err)
	}
	if doc.Deleted() {
		return nil, nil
	}
	return doc, nil
}

// Upsert creates the caller's document on first call and partial-merges
// on subsequent calls; unspecified fields keep their prior values. An
// explicit null clears a field, and a cleared or replaced file field has
// its prior blob scheduled for cleanup.
func (c *SingletonCrud) Upsert(ctx context.Context, fields map[string]any, expected *time.Time) (*domain.Document, error) {
	caller := callerFromCtx(ctx)
	if !caller.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}

	clean, err := c.sch.ValidatePartial(fields)
	if err != nil {
		return nil, err
	}

	var stored *domain.Document
	var orphans []string
	err = c.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := c.now()

		doc, err := c.store.GetByOwner(ctx, c.table, caller.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// first write creates; required fields must all be present
			full, err := c.sch.Validate(fields)
			if err != nil {
				return err
			}
			doc = &domain.Document{
				ID:           uuid.New(),
				CreationTime: now,
				UpdatedAt:    now,
				UserID:       caller.ID,
				Fields:       full,
			}
			if err := c.store.Insert(ctx, c.table, doc); err != nil {
				return fmt.Errorf("insert %s: %w", c.table, err)
			}
			stored = doc
			return nil
		case err != nil:
			return fmt.Errorf("get %s: %w", c.table, err)
		}

		if err := checkConflict(doc, expected, fields); err != nil {
			return err
		}

		merged := mergeFields(doc.Fields, clean)
		orphans = schema.OrphanedRefs(c.sch, doc.Fields, merged)

		doc.Fields = merged
		doc.DeletedAt = nil
		doc.UpdatedAt = nextUpdatedAt(now, doc.UpdatedAt)
		if err := c.store.Update(ctx, c.table, doc); err != nil {
			return fmt.Errorf("update %s: %w", c.table, err)
		}
		stored = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.jan.deleteRefs(ctx, orphans)
	return stored, nil
}
