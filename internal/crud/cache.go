package crud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
	"github.com/forgekit/forge-backend/internal/schema"
)

// CacheOptions configure a CacheCrud instance.
type CacheOptions struct {
	// KeyField is the external key field; it acts as a unique index, so
	// upserting an existing key overwrites instead of duplicating.
	KeyField string
	// TTL after which an entry stops being served; measured from
	// updatedAt.
	TTL time.Duration
}

// CacheResult is a cache read annotated with the hit flag.
type CacheResult struct {
	Document *domain.Document `json:"document"`
	CacheHit bool             `json:"cacheHit"`
}

// CacheCrud stores externally-keyed values with a TTL, e.g. third-party
// API responses. Entries are not owner-scoped: any authenticated caller
// shares the same cache. An in-process layer in front of the store
// absorbs repeated reads of hot keys between writes.
type CacheCrud struct {
	table string
	sch   *schema.Schema
	opts  CacheOptions
	store Store
	tx    TxManager
	local *gocache.Cache
	log   *slog.Logger
	now   func() time.Time
}

// NewCache builds the TTL-keyed handler set for a table.
func NewCache(s *schema.Schema, opts CacheOptions, deps Deps) *CacheCrud {
	local := gocache.New(opts.TTL, opts.TTL)
	if opts.TTL <= 0 {
		local = gocache.New(gocache.NoExpiration, time.Hour)
	}
	return &CacheCrud{
		table: s.Table,
		sch:   s,
		opts:  opts,
		store: deps.Store,
		tx:    deps.Tx,
		local: local,
		log:   deps.Logger.With("table", s.Table),
		now:   deps.clock(),
	}
}

func (c *CacheCrud) fresh(doc *domain.Document, now time.Time) bool {
	if c.opts.TTL <= 0 {
		return true
	}
	return now.Sub(doc.UpdatedAt) < c.opts.TTL
}

// Get returns the entry for the key with cacheHit set, or nil when the
// key is absent or the entry has expired; the two cases are
// indistinguishable to the caller.
func (c *CacheCrud) Get(ctx context.Context, key string) (*CacheResult, error) {
	now := c.now()

	if v, ok := c.local.Get(key); ok {
		doc := v.(*domain.Document)
		if c.fresh(doc, now) {
			return &CacheResult{Document: doc.Clone(), CacheHit: true}, nil
		}
		c.local.Delete(key)
	}

	doc, err := c.store.GetByField(ctx, c.table, c.opts.KeyField, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", c.table, err)
	}
	if !c.fresh(doc, now) {
		return nil, nil
	}

	c.local.SetDefault(key, doc.Clone())
	return &CacheResult{Document: doc, CacheHit: true}, nil
}

// Upsert writes the entry for the key, overwriting any existing row for
// the same key. Returns the stored document.
func (c *CacheCrud) Upsert(ctx context.Context, fields map[string]any) (*domain.Document, error) {
	caller := callerFromCtx(ctx)
	if !caller.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}

	clean, err := c.sch.Validate(fields)
	if err != nil {
		return nil, err
	}
	key, ok := clean[c.opts.KeyField].(string)
	if !ok || key == "" {
		return nil, domain.Validation(c.opts.KeyField, "required cache key")
	}

	var stored *domain.Document
	err = c.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := c.now()

		existing, err := c.store.GetByField(ctx, c.table, c.opts.KeyField, key)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			doc := &domain.Document{
				ID:           uuid.New(),
				CreationTime: now,
				UpdatedAt:    now,
				UserID:       caller.ID,
				Fields:       clean,
			}
			if err := c.store.Insert(ctx, c.table, doc); err != nil {
				return fmt.Errorf("cache insert %s: %w", c.table, err)
			}
			stored = doc
			return nil
		case err != nil:
			return fmt.Errorf("cache lookup %s: %w", c.table, err)
		}

		existing.Fields = clean
		existing.UpdatedAt = nextUpdatedAt(now, existing.UpdatedAt)
		if err := c.store.Update(ctx, c.table, existing); err != nil {
			return fmt.Errorf("cache update %s: %w", c.table, err)
		}
		stored = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.local.SetDefault(key, stored.Clone())
	return stored, nil
}

// All lists cache entries, excluding expired ones unless includeExpired
// is set.
func (c *CacheCrud) All(ctx context.Context, includeExpired bool) ([]domain.Document, error) {
	docs, err := c.store.Find(ctx, c.table, domain.Query{})
	if err != nil {
		return nil, fmt.Errorf("cache list %s: %w", c.table, err)
	}
	if includeExpired {
		return docs, nil
	}

	now := c.now()
	out := docs[:0]
	for i := range docs {
		if c.fresh(&docs[i], now) {
			out = append(out, docs[i])
		}
	}
	return out, nil
}

// Invalidate hard-deletes the entry for the key; a no-op when absent.
func (c *CacheCrud) Invalidate(ctx context.Context, key string) error {
	c.local.Delete(key)
	if _, err := c.store.DeleteMatching(ctx, c.table, c.opts.KeyField, key); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", c.table, err)
	}
	return nil
}

// Purge hard-deletes all expired entries and returns the count removed.
// cmd/purge-cache runs this on a schedule.
func (c *CacheCrud) Purge(ctx context.Context) (int64, error) {
	if c.opts.TTL <= 0 {
		return 0, nil
	}
	c.local.Flush()

	cutoff := c.now().Add(-c.opts.TTL)
	n, err := c.store.DeleteStale(ctx, c.table, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache purge %s: %w", c.table, err)
	}
	if n > 0 {
		c.log.InfoContext(ctx, "cache purged", slog.Int64("removed", n))
	}
	return n, nil
}
