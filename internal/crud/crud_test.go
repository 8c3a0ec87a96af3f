package crud

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/adapter/memstore"
	"github.com/forgekit/forge-backend/internal/domain"
	"github.com/forgekit/forge-backend/internal/schema"
	"github.com/forgekit/forge-backend/pkg/ctxutil"
)

type env struct {
	store   *memstore.Store
	blobs   *memstore.Blobs
	limits  *memstore.Limits
	authors *memstore.Authors
	orgs    *memstore.Orgs
	now     time.Time
}

func newEnv() *env {
	return &env{
		store:   memstore.New(),
		blobs:   &memstore.Blobs{},
		limits:  memstore.NewLimits(),
		authors: &memstore.Authors{Profiles: map[uuid.UUID]domain.Author{}},
		orgs:    memstore.NewOrgs(),
		now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (e *env) deps() Deps {
	return Deps{
		Store:   e.store,
		Tx:      e.store,
		Blobs:   e.blobs,
		Authors: e.authors,
		Limits:  e.limits,
		Orgs:    e.orgs,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     func() time.Time { return e.now },
	}
}

func authed(id uuid.UUID) context.Context {
	return ctxutil.WithUserID(context.Background(), id)
}

func postSchema() *schema.Schema {
	return &schema.Schema{
		Table:       "post",
		SearchField: "title",
		Fields: []schema.Field{
			{Name: "title", Kind: schema.KindString},
			{Name: "body", Kind: schema.KindString, Optional: true},
			{Name: "published", Kind: schema.KindBool, Default: false},
			{Name: "cover", Kind: schema.KindFile, Optional: true},
			{Name: "attachments", Kind: schema.KindArray, Optional: true, Elem: &schema.Field{Kind: schema.KindFile}},
		},
	}
}

func TestCrud_Create(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())
	user := uuid.New()

	id, err := c.Create(authed(user), map[string]any{"title": "hello"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	doc, err := e.store.Get(context.Background(), "post", id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.UserID != user {
		t.Errorf("expected owner %s, got %s", user, doc.UserID)
	}
	if doc.Fields["published"] != false {
		t.Errorf("expected default published=false, got %v", doc.Fields["published"])
	}
	if !doc.UpdatedAt.Equal(e.now) {
		t.Errorf("expected updatedAt %s, got %s", e.now, doc.UpdatedAt)
	}
}

func TestCrud_Create_Unauthenticated(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())

	_, err := c.Create(context.Background(), map[string]any{"title": "x"})
	if !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected NOT_AUTHENTICATED, got %v", err)
	}
}

func TestCrud_Create_RateLimited(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{MaxWritesPerWindow: 2, RateWindow: time.Minute}, e.deps())
	ctx := authed(uuid.New())

	for i := 0; i < 2; i++ {
		if _, err := c.Create(ctx, map[string]any{"title": "ok"}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	_, err := c.Create(ctx, map[string]any{"title": "too many"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}

	// the counter resets once the window has elapsed
	e.now = e.now.Add(time.Minute)
	if _, err := c.Create(ctx, map[string]any{"title": "fresh window"}); err != nil {
		t.Fatalf("create after window reset: %v", err)
	}
}

func TestCrud_Read(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())
	owner := uuid.New()
	stranger := uuid.New()
	e.authors.Profiles[owner] = domain.Author{ID: owner, Name: "alice"}

	id, err := c.Create(authed(owner), map[string]any{"title": "mine"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("enriched", func(t *testing.T) {
		got, err := c.Read(authed(owner), id, ReadOptions{})
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got == nil {
			t.Fatal("expected document")
		}
		if !got.Own {
			t.Error("expected own=true for the owner")
		}
		if got.Author == nil || got.Author.Name != "alice" {
			t.Errorf("expected author alice, got %+v", got.Author)
		}
	})

	t.Run("own mismatch yields nil", func(t *testing.T) {
		got, err := c.Read(authed(stranger), id, ReadOptions{Own: true})
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got != nil {
			t.Fatal("expected nil for foreign document with own=true")
		}
	})

	t.Run("anonymous with own yields nil", func(t *testing.T) {
		got, err := c.Read(context.Background(), id, ReadOptions{Own: true})
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got != nil {
			t.Fatal("expected nil for anonymous own read")
		}
	})

	t.Run("where filter", func(t *testing.T) {
		got, err := c.Read(authed(owner), id, ReadOptions{Where: &domain.Where{Eq: map[string]any{"title": "other"}}})
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got != nil {
			t.Fatal("expected nil for non-matching where")
		}
	})

	t.Run("absent yields nil", func(t *testing.T) {
		got, err := c.Read(authed(owner), uuid.New(), ReadOptions{})
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got != nil {
			t.Fatal("expected nil for unknown id")
		}
	})
}

func TestCrud_Read_SoftDeleted(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())
	ctx := authed(uuid.New())

	id, _ := c.Create(ctx, map[string]any{"title": "gone soon"})
	if _, err := c.Rm(ctx, id); err != nil {
		t.Fatalf("rm: %v", err)
	}

	got, err := c.Read(ctx, id, ReadOptions{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for soft-deleted document")
	}
}

func TestCrud_Update(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())
	owner := uuid.New()
	ctx := authed(owner)

	id, _ := c.Create(ctx, map[string]any{"title": "v1", "body": "text"})
	created := e.now

	e.now = e.now.Add(time.Hour)
	updated, err := c.Update(ctx, id, map[string]any{"title": "v2"}, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Fields["title"] != "v2" {
		t.Errorf("expected title v2, got %v", updated.Fields["title"])
	}
	if updated.Fields["body"] != "text" {
		t.Errorf("partial update must keep unspecified fields, got %v", updated.Fields["body"])
	}
	if !updated.UpdatedAt.After(created) {
		t.Error("expected updatedAt to advance")
	}
}

func TestCrud_Update_NotOwner(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())

	id, _ := c.Create(authed(uuid.New()), map[string]any{"title": "x"})

	_, err := c.Update(authed(uuid.New()), id, map[string]any{"title": "y"}, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign update must read as NOT_FOUND, got %v", err)
	}
}

func TestCrud_Update_Conflict(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())
	ctx := authed(uuid.New())

	id, _ := c.Create(ctx, map[string]any{"title": "v1"})
	stale := e.now.Add(-time.Second)

	_, err := c.Update(ctx, id, map[string]any{"title": "v2"}, &stale)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}

	var derr *domain.Error
	if !errors.As(err, &derr) {
		t.Fatalf("expected *domain.Error, got %T", err)
	}
	if derr.Data["current"] == nil || derr.Data["incoming"] == nil {
		t.Errorf("conflict payload must carry current and incoming, got %v", derr.Data)
	}

	// a matching token proceeds
	token := e.now
	if _, err := c.Update(ctx, id, map[string]any{"title": "v2"}, &token); err != nil {
		t.Fatalf("update with matching token: %v", err)
	}
}

func TestCrud_Update_OrphanedFileCleanup(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())
	ctx := authed(uuid.New())

	id, _ := c.Create(ctx, map[string]any{"title": "x", "cover": "blob-1"})

	if _, err := c.Update(ctx, id, map[string]any{"cover": "blob-2"}, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(e.blobs.Deleted) != 1 || e.blobs.Deleted[0] != "blob-1" {
		t.Fatalf("expected blob-1 cleanup, got %v", e.blobs.Deleted)
	}
}

func TestCrud_Update_BlobCleanupFailureDoesNotFail(t *testing.T) {
	e := newEnv()
	e.blobs.Fail = errors.New("s3 down")
	c := New(postSchema(), Options{}, e.deps())
	ctx := authed(uuid.New())

	id, _ := c.Create(ctx, map[string]any{"title": "x", "cover": "blob-1"})

	updated, err := c.Update(ctx, id, map[string]any{"cover": nil}, nil)
	if err != nil {
		t.Fatalf("blob failure must not fail the write: %v", err)
	}
	if _, ok := updated.Fields["cover"]; ok {
		t.Error("expected cover cleared")
	}
}

func TestCrud_Rm(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())
	ctx := authed(uuid.New())

	id, _ := c.Create(ctx, map[string]any{"title": "x", "cover": "blob-1", "attachments": []any{"blob-2"}})

	removed, err := c.Rm(ctx, id)
	if err != nil {
		t.Fatalf("rm: %v", err)
	}
	if removed == nil || !removed.Deleted() {
		t.Fatal("expected soft-deleted document returned")
	}

	// the row survives
	if _, err := e.store.Get(context.Background(), "post", id); err != nil {
		t.Fatalf("soft delete must keep the row: %v", err)
	}

	// all blob references scheduled for cleanup
	if len(e.blobs.Deleted) != 2 {
		t.Fatalf("expected 2 blob cleanups, got %v", e.blobs.Deleted)
	}

	// idempotent
	again, err := c.Rm(ctx, id)
	if err != nil {
		t.Fatalf("second rm: %v", err)
	}
	if again != nil {
		t.Fatal("rm of deleted document must return nil")
	}

	// absent id is a no-op too
	if got, err := c.Rm(ctx, uuid.New()); err != nil || got != nil {
		t.Fatalf("rm of unknown id: got %v, %v", got, err)
	}
}

func TestCrud_Rm_Cascade(t *testing.T) {
	e := newEnv()
	chat := New(postSchema(), Options{Cascades: []Cascade{{Table: "message", ParentField: "chatId"}}}, e.deps())
	ctx := authed(uuid.New())

	parentID, _ := chat.Create(ctx, map[string]any{"title": "room"})
	for i := 0; i < 3; i++ {
		doc := &domain.Document{ID: uuid.New(), UserID: uuid.New(), Fields: map[string]any{"chatId": parentID.String()}}
		if err := e.store.Insert(context.Background(), "message", doc); err != nil {
			t.Fatalf("insert child: %v", err)
		}
	}

	if _, err := chat.Rm(ctx, parentID); err != nil {
		t.Fatalf("rm: %v", err)
	}

	left, _ := e.store.Find(context.Background(), "message", domain.Query{IncludeDeleted: true})
	if len(left) != 0 {
		t.Fatalf("cascade must hard-delete children, %d left", len(left))
	}
}

func TestCrud_Restore(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())
	ctx := authed(uuid.New())

	id, _ := c.Create(ctx, map[string]any{"title": "x"})
	if _, err := c.Rm(ctx, id); err != nil {
		t.Fatalf("rm: %v", err)
	}

	restored, err := c.Restore(ctx, id)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Deleted() {
		t.Fatal("expected deletedAt cleared")
	}

	// restoring again is a no-op
	if _, err := c.Restore(ctx, id); err != nil {
		t.Fatalf("restore of live document: %v", err)
	}

	_, err = c.Restore(ctx, uuid.New())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown id, got %v", err)
	}
}

func TestCrud_Bulk(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())
	owner := uuid.New()
	ctx := authed(owner)

	a, _ := c.Create(ctx, map[string]any{"title": "a"})
	b, _ := c.Create(ctx, map[string]any{"title": "b"})
	foreign, _ := c.Create(authed(uuid.New()), map[string]any{"title": "not yours"})

	t.Run("bulkUpdate reports per item", func(t *testing.T) {
		res, err := c.BulkUpdate(ctx, []uuid.UUID{a, b, foreign}, map[string]any{"published": true})
		if err != nil {
			t.Fatalf("bulkUpdate: %v", err)
		}
		if res.Succeeded != 2 {
			t.Errorf("expected 2 succeeded, got %d", res.Succeeded)
		}
		if len(res.Failed) != 1 || res.Failed[0].ID != foreign || res.Failed[0].Code != domain.CodeNotFound {
			t.Errorf("expected foreign id to fail with NOT_FOUND, got %+v", res.Failed)
		}
	})

	t.Run("empty ids is a no-op", func(t *testing.T) {
		res, err := c.BulkRm(ctx, nil)
		if err != nil {
			t.Fatalf("bulkRm: %v", err)
		}
		if res.Succeeded != 0 || len(res.Failed) != 0 {
			t.Errorf("expected zero result, got %+v", res)
		}
	})

	t.Run("bulkRm", func(t *testing.T) {
		res, err := c.BulkRm(ctx, []uuid.UUID{a, b})
		if err != nil {
			t.Fatalf("bulkRm: %v", err)
		}
		if res.Succeeded != 2 {
			t.Errorf("expected 2 succeeded, got %d", res.Succeeded)
		}
	})
}

func TestCrud_List(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())
	ctx := authed(uuid.New())

	for i := 0; i < 5; i++ {
		e.now = e.now.Add(time.Second)
		if _, err := c.Create(ctx, map[string]any{"title": "post"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	first, err := c.List(ctx, ListRequest{PaginationOpts: domain.PaginationOpts{NumItems: 3}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Page) != 3 || first.IsDone {
		t.Fatalf("expected 3 items and more pages, got %d done=%v", len(first.Page), first.IsDone)
	}

	rest, err := c.List(ctx, ListRequest{PaginationOpts: domain.PaginationOpts{NumItems: 3, Cursor: first.ContinueCursor}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rest.Page) != 2 || !rest.IsDone {
		t.Fatalf("expected final 2 items, got %d done=%v", len(rest.Page), rest.IsDone)
	}
}

func TestCrud_List_ExcludesDeletedAndAppliesWhere(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())
	ctx := authed(uuid.New())

	kept, _ := c.Create(ctx, map[string]any{"title": "kept", "published": true})
	gone, _ := c.Create(ctx, map[string]any{"title": "gone", "published": true})
	_, _ = c.Create(ctx, map[string]any{"title": "draft"})
	if _, err := c.Rm(ctx, gone); err != nil {
		t.Fatalf("rm: %v", err)
	}

	page, err := c.List(ctx, ListRequest{Where: &domain.Where{Eq: map[string]any{"published": true}}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Page) != 1 || page.Page[0].ID != kept {
		t.Fatalf("expected only the kept document, got %d items", len(page.Page))
	}
}

func TestCrud_Search(t *testing.T) {
	e := newEnv()
	c := New(postSchema(), Options{}, e.deps())
	ctx := authed(uuid.New())

	_, _ = c.Create(ctx, map[string]any{"title": "Go Generics Deep Dive"})
	_, _ = c.Create(ctx, map[string]any{"title": "Cooking with Cast Iron"})

	got, err := c.Search(ctx, SearchRequest{Query: "generics"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Fields["title"] != "Go Generics Deep Dive" {
		t.Fatalf("expected one case-insensitive match, got %d", len(got))
	}
}

func TestCrud_Search_NoSearchField(t *testing.T) {
	e := newEnv()
	s := postSchema()
	s.SearchField = ""
	c := New(s, Options{}, e.deps())

	_, err := c.Search(authed(uuid.New()), SearchRequest{Query: "x"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected VALIDATION, got %v", err)
	}
}
