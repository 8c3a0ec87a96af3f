package document_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgekit/forge-backend/internal/adapter/postgres/document"
	"github.com/forgekit/forge-backend/internal/adapter/postgres/testhelper"
	"github.com/forgekit/forge-backend/internal/domain"
)

func newRepo(t *testing.T) (*document.Repo, *pgxpool.Pool) {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	return document.New(pool), pool
}

// testTable returns a unique logical table name so parallel tests on the
// shared database never see each other's rows.
func testTable() string {
	return "t_" + uuid.New().String()[:8]
}

func makeDoc(userID uuid.UUID, fields map[string]any) *domain.Document {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Document{
		ID:           uuid.New(),
		CreationTime: now,
		UpdatedAt:    now,
		UserID:       userID,
		Fields:       fields,
	}
}

func TestRepo_InsertAndGet(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	tbl := testTable()

	user := testhelper.SeedUser(t, pool)
	doc := makeDoc(user.ID, map[string]any{"title": "hello", "rating": 4.5, "published": true})

	if err := repo.Insert(ctx, tbl, doc); err != nil {
		t.Fatalf("Insert: unexpected error: %v", err)
	}

	got, err := repo.Get(ctx, tbl, doc.ID)
	if err != nil {
		t.Fatalf("Get: unexpected error: %v", err)
	}
	if got.UserID != user.ID {
		t.Errorf("UserID mismatch: got %s, want %s", got.UserID, user.ID)
	}
	if got.Fields["title"] != "hello" {
		t.Errorf("title mismatch: got %v", got.Fields["title"])
	}
	if got.Fields["rating"] != 4.5 {
		t.Errorf("rating mismatch: got %v", got.Fields["rating"])
	}
	if !got.CreationTime.Equal(doc.CreationTime) {
		t.Errorf("creation time mismatch: got %s, want %s", got.CreationTime, doc.CreationTime)
	}

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.Get(ctx, tbl, uuid.New())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("same id, other table", func(t *testing.T) {
		_, err := repo.Get(ctx, testTable(), doc.ID)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRepo_GetByField(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	tbl := testTable()

	user := testhelper.SeedUser(t, pool)
	doc := makeDoc(user.ID, map[string]any{"tmdbId": "tt-42", "title": "x"})
	if err := repo.Insert(ctx, tbl, doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := repo.GetByField(ctx, tbl, "tmdbId", "tt-42")
	if err != nil {
		t.Fatalf("GetByField: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("expected %s, got %s", doc.ID, got.ID)
	}

	if _, err := repo.GetByField(ctx, tbl, "tmdbId", "absent"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepo_GetByOwner(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	tbl := testTable()

	user := testhelper.SeedUser(t, pool)
	doc := makeDoc(user.ID, map[string]any{"displayName": "alice"})
	if err := repo.Insert(ctx, tbl, doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := repo.GetByOwner(ctx, tbl, user.ID)
	if err != nil {
		t.Fatalf("GetByOwner: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("expected %s, got %s", doc.ID, got.ID)
	}

	if _, err := repo.GetByOwner(ctx, tbl, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepo_Update(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	tbl := testTable()

	user := testhelper.SeedUser(t, pool)
	doc := makeDoc(user.ID, map[string]any{"title": "v1"})
	if err := repo.Insert(ctx, tbl, doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	editor := uuid.New()
	doc.Fields = map[string]any{"title": "v2"}
	doc.Editors = []uuid.UUID{editor}
	doc.UpdatedAt = doc.UpdatedAt.Add(time.Minute)
	if err := repo.Update(ctx, tbl, doc); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := repo.Get(ctx, tbl, doc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Fields["title"] != "v2" {
		t.Errorf("title mismatch: got %v", got.Fields["title"])
	}
	if len(got.Editors) != 1 || got.Editors[0] != editor {
		t.Errorf("editors mismatch: got %v", got.Editors)
	}
	if !got.UpdatedAt.Equal(doc.UpdatedAt) {
		t.Errorf("updatedAt mismatch: got %s, want %s", got.UpdatedAt, doc.UpdatedAt)
	}

	t.Run("unknown id", func(t *testing.T) {
		ghost := makeDoc(user.ID, map[string]any{})
		if err := repo.Update(ctx, tbl, ghost); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRepo_SoftDeleteRoundTrip(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	tbl := testTable()

	user := testhelper.SeedUser(t, pool)
	doc := makeDoc(user.ID, map[string]any{"title": "x"})
	if err := repo.Insert(ctx, tbl, doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	deletedAt := time.Now().UTC().Truncate(time.Microsecond)
	doc.DeletedAt = &deletedAt
	if err := repo.Update(ctx, tbl, doc); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Get still returns the row
	got, err := repo.Get(ctx, tbl, doc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.DeletedAt == nil {
		t.Fatal("expected deletedAt set")
	}

	// Find excludes it unless asked
	docs, err := repo.Find(ctx, tbl, domain.Query{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no live documents, got %d", len(docs))
	}
	docs, err = repo.Find(ctx, tbl, domain.Query{IncludeDeleted: true})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document with IncludeDeleted, got %d", len(docs))
	}
}

func TestRepo_DeleteMatching(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	tbl := testTable()

	user := testhelper.SeedUser(t, pool)
	parent := uuid.New().String()
	for i := 0; i < 3; i++ {
		if err := repo.Insert(ctx, tbl, makeDoc(user.ID, map[string]any{"chatId": parent})); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := repo.Insert(ctx, tbl, makeDoc(user.ID, map[string]any{"chatId": uuid.New().String()})); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	n, err := repo.DeleteMatching(ctx, tbl, "chatId", parent)
	if err != nil {
		t.Fatalf("DeleteMatching: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}

	left, _ := repo.Find(ctx, tbl, domain.Query{IncludeDeleted: true})
	if len(left) != 1 {
		t.Fatalf("expected 1 row left, got %d", len(left))
	}
}

func TestRepo_DeleteStale(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	tbl := testTable()

	user := testhelper.SeedUser(t, pool)

	stale := makeDoc(user.ID, map[string]any{"tmdbId": "old"})
	stale.UpdatedAt = stale.UpdatedAt.Add(-48 * time.Hour)
	if err := repo.Insert(ctx, tbl, stale); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := repo.Insert(ctx, tbl, makeDoc(user.ID, map[string]any{"tmdbId": "new"})); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	n, err := repo.DeleteStale(ctx, tbl, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
}

func TestRepo_FindWithWhere(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	tbl := testTable()

	alice := testhelper.SeedUser(t, pool)
	bob := testhelper.SeedUser(t, pool)

	mine := makeDoc(alice.ID, map[string]any{"category": "tech", "published": true})
	if err := repo.Insert(ctx, tbl, mine); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := repo.Insert(ctx, tbl, makeDoc(bob.ID, map[string]any{"category": "tech", "published": false})); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := repo.Insert(ctx, tbl, makeDoc(bob.ID, map[string]any{"category": "life", "published": true})); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	t.Run("equality is conjunctive", func(t *testing.T) {
		docs, err := repo.Find(ctx, tbl, domain.Query{
			Where: &domain.Where{Eq: map[string]any{"category": "tech", "published": true}},
		})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if len(docs) != 1 || docs[0].ID != mine.ID {
			t.Fatalf("expected exactly the matching document, got %d", len(docs))
		}
	})

	t.Run("or unions branches", func(t *testing.T) {
		docs, err := repo.Find(ctx, tbl, domain.Query{
			Where: &domain.Where{Or: []domain.Where{
				{Eq: map[string]any{"category": "life"}},
				{Eq: map[string]any{"published": false}},
			}},
		})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if len(docs) != 2 {
			t.Fatalf("expected 2 documents, got %d", len(docs))
		}
	})

	t.Run("own restricts to the caller", func(t *testing.T) {
		docs, err := repo.Find(ctx, tbl, domain.Query{
			Where:  &domain.Where{Own: true},
			Caller: alice.ID,
		})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if len(docs) != 1 || docs[0].UserID != alice.ID {
			t.Fatalf("expected only alice's documents, got %d", len(docs))
		}
	})

	t.Run("own with anonymous caller matches nothing", func(t *testing.T) {
		docs, err := repo.Find(ctx, tbl, domain.Query{Where: &domain.Where{Own: true}})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if len(docs) != 0 {
			t.Fatalf("expected no documents, got %d", len(docs))
		}
	})
}

func TestRepo_Page(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	tbl := testTable()

	user := testhelper.SeedUser(t, pool)
	base := time.Now().UTC().Truncate(time.Microsecond)
	ids := make([]uuid.UUID, 0, 5)
	for i := 0; i < 5; i++ {
		doc := makeDoc(user.ID, map[string]any{"n": i})
		doc.CreationTime = base.Add(time.Duration(i) * time.Second)
		if err := repo.Insert(ctx, tbl, doc); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		ids = append(ids, doc.ID)
	}

	first, err := repo.Page(ctx, tbl, domain.Query{}, domain.PaginationOpts{NumItems: 2})
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(first.Page) != 2 || first.IsDone {
		t.Fatalf("expected 2 items and more pages, got %d done=%v", len(first.Page), first.IsDone)
	}
	if first.Page[0].ID != ids[0] || first.Page[1].ID != ids[1] {
		t.Fatal("expected creation-time order")
	}

	second, err := repo.Page(ctx, tbl, domain.Query{}, domain.PaginationOpts{NumItems: 2, Cursor: first.ContinueCursor})
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(second.Page) != 2 || second.Page[0].ID != ids[2] {
		t.Fatalf("expected the next slice, got %d", len(second.Page))
	}

	last, err := repo.Page(ctx, tbl, domain.Query{}, domain.PaginationOpts{NumItems: 2, Cursor: second.ContinueCursor})
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(last.Page) != 1 || !last.IsDone {
		t.Fatalf("expected the final item, got %d done=%v", len(last.Page), last.IsDone)
	}

	t.Run("malformed cursor", func(t *testing.T) {
		_, err := repo.Page(ctx, tbl, domain.Query{}, domain.PaginationOpts{NumItems: 2, Cursor: "???"})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestRepo_Search(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	tbl := testTable()

	user := testhelper.SeedUser(t, pool)
	match := makeDoc(user.ID, map[string]any{"title": "Go Concurrency Patterns"})
	if err := repo.Insert(ctx, tbl, match); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := repo.Insert(ctx, tbl, makeDoc(user.ID, map[string]any{"title": "Cooking 101"})); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	docs, err := repo.Search(ctx, tbl, "title", "concurrency", domain.Query{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != match.ID {
		t.Fatalf("expected one case-insensitive match, got %d", len(docs))
	}

	t.Run("percent in query is literal", func(t *testing.T) {
		docs, err := repo.Search(ctx, tbl, "title", "100%", domain.Query{})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(docs) != 0 {
			t.Fatalf("expected no match for literal percent, got %d", len(docs))
		}
	})
}
