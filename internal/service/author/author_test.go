package author

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
)

type fakeRepo struct {
	mu      sync.Mutex
	authors map[uuid.UUID]domain.Author
	calls   int
	batches [][]uuid.UUID
	err     error
}

func (f *fakeRepo) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, ids)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[uuid.UUID]domain.Author, len(ids))
	for _, id := range ids {
		if a, ok := f.authors[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func TestService_GetByIDs(t *testing.T) {
	alice := domain.Author{ID: uuid.New(), Name: "alice"}
	bob := domain.Author{ID: uuid.New(), Name: "bob"}
	repo := &fakeRepo{authors: map[uuid.UUID]domain.Author{alice.ID: alice, bob.ID: bob}}
	svc := New(repo)

	unknown := uuid.New()
	got, err := svc.GetByIDs(context.Background(), []uuid.UUID{alice.ID, unknown, bob.ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 authors, got %d", len(got))
	}
	if got[alice.ID].Name != "alice" || got[bob.ID].Name != "bob" {
		t.Fatalf("author mismatch: %+v", got)
	}
	if _, ok := got[unknown]; ok {
		t.Fatal("unknown id must be absent from the result map")
	}
}

func TestService_GetByIDs_BatchesIntoOneCall(t *testing.T) {
	a := domain.Author{ID: uuid.New(), Name: "a"}
	b := domain.Author{ID: uuid.New(), Name: "b"}
	c := domain.Author{ID: uuid.New(), Name: "c"}
	repo := &fakeRepo{authors: map[uuid.UUID]domain.Author{a.ID: a, b.ID: b, c.ID: c}}
	svc := New(repo)

	if _, err := svc.GetByIDs(context.Background(), []uuid.UUID{a.ID, b.ID, c.ID}); err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.calls != 1 {
		t.Fatalf("expected 1 repository call, got %d", repo.calls)
	}
	if len(repo.batches[0]) != 3 {
		t.Fatalf("expected a batch of 3 keys, got %v", repo.batches[0])
	}
}

func TestService_GetByIDs_Empty(t *testing.T) {
	repo := &fakeRepo{}
	svc := New(repo)

	got, err := svc.GetByIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
	if repo.calls != 0 {
		t.Fatalf("expected no repository calls, got %d", repo.calls)
	}
}

func TestService_GetByIDs_RepoError(t *testing.T) {
	repoErr := errors.New("connection lost")
	repo := &fakeRepo{err: repoErr}
	svc := New(repo)

	_, err := svc.GetByIDs(context.Background(), []uuid.UUID{uuid.New()})
	if !errors.Is(err, repoErr) {
		t.Fatalf("expected repo error, got %v", err)
	}
}
