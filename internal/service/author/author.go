// Package author resolves public author profiles for document
// enrichment. Lookups go through a shared DataLoader so that the
// per-document author fan-out of a list response collapses into a
// single batched repository call.
package author

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader/v7"

	"github.com/forgekit/forge-backend/internal/domain"
)

const (
	maxBatch = 100
	wait     = 2 * time.Millisecond
)

type userRepo interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Author, error)
}

// Service implements the author source consumed by the handler
// factories. Unknown ids are absent from result maps, never errors.
type Service struct {
	loader *dataloader.Loader[uuid.UUID, *domain.Author]
}

// New creates an author service backed by the given repository.
func New(repo userRepo) *Service {
	return &Service{
		loader: dataloader.NewBatchedLoader(
			newAuthorsBatchFn(repo),
			dataloader.WithWait[uuid.UUID, *domain.Author](wait),
			dataloader.WithBatchCapacity[uuid.UUID, *domain.Author](maxBatch),
			dataloader.WithClearCacheOnBatch[uuid.UUID, *domain.Author](),
		),
	}
}

func newAuthorsBatchFn(repo userRepo) dataloader.BatchFunc[uuid.UUID, *domain.Author] {
	return func(ctx context.Context, keys []uuid.UUID) []*dataloader.Result[*domain.Author] {
		authors, err := repo.GetByIDs(ctx, keys)
		if err != nil {
			return errorResults[*domain.Author](len(keys), err)
		}

		results := make([]*dataloader.Result[*domain.Author], len(keys))
		for i, key := range keys {
			if a, ok := authors[key]; ok {
				a := a
				results[i] = &dataloader.Result[*domain.Author]{Data: &a}
			} else {
				results[i] = &dataloader.Result[*domain.Author]{Data: nil}
			}
		}
		return results
	}
}

// GetByIDs resolves the given author ids, batching concurrent callers
// into one repository query. Unknown ids are absent from the map.
func (s *Service) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Author, error) {
	out := make(map[uuid.UUID]domain.Author, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	thunks := make([]func() (*domain.Author, error), len(ids))
	for i, id := range ids {
		thunks[i] = s.loader.Load(ctx, id)
	}

	for i, thunk := range thunks {
		a, err := thunk()
		if err != nil {
			return nil, err
		}
		if a != nil {
			out[ids[i]] = *a
		}
	}
	return out, nil
}

func errorResults[V any](n int, err error) []*dataloader.Result[V] {
	results := make([]*dataloader.Result[V], n)
	for i := range results {
		results[i] = &dataloader.Result[V]{Error: err}
	}
	return results
}
