package crud

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
)

// enrich attaches author profiles and the Own flag to a batch of
// documents. Repeated authors within the batch resolve through a single
// GetByIDs call; a list of N documents by one author performs one fetch.
func enrich(ctx context.Context, authors AuthorSource, docs []domain.Document, caller uuid.UUID) ([]domain.EnrichedDocument, error) {
	out := make([]domain.EnrichedDocument, 0, len(docs))
	if len(docs) == 0 {
		return out, nil
	}

	var resolved map[uuid.UUID]domain.Author
	if authors != nil {
		seen := make(map[uuid.UUID]struct{}, len(docs))
		ids := make([]uuid.UUID, 0, len(docs))
		for i := range docs {
			id := docs[i].UserID
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}

		var err error
		resolved, err = authors.GetByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve authors: %w", err)
		}
	}

	for i := range docs {
		ed := domain.EnrichedDocument{
			Document: docs[i],
			Own:      caller != uuid.Nil && docs[i].UserID == caller,
		}
		if a, ok := resolved[docs[i].UserID]; ok {
			author := a
			ed.Author = &author
		}
		out = append(out, ed)
	}
	return out, nil
}

func enrichOne(ctx context.Context, authors AuthorSource, doc *domain.Document, caller uuid.UUID) (*domain.EnrichedDocument, error) {
	batch, err := enrich(ctx, authors, []domain.Document{*doc}, caller)
	if err != nil {
		return nil, err
	}
	return &batch[0], nil
}
