// Package sweeper removes blobs no document references anymore. The
// handler factories delete orphaned blobs best-effort after each write;
// this job catches the ones those deletions missed (crash between
// commit and cleanup, blob store downtime).
package sweeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forgekit/forge-backend/internal/domain"
	"github.com/forgekit/forge-backend/internal/schema"
)

// docFinder is the read-side slice of the document store the sweeper
// needs.
type docFinder interface {
	Find(ctx context.Context, table string, q domain.Query) ([]domain.Document, error)
}

// blobLister enumerates and deletes stored blobs.
type blobLister interface {
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// Sweeper scans every table's file fields and deletes unreferenced
// blobs.
type Sweeper struct {
	log     *slog.Logger
	store   docFinder
	blobs   blobLister
	schemas map[string]*schema.Schema
}

// New creates a Sweeper over the given table descriptors.
func New(logger *slog.Logger, store docFinder, blobs blobLister, schemas map[string]*schema.Schema) *Sweeper {
	return &Sweeper{
		log:     logger.With("service", "sweeper"),
		store:   store,
		blobs:   blobs,
		schemas: schemas,
	}
}

// Sweep deletes every blob not referenced by any document, soft-deleted
// documents included (they may be restored). Returns the number of
// blobs removed; individual delete failures are logged and skipped, to
// be retried on the next run.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	live, err := s.liveRefs(ctx)
	if err != nil {
		return 0, err
	}

	ids, err := s.blobs.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list blobs: %w", err)
	}

	removed := 0
	for _, id := range ids {
		if _, ok := live[id]; ok {
			continue
		}
		if err := s.blobs.Delete(ctx, id); err != nil {
			s.log.WarnContext(ctx, "orphan delete failed",
				slog.String("blob_id", id),
				slog.Any("error", err),
			)
			continue
		}
		removed++
	}

	s.log.InfoContext(ctx, "sweep completed",
		slog.Int("scanned", len(ids)),
		slog.Int("removed", removed),
		slog.Int("referenced", len(live)),
	)
	return removed, nil
}

// liveRefs collects every blob id referenced by any document of any
// table with file fields.
func (s *Sweeper) liveRefs(ctx context.Context) (map[string]struct{}, error) {
	live := make(map[string]struct{})
	for table, sch := range s.schemas {
		if len(sch.FileFields()) == 0 {
			continue
		}
		docs, err := s.store.Find(ctx, table, domain.Query{IncludeDeleted: true})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		for i := range docs {
			for _, id := range schema.FileRefs(sch, docs[i].Fields) {
				live[id] = struct{}{}
			}
		}
	}
	return live, nil
}
