package crud

import (
	"context"
	"log/slog"

	"github.com/forgekit/forge-backend/internal/schema"
)

// janitor deletes orphaned blob references after a write has committed.
// Deletion is best-effort: failures are logged and never propagate into
// the primary operation. cmd/sweep-blobs picks up anything missed.
type janitor struct {
	blobs BlobStore
	log   *slog.Logger
}

// cleanup removes the before \ after blob references. Call only after
// the document write has committed.
func (j *janitor) cleanup(ctx context.Context, s *schema.Schema, before, after map[string]any) {
	j.deleteRefs(ctx, schema.OrphanedRefs(s, before, after))
}

// cleanupAll removes every blob the field map references; used when a
// document is soft-deleted.
func (j *janitor) cleanupAll(ctx context.Context, s *schema.Schema, fields map[string]any) {
	j.deleteRefs(ctx, schema.FileRefs(s, fields))
}

func (j *janitor) deleteRefs(ctx context.Context, ids []string) {
	if j.blobs == nil {
		return
	}
	for _, id := range ids {
		if err := j.blobs.Delete(ctx, id); err != nil {
			j.log.WarnContext(ctx, "orphaned blob cleanup failed",
				slog.String("blob_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}
