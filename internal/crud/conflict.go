package crud

import (
	"time"

	"github.com/forgekit/forge-backend/internal/domain"
)

// checkConflict is the shared optimistic-concurrency gate. A nil
// expected token always proceeds; a stale one yields CONFLICT carrying
// both the current server document and the caller's attempted values.
// Callers must invoke this inside the same transaction that performs the
// write, so no other writer can interleave between check and commit.
func checkConflict(current *domain.Document, expected *time.Time, incoming map[string]any) error {
	if expected == nil || expected.Equal(current.UpdatedAt) {
		return nil
	}
	return domain.Conflict(current, incoming)
}

// nextUpdatedAt keeps updatedAt monotonically non-decreasing even under
// clock skew or sub-resolution successive writes, so the token never
// moves backwards and never collides with the previous value.
func nextUpdatedAt(now, current time.Time) time.Time {
	if now.After(current) {
		return now
	}
	return current.Add(time.Microsecond)
}
