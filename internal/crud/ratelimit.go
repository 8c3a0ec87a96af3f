package crud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
)

// takeWriteSlot advances the caller's (user, table) write window. A
// request after window expiry resets the counter instead of rejecting;
// inside the window, exactly max writes are admitted. Must run inside
// the create transaction so the counter advances atomically with the
// admitted write.
func takeWriteSlot(ctx context.Context, limits RateLimitStore, userID uuid.UUID, table string, max int, window time.Duration, now time.Time) error {
	if limits == nil || max <= 0 {
		return nil
	}

	w, err := limits.Get(ctx, userID, table)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		w = &domain.RateLimitWindow{UserID: userID, Table: table, WindowStart: now}
	case err != nil:
		return fmt.Errorf("rate limit window: %w", err)
	}

	if w.Expired(now, window) {
		w.Count = 0
		w.WindowStart = now
	}
	if w.Count >= max {
		return domain.ErrRateLimited
	}
	w.Count++

	if err := limits.Put(ctx, *w); err != nil {
		return fmt.Errorf("advance rate limit window: %w", err)
	}
	return nil
}
