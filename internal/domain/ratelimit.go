package domain

import (
	"time"

	"github.com/google/uuid"
)

// RateLimitWindow is a per-user-per-table write counter. A request after
// the window has elapsed resets the counter instead of rejecting.
type RateLimitWindow struct {
	UserID      uuid.UUID
	Table       string
	Count       int
	WindowStart time.Time
}

// Expired reports whether the window has fully elapsed at the given time.
func (w *RateLimitWindow) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(w.WindowStart) >= window
}
