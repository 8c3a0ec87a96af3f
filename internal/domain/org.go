package domain

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the scope entity for org-scoped tables. Slug is unique
// across organizations and may be changed in place (see IsSlugAvailable).
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	UserID    uuid.UUID `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsOwner reports whether the given user owns the organization. The
// owner is treated as admin-equivalent even without a member row.
func (o *Organization) IsOwner(userID uuid.UUID) bool {
	return o.UserID == userID
}

// OrgMember links a user to an organization.
type OrgMember struct {
	OrgID     uuid.UUID `json:"orgId"`
	UserID    uuid.UUID `json:"userId"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}
