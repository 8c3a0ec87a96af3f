package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Document is the generic persisted unit of every registered table.
// System columns live on the struct; business fields validated by the
// table's schema live in Fields.
type Document struct {
	ID           uuid.UUID      `json:"_id"`
	CreationTime time.Time      `json:"_creationTime"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	UserID       uuid.UUID      `json:"userId"`
	OrgID        *uuid.UUID     `json:"orgId,omitempty"`
	DeletedAt    *time.Time     `json:"deletedAt,omitempty"`
	Editors      []uuid.UUID    `json:"editors,omitempty"`
	Fields       map[string]any `json:"fields"`
}

// Deleted reports whether the document is soft-deleted.
func (d *Document) Deleted() bool {
	return d.DeletedAt != nil
}

// HasEditor reports whether the user is on the editor list.
func (d *Document) HasEditor(userID uuid.UUID) bool {
	return slices.Contains(d.Editors, userID)
}

// Clone returns a deep copy safe to mutate independently.
func (d *Document) Clone() *Document {
	cp := *d
	if d.OrgID != nil {
		orgID := *d.OrgID
		cp.OrgID = &orgID
	}
	if d.DeletedAt != nil {
		deletedAt := *d.DeletedAt
		cp.DeletedAt = &deletedAt
	}
	cp.Editors = slices.Clone(d.Editors)
	cp.Fields = maps.Clone(d.Fields)
	return &cp
}

// Author is the public profile attached to enriched documents.
type Author struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
}

// EnrichedDocument is a document annotated for the client: the author's
// public profile and whether the caller owns it.
type EnrichedDocument struct {
	Document
	Author *Author `json:"author,omitempty"`
	Own    bool    `json:"own"`
}
