package domain

import (
	"github.com/google/uuid"
)

// Query is the store-level read filter shared by Find/Page/Search.
// Caller resolves the Own condition of Where; soft-deleted documents are
// excluded unless IncludeDeleted is set.
type Query struct {
	Where          *Where
	Caller         uuid.UUID
	OrgID          *uuid.UUID
	IncludeDeleted bool
}

// MatchesDoc reports whether a document passes the query, mirroring the
// SQL the postgres adapter generates. Used by the in-memory store and by
// predicate-level tests.
func (q Query) MatchesDoc(doc *Document) bool {
	if !q.IncludeDeleted && doc.Deleted() {
		return false
	}
	if q.OrgID != nil {
		if doc.OrgID == nil || *doc.OrgID != *q.OrgID {
			return false
		}
	}
	return q.Where.Matches(doc, q.Caller)
}
