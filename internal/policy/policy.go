// Package policy is the single authorization step shared by every crud
// factory variant. Each handler builds an Input describing the caller,
// the operation, and the target, and calls Allow; no handler carries its
// own branching over roles or editor lists.
package policy

import (
	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
)

// Op is the operation class being authorized.
type Op int

const (
	OpRead Op = iota
	OpCreate
	OpUpdate
	OpDelete
	OpRestore
	OpManageEditors
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpRestore:
		return "restore"
	case OpManageEditors:
		return "manageEditors"
	}
	return "unknown"
}

// Caller is the resolved request identity. ID is uuid.Nil when
// Authenticated is false.
type Caller struct {
	ID            uuid.UUID
	Authenticated bool
}

// Anonymous is the unauthenticated caller.
var Anonymous = Caller{}

// Input is everything a policy decision may consider. Org and Member are
// nil for owner-scoped tables; Member is the caller's membership row in
// Org and is nil when the caller has none.
type Input struct {
	Caller Caller
	Op     Op
	Doc    *domain.Document
	Org    *domain.Organization
	Member *domain.OrgMember
}

// IsOrgAdmin reports whether the input caller is admin-equivalent in the
// input org: the org owner always is, an explicit member row only when
// flagged.
func (in Input) IsOrgAdmin() bool {
	if in.Org == nil {
		return false
	}
	if in.Org.IsOwner(in.Caller.ID) {
		return true
	}
	return in.Member != nil && in.Member.IsAdmin
}

// Allow evaluates the policy for the input. nil means the operation may
// proceed; otherwise the returned error carries the client-visible code.
func Allow(in Input) error {
	if !in.Caller.Authenticated {
		return domain.ErrNotAuthenticated
	}

	switch in.Op {
	case OpManageEditors:
		// Editor-list management is an org-admin operation.
		if !in.IsOrgAdmin() {
			return domain.ErrInsufficientOrgRole
		}
		return nil

	case OpCreate:
		if in.Org != nil && !in.IsOrgAdmin() && in.Member == nil {
			return domain.ErrNotOrgMember
		}
		return nil

	case OpRead:
		if in.Org != nil {
			// Org documents are visible org-wide, but only to members.
			// Doc is nil for collection reads (list, search).
			if in.IsOrgAdmin() || in.Member != nil {
				return nil
			}
			return domain.ErrNotOrgMember
		}
	}

	if in.Doc == nil {
		return domain.ErrNotFound
	}

	if in.Org == nil {
		// Owner-scoped: access is gated solely by the userId match.
		if in.Doc.UserID != in.Caller.ID {
			return domain.ErrNotFound
		}
		return nil
	}

	// Org-scoped write: owner, admin, creator, or listed editor.
	if in.IsOrgAdmin() || in.Doc.UserID == in.Caller.ID || in.Doc.HasEditor(in.Caller.ID) {
		return nil
	}
	return domain.ErrForbidden
}
