// Package org manages organizations and their memberships. The service
// doubles as the org directory consumed by the org-scoped handler
// factory.
package org

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
)

// orgRepo defines the organization repository interface needed by the service.
type orgRepo interface {
	GetOrg(ctx context.Context, id uuid.UUID) (*domain.Organization, error)
	GetOrgBySlug(ctx context.Context, slug string) (*domain.Organization, error)
	Insert(ctx context.Context, o *domain.Organization) error
	Update(ctx context.Context, o *domain.Organization) error
	GetMember(ctx context.Context, orgID, userID uuid.UUID) (*domain.OrgMember, error)
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]domain.OrgMember, error)
	UpsertMember(ctx context.Context, m *domain.OrgMember) error
	DeleteMember(ctx context.Context, orgID, userID uuid.UUID) error
}

// txManager defines the transaction manager interface needed by the service.
type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements organization management.
type Service struct {
	log  *slog.Logger
	orgs orgRepo
	tx   txManager
	now  func() time.Time
}

// NewService creates a new organization service instance.
func NewService(logger *slog.Logger, orgs orgRepo, tx txManager) *Service {
	return &Service{
		log:  logger.With("service", "org"),
		orgs: orgs,
		tx:   tx,
		now:  time.Now,
	}
}

// CreateOrg creates an organization owned by ownerID. The slug must be
// unique; a taken slug yields domain.ErrAlreadyExists.
func (s *Service) CreateOrg(ctx context.Context, ownerID uuid.UUID, slug, name string) (*domain.Organization, error) {
	slug = normalizeSlug(slug)
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, domain.Validation("name", "must not be empty")
	}

	now := s.now().UTC()
	o := &domain.Organization{
		ID:        uuid.New(),
		Slug:      slug,
		Name:      name,
		UserID:    ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orgs.Insert(ctx, o); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, domain.Validation("slug", "already taken")
		}
		return nil, err
	}

	s.log.InfoContext(ctx, "organization created",
		slog.String("org_id", o.ID.String()),
		slog.String("slug", o.Slug),
	)
	return o, nil
}

// Rename changes an organization's name and/or slug. Only the owner or
// an admin may rename. A taken slug yields a validation error.
func (s *Service) Rename(ctx context.Context, callerID, orgID uuid.UUID, slug, name string) (*domain.Organization, error) {
	slug = normalizeSlug(slug)
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, domain.Validation("name", "must not be empty")
	}

	var out *domain.Organization
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.orgs.GetOrg(ctx, orgID)
		if err != nil {
			return err
		}
		if err := s.requireAdmin(ctx, o, callerID); err != nil {
			return err
		}

		if ok, err := s.slugAvailable(ctx, slug, orgID); err != nil {
			return err
		} else if !ok {
			return domain.Validation("slug", "already taken")
		}

		o.Slug = slug
		o.Name = name
		o.UpdatedAt = s.now().UTC()
		if err := s.orgs.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsSlugAvailable reports whether a slug is free. excludeOrgID lets an
// organization keep its own slug while checking a rename.
func (s *Service) IsSlugAvailable(ctx context.Context, slug string, excludeOrgID uuid.UUID) (bool, error) {
	slug = normalizeSlug(slug)
	if err := validateSlug(slug); err != nil {
		return false, err
	}
	return s.slugAvailable(ctx, slug, excludeOrgID)
}

func (s *Service) slugAvailable(ctx context.Context, slug string, excludeOrgID uuid.UUID) (bool, error) {
	holder, err := s.orgs.GetOrgBySlug(ctx, slug)
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return holder.ID == excludeOrgID, nil
}

// AddMember adds a user to the organization. Only the owner or an admin
// may add members; adding an existing member updates the admin flag.
func (s *Service) AddMember(ctx context.Context, callerID, orgID, userID uuid.UUID, isAdmin bool) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.orgs.GetOrg(ctx, orgID)
		if err != nil {
			return err
		}
		if err := s.requireAdmin(ctx, o, callerID); err != nil {
			return err
		}
		return s.orgs.UpsertMember(ctx, &domain.OrgMember{
			OrgID:     orgID,
			UserID:    userID,
			IsAdmin:   isAdmin,
			CreatedAt: s.now().UTC(),
		})
	})
}

// SetAdmin grants or revokes the admin flag on an existing member.
func (s *Service) SetAdmin(ctx context.Context, callerID, orgID, userID uuid.UUID, isAdmin bool) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.orgs.GetOrg(ctx, orgID)
		if err != nil {
			return err
		}
		if err := s.requireAdmin(ctx, o, callerID); err != nil {
			return err
		}
		m, err := s.orgs.GetMember(ctx, orgID, userID)
		if err != nil {
			return err
		}
		m.IsAdmin = isAdmin
		return s.orgs.UpsertMember(ctx, m)
	})
}

// RemoveMember removes a user from the organization. Admins may remove
// anyone; a member may remove themselves (leave). The owner cannot be
// removed.
func (s *Service) RemoveMember(ctx context.Context, callerID, orgID, userID uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.orgs.GetOrg(ctx, orgID)
		if err != nil {
			return err
		}
		if o.IsOwner(userID) {
			return domain.Validation("userId", "the owner cannot be removed")
		}
		if callerID != userID {
			if err := s.requireAdmin(ctx, o, callerID); err != nil {
				return err
			}
		}
		return s.orgs.DeleteMember(ctx, orgID, userID)
	})
}

// GetOrg returns the organization by id.
func (s *Service) GetOrg(ctx context.Context, orgID uuid.UUID) (*domain.Organization, error) {
	return s.orgs.GetOrg(ctx, orgID)
}

// GetMember returns the membership row for a user, domain.ErrNotFound
// when the user has none (the owner usually has none).
func (s *Service) GetMember(ctx context.Context, orgID, userID uuid.UUID) (*domain.OrgMember, error) {
	return s.orgs.GetMember(ctx, orgID, userID)
}

// ListMembers returns all membership rows of an organization. The
// caller must belong to the organization.
func (s *Service) ListMembers(ctx context.Context, callerID, orgID uuid.UUID) ([]domain.OrgMember, error) {
	o, err := s.orgs.GetOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !o.IsOwner(callerID) {
		if _, err := s.orgs.GetMember(ctx, orgID, callerID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrNotOrgMember
			}
			return nil, err
		}
	}
	return s.orgs.ListMembers(ctx, orgID)
}

// requireAdmin ensures the caller is the owner or an admin member.
func (s *Service) requireAdmin(ctx context.Context, o *domain.Organization, callerID uuid.UUID) error {
	if o.IsOwner(callerID) {
		return nil
	}
	m, err := s.orgs.GetMember(ctx, o.ID, callerID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotOrgMember
	}
	if err != nil {
		return err
	}
	if !m.IsAdmin {
		return domain.ErrInsufficientOrgRole
	}
	return nil
}

func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

func validateSlug(slug string) error {
	if len(slug) < 3 || len(slug) > 64 {
		return domain.Validation("slug", "must be between 3 and 64 characters")
	}
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return domain.Validation("slug", "may contain only lowercase letters, digits and dashes")
		}
	}
	if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		return domain.Validation("slug", "must not start or end with a dash")
	}
	return nil
}
