package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
	"github.com/forgekit/forge-backend/pkg/ctxutil"
)

// orgService is the organization management surface mounted under
// /api/orgs. Unlike table bundles these operations are fixed, so they
// get explicit handlers instead of registry dispatch.
type orgService interface {
	CreateOrg(ctx context.Context, ownerID uuid.UUID, slug, name string) (*domain.Organization, error)
	Rename(ctx context.Context, callerID, orgID uuid.UUID, slug, name string) (*domain.Organization, error)
	IsSlugAvailable(ctx context.Context, slug string, excludeOrgID uuid.UUID) (bool, error)
	AddMember(ctx context.Context, callerID, orgID, userID uuid.UUID, isAdmin bool) error
	SetAdmin(ctx context.Context, callerID, orgID, userID uuid.UUID, isAdmin bool) error
	RemoveMember(ctx context.Context, callerID, orgID, userID uuid.UUID) error
	GetOrg(ctx context.Context, orgID uuid.UUID) (*domain.Organization, error)
	ListMembers(ctx context.Context, callerID, orgID uuid.UUID) ([]domain.OrgMember, error)
}

// OrgsHandler serves organization management endpoints.
type OrgsHandler struct {
	log  *slog.Logger
	orgs orgService
}

// NewOrgsHandler creates an OrgsHandler.
func NewOrgsHandler(logger *slog.Logger, orgs orgService) *OrgsHandler {
	return &OrgsHandler{
		log:  logger.With("handler", "orgs"),
		orgs: orgs,
	}
}

type orgRequest struct {
	OrgID     uuid.UUID  `json:"orgId"`
	UserID    uuid.UUID  `json:"userId"`
	Slug      string     `json:"slug"`
	Name      string     `json:"name"`
	IsAdmin   bool       `json:"isAdmin"`
	ExcludeID *uuid.UUID `json:"excludeId"`
}

// handle wraps the shared decode / authenticate / respond steps.
func (h *OrgsHandler) handle(requireAuth bool, fn func(ctx context.Context, caller uuid.UUID, req *orgRequest) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := ctxutil.UserIDFromCtx(r.Context())
		if requireAuth && !ok {
			writeError(w, domain.ErrNotAuthenticated)
			return
		}

		req := &orgRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, domain.Validation("body", "malformed request body"))
			return
		}

		result, err := fn(r.Context(), caller, req)
		if err != nil {
			var de *domain.Error
			if !errors.As(err, &de) {
				h.log.ErrorContext(r.Context(), "org operation failed", slog.Any("error", err))
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			writeError(w, de)
			return
		}
		writeJSON(w, http.StatusOK, dataResponse{Data: result})
	}
}

func (h *OrgsHandler) Create() http.HandlerFunc {
	return h.handle(true, func(ctx context.Context, caller uuid.UUID, req *orgRequest) (any, error) {
		return h.orgs.CreateOrg(ctx, caller, req.Slug, req.Name)
	})
}

func (h *OrgsHandler) Rename() http.HandlerFunc {
	return h.handle(true, func(ctx context.Context, caller uuid.UUID, req *orgRequest) (any, error) {
		if req.OrgID == uuid.Nil {
			return nil, domain.Validation("orgId", "required")
		}
		return h.orgs.Rename(ctx, caller, req.OrgID, req.Slug, req.Name)
	})
}

func (h *OrgsHandler) IsSlugAvailable() http.HandlerFunc {
	return h.handle(false, func(ctx context.Context, _ uuid.UUID, req *orgRequest) (any, error) {
		exclude := uuid.Nil
		if req.ExcludeID != nil {
			exclude = *req.ExcludeID
		}
		return h.orgs.IsSlugAvailable(ctx, req.Slug, exclude)
	})
}

func (h *OrgsHandler) Get() http.HandlerFunc {
	return h.handle(false, func(ctx context.Context, _ uuid.UUID, req *orgRequest) (any, error) {
		if req.OrgID == uuid.Nil {
			return nil, domain.Validation("orgId", "required")
		}
		return h.orgs.GetOrg(ctx, req.OrgID)
	})
}

func (h *OrgsHandler) AddMember() http.HandlerFunc {
	return h.handle(true, func(ctx context.Context, caller uuid.UUID, req *orgRequest) (any, error) {
		if req.OrgID == uuid.Nil {
			return nil, domain.Validation("orgId", "required")
		}
		if req.UserID == uuid.Nil {
			return nil, domain.Validation("userId", "required")
		}
		return nil, h.orgs.AddMember(ctx, caller, req.OrgID, req.UserID, req.IsAdmin)
	})
}

func (h *OrgsHandler) SetAdmin() http.HandlerFunc {
	return h.handle(true, func(ctx context.Context, caller uuid.UUID, req *orgRequest) (any, error) {
		if req.OrgID == uuid.Nil {
			return nil, domain.Validation("orgId", "required")
		}
		if req.UserID == uuid.Nil {
			return nil, domain.Validation("userId", "required")
		}
		return nil, h.orgs.SetAdmin(ctx, caller, req.OrgID, req.UserID, req.IsAdmin)
	})
}

func (h *OrgsHandler) RemoveMember() http.HandlerFunc {
	return h.handle(true, func(ctx context.Context, caller uuid.UUID, req *orgRequest) (any, error) {
		if req.OrgID == uuid.Nil {
			return nil, domain.Validation("orgId", "required")
		}
		if req.UserID == uuid.Nil {
			return nil, domain.Validation("userId", "required")
		}
		return nil, h.orgs.RemoveMember(ctx, caller, req.OrgID, req.UserID)
	})
}

func (h *OrgsHandler) Members() http.HandlerFunc {
	return h.handle(true, func(ctx context.Context, caller uuid.UUID, req *orgRequest) (any, error) {
		if req.OrgID == uuid.Nil {
			return nil, domain.Validation("orgId", "required")
		}
		return h.orgs.ListMembers(ctx, caller, req.OrgID)
	})
}
