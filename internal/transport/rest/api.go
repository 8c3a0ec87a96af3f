// Package rest exposes the synthesized endpoint bundles over HTTP. Every
// operation is a POST to /api/{table}/{op} with a JSON body; responses
// wrap the payload in a data envelope and errors in a coded error
// envelope.
package rest

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/forgekit/forge-backend/internal/crud"
	"github.com/forgekit/forge-backend/internal/domain"
)

// maxBodySize caps request bodies; document fields are small JSON, file
// content goes through the blob endpoints.
const maxBodySize = 1 << 20

// APIHandler dispatches table operations against the endpoint registry.
type APIHandler struct {
	log      *slog.Logger
	registry *crud.Registry
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(logger *slog.Logger, registry *crud.Registry) *APIHandler {
	return &APIHandler{
		log:      logger.With("handler", "api"),
		registry: registry,
	}
}

// dataResponse is the success envelope.
type dataResponse struct {
	Data any `json:"data"`
}

// errorResponse is the error envelope. Code is stable API contract.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    domain.Code    `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Dispatch handles POST /api/{table}/{op}.
func (h *APIHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	op := r.PathValue("op")

	handler, ok := h.registry.Lookup(table, op)
	if !ok {
		writeError(w, domain.NotFound("endpoint "+table+"/"+op))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, domain.Validation("body", "unreadable request body"))
		return
	}
	if len(body) > maxBodySize {
		writeError(w, domain.Validation("body", "request body too large"))
		return
	}

	result, err := handler(r.Context(), body)
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			h.log.ErrorContext(r.Context(), "operation failed",
				slog.String("table", table),
				slog.String("op", op),
				slog.Any("error", err),
			)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeError(w, de)
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Data: result})
}

// Tables handles GET /api/tables, listing the registered table names.
func (h *APIHandler) Tables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dataResponse{Data: h.registry.Tables()})
}

func writeError(w http.ResponseWriter, e *domain.Error) {
	writeJSON(w, statusFor(e.Code), errorResponse{Error: errorBody{
		Code:    e.Code,
		Message: e.Message,
		Data:    e.Data,
	}})
}

// statusFor maps stable error codes to HTTP statuses.
func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeNotAuthenticated:
		return http.StatusUnauthorized
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeConflict, domain.CodeAlreadyExists:
		return http.StatusConflict
	case domain.CodeForbidden, domain.CodeNotAuthorized,
		domain.CodeInsufficientOrgRole, domain.CodeNotOrgMember:
		return http.StatusForbidden
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
