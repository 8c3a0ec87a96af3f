package rest

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/forgekit/forge-backend/internal/domain"
	"github.com/forgekit/forge-backend/pkg/ctxutil"
)

// maxUploadSize caps uploaded blob content.
const maxUploadSize = 25 << 20

// blobStore is the blob collaborator needed by the file endpoints.
type blobStore interface {
	Put(ctx context.Context, r io.Reader) (string, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	URL(id string) string
}

// FilesHandler serves blob upload and download. Documents reference
// uploads by storage id in their file-kind fields.
type FilesHandler struct {
	log   *slog.Logger
	blobs blobStore
}

// NewFilesHandler creates a FilesHandler.
func NewFilesHandler(logger *slog.Logger, blobs blobStore) *FilesHandler {
	return &FilesHandler{
		log:   logger.With("handler", "files"),
		blobs: blobs,
	}
}

// uploadResponse carries the storage id a client stores in a document
// field, plus the public URL for immediate display.
type uploadResponse struct {
	StorageID string `json:"storageId"`
	URL       string `json:"url"`
}

// Upload handles POST /api/files/upload. The raw request body is the
// blob content. Requires authentication.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := ctxutil.UserIDFromCtx(r.Context()); !ok {
		writeError(w, domain.ErrNotAuthenticated)
		return
	}

	id, err := h.blobs.Put(r.Context(), http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, domain.Validation("body", "file too large"))
			return
		}
		h.log.ErrorContext(r.Context(), "blob upload failed", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Data: uploadResponse{
		StorageID: id,
		URL:       h.blobs.URL(id),
	}})
}

// Download handles GET /blobs/{id}.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rc, err := h.blobs.Open(r.Context(), id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, domain.NotFound("blob"))
			return
		}
		h.log.ErrorContext(r.Context(), "blob open failed", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		h.log.WarnContext(r.Context(), "blob stream interrupted", slog.Any("error", err))
	}
}
