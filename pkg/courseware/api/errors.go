package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/skillstream/courseware/pkg/courseware"
)

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeError maps domain errors onto HTTP status codes. Replication and
// blob store failures come back 502 with a retryable hint: the course is
// still on its prior committed version, so the admin can simply retry.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var replicationErr *courseware.ReplicationError
	var blobErr *courseware.BlobStoreError

	switch {
	case errors.Is(err, courseware.ErrCourseNotFound),
		errors.Is(err, courseware.ErrVersionNotFound),
		errors.Is(err, courseware.ErrContentNotFound),
		errors.Is(err, courseware.ErrNoEntitlement):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
	case errors.Is(err, courseware.ErrNotCurrentVersion),
		errors.Is(err, courseware.ErrCourseArchived),
		errors.Is(err, courseware.ErrForkRequired):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
	case errors.Is(err, courseware.ErrBlobMissing),
		errors.Is(err, courseware.ErrStorageBackendNotFound),
		errors.Is(err, courseware.ErrInvalidContentKind):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: err.Error()})
	case errors.As(err, &replicationErr), errors.As(err, &blobErr):
		slog.Error("upstream failure", "path", r.URL.Path, "err", err)
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, ErrorResponse{Error: err.Error(), Retryable: true})
	default:
		slog.Error("request failed", "path", r.URL.Path, "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "internal error"})
	}
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: msg})
}
