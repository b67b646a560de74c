package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/skillstream/courseware/pkg/courseware"
)

// ContentHandler handles HTTP requests for individual content items
type ContentHandler struct {
	service courseware.Service
}

// NewContentHandler creates a new content handler
func NewContentHandler(service courseware.Service) *ContentHandler {
	return &ContentHandler{service: service}
}

// Routes returns the routes for content items
func (h *ContentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{contentID}", h.GetContent)
	r.Patch("/{contentID}", h.UpdateContentMeta)
	r.Delete("/{contentID}", h.RemoveContent)
	r.Put("/{contentID}/file", h.ReplaceContent)

	r.Get("/{contentID}/access", h.ResolveAccess)
	r.Get("/{contentID}/playback", h.PlaybackURL)

	return r
}

// GetContent returns a content item by id
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	contentID, ok := parseUUIDParam(w, r, "contentID")
	if !ok {
		return
	}

	item, err := h.service.GetContentItem(r.Context(), contentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, item)
}

// UpdateContentMetaRequest is the request body for metadata edits
type UpdateContentMetaRequest struct {
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// UpdateContentMeta edits the in-place fields of a content item; never
// forks
func (h *ContentHandler) UpdateContentMeta(w http.ResponseWriter, r *http.Request) {
	contentID, ok := parseUUIDParam(w, r, "contentID")
	if !ok {
		return
	}
	var req UpdateContentMetaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	item, err := h.service.UpdateContentMeta(r.Context(), courseware.UpdateContentMetaRequest{
		ContentID: contentID,
		Title:     req.Title,
		Position:  req.Position,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, item)
}

// RemoveContent removes the item from the course's current version
func (h *ContentHandler) RemoveContent(w http.ResponseWriter, r *http.Request) {
	contentID, ok := parseUUIDParam(w, r, "contentID")
	if !ok {
		return
	}

	result, err := h.service.RemoveContent(r.Context(), courseware.RemoveContentRequest{
		ContentID:   contentID,
		RequestedBy: RequesterID(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// ReplaceContentRequest is the request body for a file swap
type ReplaceContentRequest struct {
	Blob        courseware.BlobRef `json:"blob"`
	DurationSec int64              `json:"duration_sec,omitempty"`
}

// ReplaceContent swaps the item's underlying file
func (h *ContentHandler) ReplaceContent(w http.ResponseWriter, r *http.Request) {
	contentID, ok := parseUUIDParam(w, r, "contentID")
	if !ok {
		return
	}
	var req ReplaceContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	item, err := h.service.ReplaceContent(r.Context(), courseware.ReplaceContentRequest{
		ContentID:   contentID,
		Blob:        req.Blob,
		DurationSec: req.DurationSec,
		RequestedBy: RequesterID(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, item)
}

// ResolveAccess returns the requester's access decision for the item
func (h *ContentHandler) ResolveAccess(w http.ResponseWriter, r *http.Request) {
	contentID, ok := parseUUIDParam(w, r, "contentID")
	if !ok {
		return
	}

	decision, err := h.service.ResolveAccess(r.Context(), RequesterID(r.Context()), contentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, decision)
}

// PlaybackURL returns the access decision plus a signed URL when granted.
// Denied decisions come back 200 with an empty URL so the client can show
// a purchase prompt.
func (h *ContentHandler) PlaybackURL(w http.ResponseWriter, r *http.Request) {
	contentID, ok := parseUUIDParam(w, r, "contentID")
	if !ok {
		return
	}

	grant, err := h.service.PlaybackURL(r.Context(), RequesterID(r.Context()), contentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, grant)
}
