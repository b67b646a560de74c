package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/skillstream/courseware/pkg/courseware"
)

// CourseHandler handles HTTP requests for courses, versions and
// purchases
type CourseHandler struct {
	service courseware.Service
}

// NewCourseHandler creates a new course handler
func NewCourseHandler(service courseware.Service) *CourseHandler {
	return &CourseHandler{service: service}
}

// Routes returns the routes for courses
func (h *CourseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateCourse)
	r.Get("/{courseID}", h.GetCourse)
	r.Put("/{courseID}/status", h.UpdateCourseStatus)

	r.Post("/{courseID}/assets", h.UploadAsset)
	r.Post("/{courseID}/contents", h.AddContent)

	r.Get("/{courseID}/versions", h.ListVersions)
	r.Get("/{courseID}/versions/{versionNumber}", h.GetVersion)
	r.Get("/{courseID}/versions/{versionNumber}/contents", h.ListVersionContent)
	r.Post("/{courseID}/versions/{versionNumber}/reconcile", h.Reconcile)

	r.Post("/{courseID}/purchase", h.RecordPurchase)

	return r
}

// CreateCourseRequest is the request body for creating a course
type CreateCourseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PriceCents  int64  `json:"price_cents"`
}

// CreateCourse creates a new course
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req CreateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if req.Title == "" {
		writeBadRequest(w, r, "title is required")
		return
	}

	course, err := h.service.CreateCourse(r.Context(), courseware.CreateCourseRequest{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		PriceCents:  req.PriceCents,
		CreatedBy:   RequesterID(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, course)
}

// GetCourse returns a course by id
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	courseID, ok := parseUUIDParam(w, r, "courseID")
	if !ok {
		return
	}

	course, err := h.service.GetCourse(r.Context(), courseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, course)
}

// UpdateCourseStatusRequest is the request body for a status change
type UpdateCourseStatusRequest struct {
	Status string `json:"status"`
}

// UpdateCourseStatus changes the course lifecycle status
func (h *CourseHandler) UpdateCourseStatus(w http.ResponseWriter, r *http.Request) {
	courseID, ok := parseUUIDParam(w, r, "courseID")
	if !ok {
		return
	}
	var req UpdateCourseStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	status := courseware.CourseStatus(req.Status)
	if !status.IsValid() {
		writeBadRequest(w, r, "invalid status")
		return
	}
	if err := h.service.UpdateCourseStatus(r.Context(), courseID, status); err != nil {
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// UploadAsset streams the request body into blob storage and returns a
// confirmed reference to attach via AddContent. The file name comes from
// the X-File-Name header or the file_name query parameter.
func (h *CourseHandler) UploadAsset(w http.ResponseWriter, r *http.Request) {
	courseID, ok := parseUUIDParam(w, r, "courseID")
	if !ok {
		return
	}

	fileName := r.Header.Get("X-File-Name")
	if fileName == "" {
		fileName = r.URL.Query().Get("file_name")
	}

	ref, err := h.service.UploadAsset(r.Context(), courseware.UploadAssetRequest{
		CourseID:    courseID,
		FileName:    fileName,
		ContentType: r.Header.Get("Content-Type"),
		Reader:      r.Body,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, ref)
}

// AddContentRequest is the request body for adding a video or material
type AddContentRequest struct {
	Kind        string             `json:"kind"`
	Title       string             `json:"title"`
	Position    int                `json:"position"`
	Blob        courseware.BlobRef `json:"blob"`
	DurationSec int64              `json:"duration_sec,omitempty"`
	FreePreview bool               `json:"free_preview,omitempty"`
}

// AddContent adds a content item to the course; the service decides
// whether the edit forks
func (h *CourseHandler) AddContent(w http.ResponseWriter, r *http.Request) {
	courseID, ok := parseUUIDParam(w, r, "courseID")
	if !ok {
		return
	}
	var req AddContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if req.Title == "" {
		writeBadRequest(w, r, "title is required")
		return
	}

	item, err := h.service.AddContent(r.Context(), courseware.AddContentRequest{
		CourseID:    courseID,
		Kind:        courseware.ContentKind(req.Kind),
		Title:       req.Title,
		Position:    req.Position,
		Blob:        req.Blob,
		DurationSec: req.DurationSec,
		FreePreview: req.FreePreview,
		RequestedBy: RequesterID(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, item)
}

// ListVersions lists the course's versions in order
func (h *CourseHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	courseID, ok := parseUUIDParam(w, r, "courseID")
	if !ok {
		return
	}

	versions, err := h.service.ListVersions(r.Context(), courseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, versions)
}

// GetVersion returns a single course version
func (h *CourseHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	courseID, versionNumber, ok := parseVersionParams(w, r)
	if !ok {
		return
	}

	version, err := h.service.GetVersion(r.Context(), courseID, versionNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, version)
}

// ListVersionContent lists a version's content with per-item access
// decisions for the requester
func (h *CourseHandler) ListVersionContent(w http.ResponseWriter, r *http.Request) {
	courseID, versionNumber, ok := parseVersionParams(w, r)
	if !ok {
		return
	}

	contents, err := h.service.ListVersionContent(r.Context(), courseware.ListVersionContentRequest{
		CourseID:      courseID,
		VersionNumber: versionNumber,
		RequestedBy:   RequesterID(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, contents)
}

// Reconcile recomputes the version's content list; administrative and
// diagnostic
func (h *CourseHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	courseID, versionNumber, ok := parseVersionParams(w, r)
	if !ok {
		return
	}

	result, err := h.service.Reconcile(r.Context(), courseID, versionNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// RecordPurchase fixes the requester's entitlement at the current version
func (h *CourseHandler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	courseID, ok := parseUUIDParam(w, r, "courseID")
	if !ok {
		return
	}

	ent, err := h.service.RecordPurchase(r.Context(), courseware.RecordPurchaseRequest{
		LearnerID: RequesterID(r.Context()),
		CourseID:  courseID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, ent)
}

// Param helpers

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeBadRequest(w, r, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseVersionParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, int, bool) {
	courseID, ok := parseUUIDParam(w, r, "courseID")
	if !ok {
		return uuid.Nil, 0, false
	}
	versionNumber, err := strconv.Atoi(chi.URLParam(r, "versionNumber"))
	if err != nil || versionNumber < 1 {
		writeBadRequest(w, r, "invalid version number")
		return uuid.Nil, 0, false
	}
	return courseID, versionNumber, true
}
