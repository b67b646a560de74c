package courseware

import (
	"io"

	"github.com/google/uuid"
)

// Request/Response DTOs

// CreateCourseRequest contains parameters for creating a new course. The
// course starts on version 1 with an empty content list.
type CreateCourseRequest struct {
	Title       string
	Description string
	Category    string
	PriceCents  int64
	CreatedBy   uuid.UUID
}

// UploadAssetRequest contains parameters for uploading a blob ahead of
// content creation. The upload is confirmed against the backend before a
// BlobRef is returned.
type UploadAssetRequest struct {
	CourseID    uuid.UUID
	FileName    string
	ContentType string
	Reader      io.Reader
	Backend     string // optional; defaults to the service's default backend
}

// AddContentRequest contains parameters for adding a video or material to
// a course. Blob identifies bytes previously confirmed by UploadAsset.
type AddContentRequest struct {
	CourseID    uuid.UUID
	Kind        ContentKind
	Title       string
	Position    int
	Blob        BlobRef
	DurationSec int64 // videos only
	FreePreview bool  // videos only
	RequestedBy uuid.UUID
}

// ReplaceContentRequest contains parameters for swapping the underlying
// file of an existing content item. The replacement is always a new row;
// with enrollments it lands in a forked version.
type ReplaceContentRequest struct {
	ContentID   uuid.UUID
	Blob        BlobRef
	DurationSec int64
	RequestedBy uuid.UUID
}

// UpdateContentMetaRequest contains the in-place editable fields of a
// content item. Metadata edits never fork.
type UpdateContentMetaRequest struct {
	ContentID uuid.UUID
	Title     string
	Position  int
}

// RemoveContentRequest contains parameters for removing a content item
// from the course's current version.
type RemoveContentRequest struct {
	ContentID   uuid.UUID
	RequestedBy uuid.UUID
}

// RecordPurchaseRequest contains parameters for fixing a learner's
// entitlement at the course's current version.
type RecordPurchaseRequest struct {
	LearnerID uuid.UUID
	CourseID  uuid.UUID
}

// ListVersionContentRequest contains parameters for listing a version's
// content together with per-item access decisions for the requester.
type ListVersionContentRequest struct {
	CourseID      uuid.UUID
	VersionNumber int
	RequestedBy   uuid.UUID
}
