package courseware

import (
	"time"

	"github.com/google/uuid"
)

// CourseStatus is the domain type for course lifecycle states.
type CourseStatus string

// Course status constants (typed).
const (
	CourseStatusActive   CourseStatus = "active"
	CourseStatusInactive CourseStatus = "inactive"
	CourseStatusArchived CourseStatus = "archived"
)

// IsValid reports whether the status is one of the known course states.
func (s CourseStatus) IsValid() bool {
	switch s {
	case CourseStatusActive, CourseStatusInactive, CourseStatusArchived:
		return true
	}
	return false
}

// VersionStatus is the domain type for course-version lifecycle states.
//
// A version is created pending, becomes committed when the course pointer
// moves to it, and is marked abandoned when a fork fails before commit.
// Abandoned versions are never referenced by the course pointer or by any
// entitlement and are eligible for cleanup.
type VersionStatus string

// Version status constants (typed).
const (
	VersionStatusPending   VersionStatus = "pending"
	VersionStatusCommitted VersionStatus = "committed"
	VersionStatusAbandoned VersionStatus = "abandoned"
)

// ContentStatus is the domain type for content-item lifecycle states.
type ContentStatus string

// Content status constants (typed).
const (
	ContentStatusActive   ContentStatus = "active"
	ContentStatusDeleted  ContentStatus = "deleted"
	ContentStatusArchived ContentStatus = "archived"
)

// ContentKind distinguishes videos from supporting materials. Both share
// the same lifecycle and versioning rules; only metadata differs.
type ContentKind string

// Content kind constants (typed).
const (
	ContentKindVideo    ContentKind = "video"
	ContentKindMaterial ContentKind = "material"
)

// Course represents a sellable course. CurrentVersion is the monotonic
// pointer to the latest committed CourseVersion; ContentCache is a
// denormalized copy of that version's active content ids for fast reads.
type Course struct {
	ID              uuid.UUID    `json:"id"`
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	Category        string       `json:"category,omitempty"`
	PriceCents      int64        `json:"price_cents"`
	CurrentVersion  int          `json:"current_version"`
	ContentCache    []uuid.UUID  `json:"content_cache,omitempty"`
	EnrollmentCount int          `json:"enrollment_count"`
	Status          CourseStatus `json:"status"`
	CreatedBy       uuid.UUID    `json:"created_by"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// VersionStats holds the aggregate statistics stored on a CourseVersion.
type VersionStats struct {
	ContentCount     int   `json:"content_count"`
	TotalDurationSec int64 `json:"total_duration_sec"`
}

// CourseVersion is an immutable snapshot of a course at fork time. Its
// ContentIDs list may only change through the forking or reconciliation
// engines, never through direct external mutation.
type CourseVersion struct {
	ID            uuid.UUID     `json:"id"`
	CourseID      uuid.UUID     `json:"course_id"`
	VersionNumber int           `json:"version_number"`
	Title         string        `json:"title"`
	PriceCents    int64         `json:"price_cents"`
	Category      string        `json:"category,omitempty"`
	ContentIDs    []uuid.UUID   `json:"content_ids"`
	Stats         VersionStats  `json:"stats"`
	Status        VersionStatus `json:"status"`
	ChangeLog     string        `json:"change_log,omitempty"`
	CreatedBy     uuid.UUID     `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ContentItem is a video or material belonging to exactly one course
// version. The (CourseID, VersionNumber, StorageBackend, BlobKey) tuple is
// immutable once the row exists; Title and Position may be edited in place.
// Replacing the underlying file or removing the item from a version always
// produces a new row under a new version.
type ContentItem struct {
	ID             uuid.UUID     `json:"id"`
	CourseID       uuid.UUID     `json:"course_id"`
	VersionNumber  int           `json:"version_number"`
	Kind           ContentKind   `json:"kind"`
	Title          string        `json:"title"`
	Position       int           `json:"position"`
	StorageBackend string        `json:"storage_backend"`
	BlobKey        string        `json:"blob_key"`
	MimeType       string        `json:"mime_type,omitempty"`
	SizeBytes      int64         `json:"size_bytes,omitempty"`
	DurationSec    int64         `json:"duration_sec,omitempty"`
	FreePreview    bool          `json:"free_preview,omitempty"`
	Status         ContentStatus `json:"status"`
	CopiedFrom     *uuid.UUID    `json:"copied_from,omitempty"`
	CreatedBy      uuid.UUID     `json:"created_by"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	DeletedAt      *time.Time    `json:"deleted_at,omitempty"`
}

// Entitlement records the version a learner purchased. VersionNumber is
// fixed at purchase time and never advanced by later forks; this is the
// grandfathering guarantee.
type Entitlement struct {
	LearnerID     uuid.UUID `json:"learner_id"`
	CourseID      uuid.UUID `json:"course_id"`
	VersionNumber int       `json:"version_number"`
	PurchasedAt   time.Time `json:"purchased_at"`
}

// AccessState enumerates the possible outcomes of an access resolution,
// evaluated in fixed priority order: existence, admin, free preview,
// entitlement, denial.
type AccessState string

// Access state constants (typed).
const (
	AccessGrantedOwner           AccessState = "granted_owner"
	AccessGrantedFreePreview     AccessState = "granted_free_preview"
	AccessGrantedPurchased       AccessState = "granted_purchased"
	AccessDeniedPurchaseRequired AccessState = "denied_purchase_required"
	AccessDeniedNotFound         AccessState = "denied_not_found"
)

// AccessDecision is the structured result of resolving a (learner, content)
// pair. Denials are normal business outcomes, not errors; the state lets
// callers distinguish "doesn't exist" from "exists but requires purchase".
type AccessDecision struct {
	State           AccessState `json:"state"`
	LearnerID       uuid.UUID   `json:"learner_id"`
	ContentID       uuid.UUID   `json:"content_id"`
	CourseID        uuid.UUID   `json:"course_id,omitempty"`
	ContentVersion  int         `json:"content_version,omitempty"`
	EntitledVersion *int        `json:"entitled_version,omitempty"`
}

// Granted reports whether the decision permits playback.
func (d AccessDecision) Granted() bool {
	switch d.State {
	case AccessGrantedOwner, AccessGrantedFreePreview, AccessGrantedPurchased:
		return true
	}
	return false
}

// PlaybackGrant pairs an access decision with a signed read URL. URL is
// empty unless the decision is granted.
type PlaybackGrant struct {
	Decision AccessDecision `json:"decision"`
	URL      string         `json:"url,omitempty"`
}

// BlobRef identifies confirmed uploaded bytes in a storage backend. A
// ContentItem is only ever created from a BlobRef, so a slow or failed
// upload can never leave a half-forked version.
type BlobRef struct {
	Backend   string `json:"backend"`
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
}

// RemoveContentResult reports where a removal took effect. When the
// removal forked, StillAvailableInVersion names the old version that keeps
// the original row for entitled learners.
type RemoveContentResult struct {
	ContentID               uuid.UUID `json:"content_id"`
	RemovedFromVersion      int       `json:"removed_from_version"`
	StillAvailableInVersion *int      `json:"still_available_in_version,omitempty"`
}

// ReconcileResult is the outcome of recomputing a version's content list
// from the content-item source of truth.
type ReconcileResult struct {
	CourseID      uuid.UUID    `json:"course_id"`
	VersionNumber int          `json:"version_number"`
	ContentIDs    []uuid.UUID  `json:"content_ids"`
	Stats         VersionStats `json:"stats"`
	Drifted       bool         `json:"drifted"`
}

// ContentWithAccess combines a content item with the requester's access
// decision, as returned by ListVersionContent.
type ContentWithAccess struct {
	Item     *ContentItem   `json:"item"`
	Decision AccessDecision `json:"decision"`
}
