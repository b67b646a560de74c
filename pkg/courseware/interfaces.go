package courseware

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for blob storage backends. Keys are
// opaque; the engine never issues a Delete for a blob that is still
// referenced by any content item row.
type BlobStore interface {
	// Put uploads the blob under the given key
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Stat confirms a blob exists and returns its metadata; used to verify
	// an upload before any content item references the key
	Stat(ctx context.Context, key string) (*BlobMeta, error)

	// SignedReadURL returns a time-limited URL for reading the blob
	SignedReadURL(ctx context.Context, key string, downloadFilename string) (string, error)

	// Delete removes a blob; only called for authoring-window removals
	// whose key is no longer referenced by any row
	Delete(ctx context.Context, key string) error
}

// BlobMeta contains metadata about a blob in storage.
type BlobMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
}

// Identity answers authorization questions about requesters. It is an
// external collaborator; the engine only needs the admin bypass.
type Identity interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Repository defines the interface for course, version, content-item and
// entitlement persistence.
//
// Several methods are atomic primitives rather than plain writes: the
// fork and purchase races of concurrent admins and learners are resolved
// in the repository (unique version numbers, enrollment-gated in-place
// edits, compare-and-swap pointer commits), not by in-process locking.
type Repository interface {
	// Course operations
	CreateCourse(ctx context.Context, course *Course) error
	GetCourse(ctx context.Context, id uuid.UUID) (*Course, error)
	UpdateCourseStatus(ctx context.Context, id uuid.UUID, status CourseStatus) error

	// UpdateCourseContentCache overwrites the denormalized content cache,
	// but only while versionNumber is still the course's current version.
	UpdateCourseContentCache(ctx context.Context, courseID uuid.UUID, versionNumber int, contentIDs []uuid.UUID) error

	// Version operations
	//
	// CreateVersion must enforce uniqueness of (course_id, version_number)
	// and return ErrVersionExists to the loser of a concurrent allocation.
	CreateVersion(ctx context.Context, version *CourseVersion) error
	GetVersion(ctx context.Context, courseID uuid.UUID, versionNumber int) (*CourseVersion, error)
	ListVersions(ctx context.Context, courseID uuid.UUID) ([]*CourseVersion, error)
	MaxVersionNumber(ctx context.Context, courseID uuid.UUID) (int, error)
	UpdateVersionContentList(ctx context.Context, versionID uuid.UUID, contentIDs []uuid.UUID, stats VersionStats) error
	MarkVersionAbandoned(ctx context.Context, versionID uuid.UUID) error

	// CommitVersion is the fork commit point: in one atomic step it moves
	// course.CurrentVersion from fromVersion to toVersion, replaces the
	// content cache, and marks the version committed. It fails with
	// ErrNotCurrentVersion if the pointer no longer equals fromVersion.
	CommitVersion(ctx context.Context, courseID, versionID uuid.UUID, fromVersion, toVersion int, contentCache []uuid.UUID) error

	// Content item operations
	CreateContentItem(ctx context.Context, item *ContentItem) error
	GetContentItem(ctx context.Context, id uuid.UUID) (*ContentItem, error)
	UpdateContentItemMeta(ctx context.Context, id uuid.UUID, title string, position int) error
	ListActiveContent(ctx context.Context, courseID uuid.UUID, versionNumber int) ([]*ContentItem, error)
	CountBlobRefs(ctx context.Context, backend, key string) (int, error)

	// Authoring-window primitives: succeed only while the course still has
	// zero enrollments, otherwise fail with ErrForkRequired. This decides
	// the zero-to-one enrollment race atomically with the write.
	CreateContentItemIfUnenrolled(ctx context.Context, item *ContentItem) error
	SoftDeleteContentItemIfUnenrolled(ctx context.Context, id uuid.UUID) error

	// Entitlement operations
	//
	// CreateEntitlement records the purchase and increments the course
	// enrollment count in one atomic step; a duplicate purchase fails with
	// ErrEntitlementExists and leaves the original untouched.
	CreateEntitlement(ctx context.Context, ent *Entitlement) error
	GetEntitlement(ctx context.Context, learnerID, courseID uuid.UUID) (*Entitlement, error)
	HasAnyEnrollment(ctx context.Context, courseID uuid.UUID) (bool, error)
}
