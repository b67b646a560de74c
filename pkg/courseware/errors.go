package courseware

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrCourseNotFound indicates a course was not found
	ErrCourseNotFound = errors.New("course not found")

	// ErrVersionNotFound indicates a course version was not found
	ErrVersionNotFound = errors.New("course version not found")

	// ErrContentNotFound indicates a content item was not found
	ErrContentNotFound = errors.New("content item not found")

	// ErrVersionExists indicates a version number was already taken for the
	// course; the loser of a concurrent fork race retries with a recomputed
	// number
	ErrVersionExists = errors.New("course version already exists")

	// ErrNotCurrentVersion indicates an operation targeted a version other
	// than the course's current one
	ErrNotCurrentVersion = errors.New("version is not the course's current version")

	// ErrForkRequired indicates an in-place edit was refused because the
	// course has enrollments; the caller must fork first
	ErrForkRequired = errors.New("course has enrollments, edit requires a fork")

	// ErrEntitlementExists indicates the learner already holds an
	// entitlement for the course
	ErrEntitlementExists = errors.New("entitlement already exists")

	// ErrNoEntitlement indicates no entitlement exists for the
	// (learner, course) pair
	ErrNoEntitlement = errors.New("no entitlement for learner and course")

	// ErrCourseArchived indicates the course no longer accepts edits
	ErrCourseArchived = errors.New("course is archived")

	// ErrInvalidContentKind indicates a content kind outside the supported
	// set of video and material
	ErrInvalidContentKind = errors.New("invalid content kind")

	// ErrBlobMissing indicates a blob reference could not be confirmed in
	// its storage backend
	ErrBlobMissing = errors.New("blob not found in storage backend")

	// ErrStorageBackendNotFound indicates a storage backend was not
	// registered with the service
	ErrStorageBackendNotFound = errors.New("storage backend not found")
)

// ReplicationError reports a fork that could not complete atomically. The
// course is left on its prior committed version and the partially written
// version is marked abandoned, so the operation is safe to retry.
type ReplicationError struct {
	CourseID    uuid.UUID
	FromVersion int
	ToVersion   int
	Err         error
}

func (e *ReplicationError) Error() string {
	return fmt.Sprintf("replication of course %s version %d -> %d failed: %v", e.CourseID, e.FromVersion, e.ToVersion, e.Err)
}

func (e *ReplicationError) Unwrap() error {
	return e.Err
}

// BlobStoreError reports a failed blob store operation.
type BlobStoreError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *BlobStoreError) Error() string {
	return fmt.Sprintf("blob operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *BlobStoreError) Unwrap() error {
	return e.Err
}
