package courseware

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the courseware library
type Service interface {
	// Course operations
	CreateCourse(ctx context.Context, req CreateCourseRequest) (*Course, error)
	GetCourse(ctx context.Context, id uuid.UUID) (*Course, error)
	UpdateCourseStatus(ctx context.Context, id uuid.UUID, status CourseStatus) error

	// Authoring operations
	UploadAsset(ctx context.Context, req UploadAssetRequest) (*BlobRef, error)
	AddContent(ctx context.Context, req AddContentRequest) (*ContentItem, error)
	ReplaceContent(ctx context.Context, req ReplaceContentRequest) (*ContentItem, error)
	RemoveContent(ctx context.Context, req RemoveContentRequest) (*RemoveContentResult, error)
	UpdateContentMeta(ctx context.Context, req UpdateContentMetaRequest) (*ContentItem, error)

	// Version operations
	GetVersion(ctx context.Context, courseID uuid.UUID, versionNumber int) (*CourseVersion, error)
	ListVersions(ctx context.Context, courseID uuid.UUID) ([]*CourseVersion, error)
	ListVersionContent(ctx context.Context, req ListVersionContentRequest) ([]*ContentWithAccess, error)
	Reconcile(ctx context.Context, courseID uuid.UUID, versionNumber int) (*ReconcileResult, error)

	// Entitlement operations
	RecordPurchase(ctx context.Context, req RecordPurchaseRequest) (*Entitlement, error)
	GetEntitlement(ctx context.Context, learnerID, courseID uuid.UUID) (*Entitlement, error)

	// Access operations
	ResolveAccess(ctx context.Context, learnerID, contentID uuid.UUID) (AccessDecision, error)
	PlaybackURL(ctx context.Context, learnerID, contentID uuid.UUID) (*PlaybackGrant, error)

	// Content lookup
	GetContentItem(ctx context.Context, id uuid.UUID) (*ContentItem, error)
}
