package courseware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/skillstream/courseware/pkg/courseware/blobkey"
)

const (
	defaultReplicateConcurrency = 8
	defaultUploadTimeout        = 15 * time.Minute
	maxForkAttempts             = 3
)

// service implements the Service interface
type service struct {
	repository           Repository
	blobStores           map[string]BlobStore
	defaultBackend       string
	identity             Identity
	keys                 blobkey.Generator
	logger               *slog.Logger
	replicateConcurrency int
	uploadTimeout        time.Duration
	now                  func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore adds a blob storage backend
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[string]BlobStore)
		}
		s.blobStores[name] = store
		if s.defaultBackend == "" {
			s.defaultBackend = name
		}
	}
}

// WithDefaultBackend selects which registered backend new uploads go to
func WithDefaultBackend(name string) Option {
	return func(s *service) {
		s.defaultBackend = name
	}
}

// WithIdentity sets the identity collaborator used for the admin bypass
func WithIdentity(identity Identity) Option {
	return func(s *service) {
		s.identity = identity
	}
}

// WithKeyGenerator sets the blob key generation strategy
func WithKeyGenerator(gen blobkey.Generator) Option {
	return func(s *service) {
		s.keys = gen
	}
}

// WithLogger sets the structured logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithReplicateConcurrency bounds the parallel row copies during a fork
func WithReplicateConcurrency(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.replicateConcurrency = n
		}
	}
}

// WithUploadTimeout bounds a single blob upload attempt
func WithUploadTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.uploadTimeout = d
		}
	}
}

// WithClock overrides the time source; tests use it to pin timestamps
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores:           make(map[string]BlobStore),
		replicateConcurrency: defaultReplicateConcurrency,
		uploadTimeout:        defaultUploadTimeout,
		now:                  func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.identity == nil {
		s.identity = NoAdmins{}
	}
	if s.keys == nil {
		s.keys = blobkey.NewShardedGenerator()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

func (s *service) backend(name string) (BlobStore, error) {
	if name == "" {
		name = s.defaultBackend
	}
	store, ok := s.blobStores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStorageBackendNotFound, name)
	}
	return store, nil
}

// Course operations

func (s *service) CreateCourse(ctx context.Context, req CreateCourseRequest) (*Course, error) {
	now := s.now()
	course := &Course{
		ID:             uuid.New(),
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		PriceCents:     req.PriceCents,
		CurrentVersion: 1,
		Status:         CourseStatusActive,
		CreatedBy:      req.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repository.CreateCourse(ctx, course); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}

	version := &CourseVersion{
		ID:            uuid.New(),
		CourseID:      course.ID,
		VersionNumber: 1,
		Title:         req.Title,
		PriceCents:    req.PriceCents,
		Category:      req.Category,
		Status:        VersionStatusCommitted,
		ChangeLog:     "initial version",
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repository.CreateVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("create initial version: %w", err)
	}

	s.logger.Info("course created", "course_id", course.ID, "title", course.Title)
	return course, nil
}

func (s *service) GetCourse(ctx context.Context, id uuid.UUID) (*Course, error) {
	return s.repository.GetCourse(ctx, id)
}

func (s *service) UpdateCourseStatus(ctx context.Context, id uuid.UUID, status CourseStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid course status %q", status)
	}
	if err := s.repository.UpdateCourseStatus(ctx, id, status); err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	return nil
}

func (s *service) GetContentItem(ctx context.Context, id uuid.UUID) (*ContentItem, error) {
	return s.repository.GetContentItem(ctx, id)
}

// Authoring operations

// UploadAsset streams the blob to the backend and confirms it landed
// before returning a reference. One bounded retry; on failure nothing
// references the key, so no cleanup of rows is needed.
func (s *service) UploadAsset(ctx context.Context, req UploadAssetRequest) (*BlobRef, error) {
	store, err := s.backend(req.Backend)
	if err != nil {
		return nil, err
	}
	backendName := req.Backend
	if backendName == "" {
		backendName = s.defaultBackend
	}

	key := s.keys.GenerateKey(req.CourseID, uuid.New(), req.FileName)

	uploadCtx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	if err := store.Put(uploadCtx, key, req.Reader, req.ContentType); err != nil {
		return nil, &BlobStoreError{Backend: backendName, Key: key, Op: "put", Err: err}
	}

	meta, err := store.Stat(ctx, key)
	if err != nil {
		// Single bounded retry on the confirmation read.
		s.logger.Warn("blob confirmation failed, retrying", "backend", backendName, "key", key, "err", err)
		meta, err = store.Stat(ctx, key)
		if err != nil {
			return nil, &BlobStoreError{Backend: backendName, Key: key, Op: "stat", Err: err}
		}
	}

	return &BlobRef{
		Backend:   backendName,
		Key:       key,
		SizeBytes: meta.Size,
		MimeType:  meta.ContentType,
	}, nil
}

// UpdateContentMeta edits the in-place fields of a content item. Metadata
// edits never fork; when the item belongs to the current version the
// denormalized cache is reconciled so list ordering stays correct.
func (s *service) UpdateContentMeta(ctx context.Context, req UpdateContentMetaRequest) (*ContentItem, error) {
	item, err := s.repository.GetContentItem(ctx, req.ContentID)
	if err != nil {
		return nil, err
	}
	course, err := s.editableCourse(ctx, item.CourseID)
	if err != nil {
		return nil, err
	}

	if err := s.repository.UpdateContentItemMeta(ctx, req.ContentID, req.Title, req.Position); err != nil {
		return nil, fmt.Errorf("update content metadata: %w", err)
	}

	if course.CurrentVersion == item.VersionNumber {
		if _, err := s.Reconcile(ctx, item.CourseID, item.VersionNumber); err != nil {
			return nil, err
		}
	}

	return s.repository.GetContentItem(ctx, req.ContentID)
}

// Version operations

func (s *service) GetVersion(ctx context.Context, courseID uuid.UUID, versionNumber int) (*CourseVersion, error) {
	return s.repository.GetVersion(ctx, courseID, versionNumber)
}

func (s *service) ListVersions(ctx context.Context, courseID uuid.UUID) ([]*CourseVersion, error) {
	return s.repository.ListVersions(ctx, courseID)
}

func (s *service) ListVersionContent(ctx context.Context, req ListVersionContentRequest) ([]*ContentWithAccess, error) {
	if _, err := s.repository.GetVersion(ctx, req.CourseID, req.VersionNumber); err != nil {
		return nil, err
	}

	items, err := s.repository.ListActiveContent(ctx, req.CourseID, req.VersionNumber)
	if err != nil {
		return nil, err
	}

	result := make([]*ContentWithAccess, 0, len(items))
	for _, item := range items {
		decision, err := s.resolveItemAccess(ctx, req.RequestedBy, item)
		if err != nil {
			return nil, err
		}
		result = append(result, &ContentWithAccess{Item: item, Decision: decision})
	}
	return result, nil
}

// Entitlement operations

// RecordPurchase fixes the learner's entitled version at the course's
// current version. Idempotent: a repeat purchase returns the original
// entitlement unchanged, so the entitled version can never move.
func (s *service) RecordPurchase(ctx context.Context, req RecordPurchaseRequest) (*Entitlement, error) {
	course, err := s.repository.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}

	ent := &Entitlement{
		LearnerID:     req.LearnerID,
		CourseID:      req.CourseID,
		VersionNumber: course.CurrentVersion,
		PurchasedAt:   s.now(),
	}

	if err := s.repository.CreateEntitlement(ctx, ent); err != nil {
		if errors.Is(err, ErrEntitlementExists) {
			return s.repository.GetEntitlement(ctx, req.LearnerID, req.CourseID)
		}
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	s.logger.Info("purchase recorded",
		"learner_id", req.LearnerID, "course_id", req.CourseID, "entitled_version", ent.VersionNumber)
	return ent, nil
}

func (s *service) GetEntitlement(ctx context.Context, learnerID, courseID uuid.UUID) (*Entitlement, error) {
	return s.repository.GetEntitlement(ctx, learnerID, courseID)
}
