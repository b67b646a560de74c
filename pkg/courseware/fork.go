package courseware

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// forkDelta is the edit a fork applies on top of the replicated rows.
// omit names an old-version item skipped during replication; add is a new
// row created under the new version. A replace sets both.
type forkDelta struct {
	omit uuid.UUID
	add  *ContentItem
}

// AddContent adds a video or material to the course. While the course has
// zero enrollments the row is created in place under the current version;
// once anyone has purchased, the add forks a new version first.
func (s *service) AddContent(ctx context.Context, req AddContentRequest) (*ContentItem, error) {
	if req.Kind != ContentKindVideo && req.Kind != ContentKindMaterial {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentKind, req.Kind)
	}

	course, err := s.editableCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if err := s.confirmBlob(ctx, req.Blob); err != nil {
		return nil, err
	}

	item := s.newContentItem(course, req)

	err = s.repository.CreateContentItemIfUnenrolled(ctx, item)
	if err == nil {
		if _, err := s.Reconcile(ctx, course.ID, course.CurrentVersion); err != nil {
			return nil, err
		}
		return item, nil
	}
	if !errors.Is(err, ErrForkRequired) {
		return nil, fmt.Errorf("add content: %w", err)
	}

	changeLog := fmt.Sprintf("added %s %q", req.Kind, req.Title)
	_, added, err := s.fork(ctx, course, forkDelta{add: item}, changeLog, req.RequestedBy)
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveContent removes a content item from the course's current version.
// In the authoring window the row is soft-deleted and its blob reclaimed
// once unreferenced; with enrollments the item is simply omitted from the
// forked version and the original row stays active under the old version.
func (s *service) RemoveContent(ctx context.Context, req RemoveContentRequest) (*RemoveContentResult, error) {
	item, err := s.repository.GetContentItem(ctx, req.ContentID)
	if err != nil {
		return nil, err
	}
	course, err := s.editableCourse(ctx, item.CourseID)
	if err != nil {
		return nil, err
	}
	if item.VersionNumber != course.CurrentVersion || item.Status != ContentStatusActive {
		return nil, ErrNotCurrentVersion
	}

	err = s.repository.SoftDeleteContentItemIfUnenrolled(ctx, item.ID)
	if err == nil {
		s.reclaimBlob(ctx, item)
		if _, err := s.Reconcile(ctx, course.ID, course.CurrentVersion); err != nil {
			return nil, err
		}
		return &RemoveContentResult{
			ContentID:          item.ID,
			RemovedFromVersion: course.CurrentVersion,
		}, nil
	}
	if !errors.Is(err, ErrForkRequired) {
		return nil, fmt.Errorf("remove content: %w", err)
	}

	changeLog := fmt.Sprintf("removed %s %q", item.Kind, item.Title)
	version, _, err := s.fork(ctx, course, forkDelta{omit: item.ID}, changeLog, req.RequestedBy)
	if err != nil {
		return nil, err
	}
	prior := course.CurrentVersion
	return &RemoveContentResult{
		ContentID:               item.ID,
		RemovedFromVersion:      version.VersionNumber,
		StillAvailableInVersion: &prior,
	}, nil
}

// ReplaceContent swaps the underlying file of a content item. The
// replacement is always a new row; with enrollments it lands in a forked
// version while the original row keeps serving entitled learners.
func (s *service) ReplaceContent(ctx context.Context, req ReplaceContentRequest) (*ContentItem, error) {
	old, err := s.repository.GetContentItem(ctx, req.ContentID)
	if err != nil {
		return nil, err
	}
	course, err := s.editableCourse(ctx, old.CourseID)
	if err != nil {
		return nil, err
	}
	if old.VersionNumber != course.CurrentVersion || old.Status != ContentStatusActive {
		return nil, ErrNotCurrentVersion
	}
	if err := s.confirmBlob(ctx, req.Blob); err != nil {
		return nil, err
	}

	replacement := s.replacementItem(old, req)

	// Insert the replacement before touching the old row. A failure
	// between the two writes leaves both rows under the version, which
	// reconciliation surfaces, rather than a version missing the item.
	err = s.repository.CreateContentItemIfUnenrolled(ctx, replacement)
	if err == nil {
		if err := s.repository.SoftDeleteContentItemIfUnenrolled(ctx, old.ID); err != nil {
			return nil, fmt.Errorf("replace content: %w", err)
		}
		s.reclaimBlob(ctx, old)
		if _, err := s.Reconcile(ctx, course.ID, course.CurrentVersion); err != nil {
			return nil, err
		}
		return replacement, nil
	}
	if !errors.Is(err, ErrForkRequired) {
		return nil, fmt.Errorf("replace content: %w", err)
	}

	changeLog := fmt.Sprintf("replaced file of %s %q", old.Kind, old.Title)
	_, added, err := s.fork(ctx, course, forkDelta{omit: old.ID, add: replacement}, changeLog, req.RequestedBy)
	if err != nil {
		return nil, err
	}
	return added, nil
}

// fork runs forkOnce, rebasing onto the new current version when a
// concurrent fork wins the commit race. Only pure additions are rebased:
// an omit delta names a row of the version the admin was looking at, so
// after a concurrent commit it must be re-issued against the new version.
func (s *service) fork(ctx context.Context, course *Course, delta forkDelta, changeLog string, requestedBy uuid.UUID) (*CourseVersion, *ContentItem, error) {
	var version *CourseVersion
	var added *ContentItem
	var err error

	for attempt := 0; attempt < maxForkAttempts; attempt++ {
		version, added, err = s.forkOnce(ctx, course, delta, changeLog, requestedBy)
		if err == nil {
			return version, added, nil
		}

		var repErr *ReplicationError
		if delta.omit != uuid.Nil || !errors.As(err, &repErr) || !errors.Is(repErr.Err, ErrNotCurrentVersion) {
			return nil, nil, err
		}

		// Refetch through a separate error so a clean read cannot mask
		// the commit-race failure once attempts run out.
		refetched, getErr := s.repository.GetCourse(ctx, course.ID)
		if getErr != nil {
			return nil, nil, getErr
		}
		course = refetched
	}
	return nil, nil, err
}

// forkOnce creates the next CourseVersion, replicates the active rows of
// the current version, applies the delta, and commits the course pointer.
// The pointer move is the commit point: any failure before it marks the
// new version abandoned and leaves the course on its prior version.
func (s *service) forkOnce(ctx context.Context, course *Course, delta forkDelta, changeLog string, requestedBy uuid.UUID) (*CourseVersion, *ContentItem, error) {
	snapshot, err := s.repository.GetVersion(ctx, course.ID, course.CurrentVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("load current version: %w", err)
	}

	version, err := s.allocateVersion(ctx, course, snapshot, changeLog, requestedBy)
	if err != nil {
		return nil, nil, err
	}

	added, err := s.replicate(ctx, course, version, delta, requestedBy)
	if err == nil {
		var rec *ReconcileResult
		rec, err = s.Reconcile(ctx, course.ID, version.VersionNumber)
		if err == nil {
			err = s.repository.CommitVersion(ctx, course.ID, version.ID,
				course.CurrentVersion, version.VersionNumber, rec.ContentIDs)
		}
	}
	if err != nil {
		if abandonErr := s.repository.MarkVersionAbandoned(ctx, version.ID); abandonErr != nil {
			s.logger.Error("failed to mark abandoned version",
				"course_id", course.ID, "version", version.VersionNumber, "err", abandonErr)
		}
		return nil, nil, &ReplicationError{
			CourseID:    course.ID,
			FromVersion: course.CurrentVersion,
			ToVersion:   version.VersionNumber,
			Err:         err,
		}
	}

	s.logger.Info("course forked",
		"course_id", course.ID, "from_version", course.CurrentVersion,
		"to_version", version.VersionNumber, "change", changeLog)
	version.Status = VersionStatusCommitted
	return version, added, nil
}

// allocateVersion inserts the next version row. Version numbers are
// allocated by insert-if-absent on (course_id, version_number); the loser
// of a concurrent fork sees ErrVersionExists and retries with a
// recomputed number.
func (s *service) allocateVersion(ctx context.Context, course *Course, snapshot *CourseVersion, changeLog string, requestedBy uuid.UUID) (*CourseVersion, error) {
	for attempt := 0; attempt < maxForkAttempts; attempt++ {
		max, err := s.repository.MaxVersionNumber(ctx, course.ID)
		if err != nil {
			return nil, fmt.Errorf("compute next version number: %w", err)
		}

		now := s.now()
		version := &CourseVersion{
			ID:            uuid.New(),
			CourseID:      course.ID,
			VersionNumber: max + 1,
			Title:         snapshot.Title,
			PriceCents:    snapshot.PriceCents,
			Category:      snapshot.Category,
			Status:        VersionStatusPending,
			ChangeLog:     changeLog,
			CreatedBy:     requestedBy,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err = s.repository.CreateVersion(ctx, version)
		if err == nil {
			return version, nil
		}
		if !errors.Is(err, ErrVersionExists) {
			return nil, fmt.Errorf("create version: %w", err)
		}
	}
	return nil, &ReplicationError{
		CourseID:    course.ID,
		FromVersion: course.CurrentVersion,
		Err:         fmt.Errorf("lost version allocation race %d times: %w", maxForkAttempts, ErrVersionExists),
	}
}

// replicate copies the active rows of the course's current version into
// the new version and applies the delta. Row copies are independent, so
// they run in parallel bounded by the service's replicate concurrency.
func (s *service) replicate(ctx context.Context, course *Course, version *CourseVersion, delta forkDelta, requestedBy uuid.UUID) (*ContentItem, error) {
	items, err := s.repository.ListActiveContent(ctx, course.ID, course.CurrentVersion)
	if err != nil {
		return nil, fmt.Errorf("list current content: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.replicateConcurrency)
	for _, item := range items {
		if item.ID == delta.omit {
			continue
		}
		copied := s.copyForVersion(item, version.VersionNumber, requestedBy)
		g.Go(func() error {
			if err := s.repository.CreateContentItem(gctx, copied); err != nil {
				return fmt.Errorf("replicate content %s: %w", copied.CopiedFrom, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if delta.add == nil {
		return nil, nil
	}
	// Fresh id per attempt: a rebased retry must not collide with the row
	// left behind in an abandoned version.
	added := *delta.add
	added.ID = uuid.New()
	added.VersionNumber = version.VersionNumber
	if err := s.repository.CreateContentItem(ctx, &added); err != nil {
		return nil, fmt.Errorf("apply fork delta: %w", err)
	}
	return &added, nil
}

// copyForVersion builds the replicated row for an existing item: same
// blob reference and metadata, new id, new version number, fork lineage
// recorded in CopiedFrom. The source row is never touched.
func (s *service) copyForVersion(item *ContentItem, versionNumber int, requestedBy uuid.UUID) *ContentItem {
	now := s.now()
	source := item.ID
	return &ContentItem{
		ID:             uuid.New(),
		CourseID:       item.CourseID,
		VersionNumber:  versionNumber,
		Kind:           item.Kind,
		Title:          item.Title,
		Position:       item.Position,
		StorageBackend: item.StorageBackend,
		BlobKey:        item.BlobKey,
		MimeType:       item.MimeType,
		SizeBytes:      item.SizeBytes,
		DurationSec:    item.DurationSec,
		FreePreview:    item.FreePreview,
		Status:         ContentStatusActive,
		CopiedFrom:     &source,
		CreatedBy:      requestedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *service) newContentItem(course *Course, req AddContentRequest) *ContentItem {
	now := s.now()
	return &ContentItem{
		ID:             uuid.New(),
		CourseID:       course.ID,
		VersionNumber:  course.CurrentVersion,
		Kind:           req.Kind,
		Title:          req.Title,
		Position:       req.Position,
		StorageBackend: req.Blob.Backend,
		BlobKey:        req.Blob.Key,
		MimeType:       req.Blob.MimeType,
		SizeBytes:      req.Blob.SizeBytes,
		DurationSec:    req.DurationSec,
		FreePreview:    req.FreePreview,
		Status:         ContentStatusActive,
		CreatedBy:      req.RequestedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *service) replacementItem(old *ContentItem, req ReplaceContentRequest) *ContentItem {
	now := s.now()
	source := old.ID
	return &ContentItem{
		ID:             uuid.New(),
		CourseID:       old.CourseID,
		VersionNumber:  old.VersionNumber,
		Kind:           old.Kind,
		Title:          old.Title,
		Position:       old.Position,
		StorageBackend: req.Blob.Backend,
		BlobKey:        req.Blob.Key,
		MimeType:       req.Blob.MimeType,
		SizeBytes:      req.Blob.SizeBytes,
		DurationSec:    req.DurationSec,
		FreePreview:    old.FreePreview,
		Status:         ContentStatusActive,
		CopiedFrom:     &source,
		CreatedBy:      req.RequestedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *service) editableCourse(ctx context.Context, courseID uuid.UUID) (*Course, error) {
	course, err := s.repository.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.Status == CourseStatusArchived {
		return nil, ErrCourseArchived
	}
	return course, nil
}

// confirmBlob verifies the reference points at confirmed bytes before any
// row is created from it.
func (s *service) confirmBlob(ctx context.Context, ref BlobRef) error {
	store, err := s.backend(ref.Backend)
	if err != nil {
		return err
	}
	if _, err := store.Stat(ctx, ref.Key); err != nil {
		return fmt.Errorf("%w: %s/%s", ErrBlobMissing, ref.Backend, ref.Key)
	}
	return nil
}

// reclaimBlob deletes a soft-deleted item's blob once no row references
// the key. Only the authoring-window removal path reaches here; forked
// removals never delete rows or blobs.
func (s *service) reclaimBlob(ctx context.Context, item *ContentItem) {
	refs, err := s.repository.CountBlobRefs(ctx, item.StorageBackend, item.BlobKey)
	if err != nil {
		s.logger.Warn("blob reference count failed, leaving blob in place",
			"backend", item.StorageBackend, "key", item.BlobKey, "err", err)
		return
	}
	if refs > 0 {
		return
	}
	store, err := s.backend(item.StorageBackend)
	if err != nil {
		s.logger.Warn("unknown backend for blob reclaim", "backend", item.StorageBackend, "key", item.BlobKey)
		return
	}
	if err := store.Delete(ctx, item.BlobKey); err != nil {
		s.logger.Warn("blob reclaim failed",
			"backend", item.StorageBackend, "key", item.BlobKey, "err", err)
	}
}
