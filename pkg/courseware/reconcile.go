package courseware

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Reconcile recomputes a version's content-id list and statistics from the
// active content item rows, which are the source of truth, and overwrites
// whatever the version currently stores. Idempotent: a second run over an
// unchanged database produces the same list. Drift is healed silently and
// logged as a warning, never surfaced as an error.
//
// The forking engine runs this before every commit; it is also exposed as
// an administrative operation for client-observed mismatches.
func (s *service) Reconcile(ctx context.Context, courseID uuid.UUID, versionNumber int) (*ReconcileResult, error) {
	version, err := s.repository.GetVersion(ctx, courseID, versionNumber)
	if err != nil {
		return nil, err
	}

	items, err := s.repository.ListActiveContent(ctx, courseID, versionNumber)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list active content: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(items))
	var stats VersionStats
	for _, item := range items {
		ids = append(ids, item.ID)
		stats.ContentCount++
		if item.Kind == ContentKindVideo {
			stats.TotalDurationSec += item.DurationSec
		}
	}

	drifted := !equalIDLists(version.ContentIDs, ids)
	if drifted {
		s.logger.Warn("reconciliation healed drifted content list",
			"course_id", courseID, "version", versionNumber,
			"stored", len(version.ContentIDs), "actual", len(ids))
	}

	if err := s.repository.UpdateVersionContentList(ctx, version.ID, ids, stats); err != nil {
		return nil, fmt.Errorf("reconcile: store content list: %w", err)
	}

	// Heal the denormalized course cache when the target is the current
	// version. The repository ignores the write if the pointer has moved.
	course, err := s.repository.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.CurrentVersion == versionNumber {
		if err := s.repository.UpdateCourseContentCache(ctx, courseID, versionNumber, ids); err != nil {
			return nil, fmt.Errorf("reconcile: refresh course cache: %w", err)
		}
	}

	return &ReconcileResult{
		CourseID:      courseID,
		VersionNumber: versionNumber,
		ContentIDs:    ids,
		Stats:         stats,
		Drifted:       drifted,
	}, nil
}

func equalIDLists(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
