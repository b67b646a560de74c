package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillstream/courseware/pkg/courseware"
)

// Repository implements courseware.Repository using in-memory storage.
// All atomic primitives (version allocation, enrollment-gated writes,
// pointer commits) run under one mutex, which gives the same guarantees
// the postgres implementation gets from constraints and transactions.
type Repository struct {
	mu              sync.RWMutex
	courses         map[uuid.UUID]*courseware.Course
	versions        map[uuid.UUID]*courseware.CourseVersion
	versionByNumber map[uuid.UUID]map[int]uuid.UUID // course_id -> version_number -> version_id
	items           map[uuid.UUID]*courseware.ContentItem
	entitlements    map[string]*courseware.Entitlement // "learner:course"
}

// New creates a new in-memory repository
func New() courseware.Repository {
	return &Repository{
		courses:         make(map[uuid.UUID]*courseware.Course),
		versions:        make(map[uuid.UUID]*courseware.CourseVersion),
		versionByNumber: make(map[uuid.UUID]map[int]uuid.UUID),
		items:           make(map[uuid.UUID]*courseware.ContentItem),
		entitlements:    make(map[string]*courseware.Entitlement),
	}
}

func entitlementKey(learnerID, courseID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", learnerID, courseID)
}

// Course operations

func (r *Repository) CreateCourse(ctx context.Context, course *courseware.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	courseCopy := copyCourse(course)
	r.courses[course.ID] = courseCopy
	return nil
}

func (r *Repository) GetCourse(ctx context.Context, id uuid.UUID) (*courseware.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	course, exists := r.courses[id]
	if !exists {
		return nil, courseware.ErrCourseNotFound
	}
	return copyCourse(course), nil
}

func (r *Repository) UpdateCourseStatus(ctx context.Context, id uuid.UUID, status courseware.CourseStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	course, exists := r.courses[id]
	if !exists {
		return courseware.ErrCourseNotFound
	}
	course.Status = status
	course.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) UpdateCourseContentCache(ctx context.Context, courseID uuid.UUID, versionNumber int, contentIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	course, exists := r.courses[courseID]
	if !exists {
		return courseware.ErrCourseNotFound
	}
	// The pointer may have moved since the caller decided to refresh;
	// a stale refresh is silently dropped.
	if course.CurrentVersion != versionNumber {
		return nil
	}
	course.ContentCache = append([]uuid.UUID(nil), contentIDs...)
	course.UpdatedAt = time.Now().UTC()
	return nil
}

// Version operations

func (r *Repository) CreateVersion(ctx context.Context, version *courseware.CourseVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.courses[version.CourseID]; !exists {
		return courseware.ErrCourseNotFound
	}

	numbers := r.versionByNumber[version.CourseID]
	if numbers == nil {
		numbers = make(map[int]uuid.UUID)
		r.versionByNumber[version.CourseID] = numbers
	}
	if _, taken := numbers[version.VersionNumber]; taken {
		return courseware.ErrVersionExists
	}

	numbers[version.VersionNumber] = version.ID
	r.versions[version.ID] = copyVersion(version)
	return nil
}

func (r *Repository) GetVersion(ctx context.Context, courseID uuid.UUID, versionNumber int) (*courseware.CourseVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.versionByNumber[courseID][versionNumber]
	if !ok {
		return nil, courseware.ErrVersionNotFound
	}
	return copyVersion(r.versions[id]), nil
}

func (r *Repository) ListVersions(ctx context.Context, courseID uuid.UUID) ([]*courseware.CourseVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*courseware.CourseVersion
	for _, version := range r.versions {
		if version.CourseID == courseID {
			result = append(result, copyVersion(version))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].VersionNumber < result[j].VersionNumber
	})
	return result, nil
}

func (r *Repository) MaxVersionNumber(ctx context.Context, courseID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.courses[courseID]; !exists {
		return 0, courseware.ErrCourseNotFound
	}
	max := 0
	for number := range r.versionByNumber[courseID] {
		if number > max {
			max = number
		}
	}
	return max, nil
}

func (r *Repository) UpdateVersionContentList(ctx context.Context, versionID uuid.UUID, contentIDs []uuid.UUID, stats courseware.VersionStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	version, exists := r.versions[versionID]
	if !exists {
		return courseware.ErrVersionNotFound
	}
	version.ContentIDs = append([]uuid.UUID(nil), contentIDs...)
	version.Stats = stats
	version.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) MarkVersionAbandoned(ctx context.Context, versionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	version, exists := r.versions[versionID]
	if !exists {
		return courseware.ErrVersionNotFound
	}
	version.Status = courseware.VersionStatusAbandoned
	version.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) CommitVersion(ctx context.Context, courseID, versionID uuid.UUID, fromVersion, toVersion int, contentCache []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	course, exists := r.courses[courseID]
	if !exists {
		return courseware.ErrCourseNotFound
	}
	version, exists := r.versions[versionID]
	if !exists {
		return courseware.ErrVersionNotFound
	}
	if course.CurrentVersion != fromVersion {
		return courseware.ErrNotCurrentVersion
	}

	now := time.Now().UTC()
	course.CurrentVersion = toVersion
	course.ContentCache = append([]uuid.UUID(nil), contentCache...)
	course.UpdatedAt = now
	version.Status = courseware.VersionStatusCommitted
	version.UpdatedAt = now
	return nil
}

// Content item operations

func (r *Repository) CreateContentItem(ctx context.Context, item *courseware.ContentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.courses[item.CourseID]; !exists {
		return courseware.ErrCourseNotFound
	}
	r.items[item.ID] = copyItem(item)
	return nil
}

func (r *Repository) GetContentItem(ctx context.Context, id uuid.UUID) (*courseware.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[id]
	if !exists {
		return nil, courseware.ErrContentNotFound
	}
	return copyItem(item), nil
}

func (r *Repository) UpdateContentItemMeta(ctx context.Context, id uuid.UUID, title string, position int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, exists := r.items[id]
	if !exists {
		return courseware.ErrContentNotFound
	}
	item.Title = title
	item.Position = position
	item.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) ListActiveContent(ctx context.Context, courseID uuid.UUID, versionNumber int) ([]*courseware.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*courseware.ContentItem
	for _, item := range r.items {
		if item.CourseID == courseID && item.VersionNumber == versionNumber && item.Status == courseware.ContentStatusActive {
			result = append(result, copyItem(item))
		}
	}
	sortItems(result)
	return result, nil
}

func (r *Repository) CountBlobRefs(ctx context.Context, backend, key string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, item := range r.items {
		if item.StorageBackend == backend && item.BlobKey == key && item.Status == courseware.ContentStatusActive {
			count++
		}
	}
	return count, nil
}

// Authoring-window primitives

func (r *Repository) CreateContentItemIfUnenrolled(ctx context.Context, item *courseware.ContentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	course, exists := r.courses[item.CourseID]
	if !exists {
		return courseware.ErrCourseNotFound
	}
	if course.EnrollmentCount > 0 {
		return courseware.ErrForkRequired
	}
	r.items[item.ID] = copyItem(item)
	return nil
}

func (r *Repository) SoftDeleteContentItemIfUnenrolled(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, exists := r.items[id]
	if !exists {
		return courseware.ErrContentNotFound
	}
	course, exists := r.courses[item.CourseID]
	if !exists {
		return courseware.ErrCourseNotFound
	}
	if course.EnrollmentCount > 0 {
		return courseware.ErrForkRequired
	}

	now := time.Now().UTC()
	item.Status = courseware.ContentStatusDeleted
	item.DeletedAt = &now
	item.UpdatedAt = now
	return nil
}

// Entitlement operations

func (r *Repository) CreateEntitlement(ctx context.Context, ent *courseware.Entitlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	course, exists := r.courses[ent.CourseID]
	if !exists {
		return courseware.ErrCourseNotFound
	}

	key := entitlementKey(ent.LearnerID, ent.CourseID)
	if _, exists := r.entitlements[key]; exists {
		return courseware.ErrEntitlementExists
	}

	entCopy := *ent
	r.entitlements[key] = &entCopy
	course.EnrollmentCount++
	course.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) GetEntitlement(ctx context.Context, learnerID, courseID uuid.UUID) (*courseware.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ent, exists := r.entitlements[entitlementKey(learnerID, courseID)]
	if !exists {
		return nil, courseware.ErrNoEntitlement
	}
	entCopy := *ent
	return &entCopy, nil
}

func (r *Repository) HasAnyEnrollment(ctx context.Context, courseID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	course, exists := r.courses[courseID]
	if !exists {
		return false, courseware.ErrCourseNotFound
	}
	return course.EnrollmentCount > 0, nil
}

// Copy helpers keep stored rows isolated from caller mutation.

func copyCourse(course *courseware.Course) *courseware.Course {
	courseCopy := *course
	courseCopy.ContentCache = append([]uuid.UUID(nil), course.ContentCache...)
	return &courseCopy
}

func copyVersion(version *courseware.CourseVersion) *courseware.CourseVersion {
	versionCopy := *version
	versionCopy.ContentIDs = append([]uuid.UUID(nil), version.ContentIDs...)
	return &versionCopy
}

func copyItem(item *courseware.ContentItem) *courseware.ContentItem {
	itemCopy := *item
	if item.CopiedFrom != nil {
		source := *item.CopiedFrom
		itemCopy.CopiedFrom = &source
	}
	if item.DeletedAt != nil {
		deleted := *item.DeletedAt
		itemCopy.DeletedAt = &deleted
	}
	return &itemCopy
}

// sortItems orders deterministically: position, then creation time, then
// id as the final tiebreaker.
func sortItems(items []*courseware.ContentItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}
