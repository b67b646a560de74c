package courseware_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillstream/courseware/pkg/courseware"
	"github.com/skillstream/courseware/pkg/courseware/repo/memory"
	memorystorage "github.com/skillstream/courseware/pkg/courseware/storage/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []courseware.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []courseware.Option{},
			expectError: true,
		},
		{
			name: "with repository should succeed",
			options: []courseware.Option{
				courseware.WithRepository(memory.New()),
			},
			expectError: false,
		},
		{
			name: "with repository and blob store should succeed",
			options: []courseware.Option{
				courseware.WithRepository(memory.New()),
				courseware.WithBlobStore("memory", memorystorage.New()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := courseware.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

type testEnv struct {
	svc   courseware.Service
	repo  courseware.Repository
	store *memorystorage.Backend
	admin uuid.UUID
}

func setupTestService(t *testing.T, extra ...courseware.Option) *testEnv {
	t.Helper()

	repo := memory.New()
	store := memorystorage.New()
	admin := uuid.New()

	options := []courseware.Option{
		courseware.WithRepository(repo),
		courseware.WithBlobStore("memory", store),
		courseware.WithIdentity(courseware.NewStaticAdmins(admin)),
	}
	options = append(options, extra...)

	svc, err := courseware.New(options...)
	require.NoError(t, err)

	return &testEnv{svc: svc, repo: repo, store: store, admin: admin}
}

func (e *testEnv) createCourse(t *testing.T, title string) *courseware.Course {
	t.Helper()
	course, err := e.svc.CreateCourse(context.Background(), courseware.CreateCourseRequest{
		Title:      title,
		PriceCents: 1000,
		CreatedBy:  e.admin,
	})
	require.NoError(t, err)
	return course
}

func (e *testEnv) uploadAsset(t *testing.T, courseID uuid.UUID, fileName, body string) *courseware.BlobRef {
	t.Helper()
	ref, err := e.svc.UploadAsset(context.Background(), courseware.UploadAssetRequest{
		CourseID:    courseID,
		FileName:    fileName,
		ContentType: "video/mp4",
		Reader:      strings.NewReader(body),
	})
	require.NoError(t, err)
	return ref
}

func (e *testEnv) addVideo(t *testing.T, courseID uuid.UUID, title string) *courseware.ContentItem {
	t.Helper()
	ref := e.uploadAsset(t, courseID, title+".mp4", "bytes of "+title)
	item, err := e.svc.AddContent(context.Background(), courseware.AddContentRequest{
		CourseID:    courseID,
		Kind:        courseware.ContentKindVideo,
		Title:       title,
		Blob:        *ref,
		DurationSec: 600,
		RequestedBy: e.admin,
	})
	require.NoError(t, err)
	return item
}

func (e *testEnv) purchase(t *testing.T, learnerID, courseID uuid.UUID) *courseware.Entitlement {
	t.Helper()
	ent, err := e.svc.RecordPurchase(context.Background(), courseware.RecordPurchaseRequest{
		LearnerID: learnerID,
		CourseID:  courseID,
	})
	require.NoError(t, err)
	return ent
}

func TestWithClockPinsTimestamps(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env := setupTestService(t, courseware.WithClock(func() time.Time { return frozen }))

	course := env.createCourse(t, "Frozen Time")
	assert.Equal(t, frozen, course.CreatedAt)

	ent := env.purchase(t, uuid.New(), course.ID)
	assert.Equal(t, frozen, ent.PurchasedAt)
}

func TestCreateCourse(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	course := env.createCourse(t, "Intro to Go")
	assert.Equal(t, 1, course.CurrentVersion)
	assert.Equal(t, courseware.CourseStatusActive, course.Status)
	assert.Zero(t, course.EnrollmentCount)

	version, err := env.svc.GetVersion(ctx, course.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, courseware.VersionStatusCommitted, version.Status)
	assert.Empty(t, version.ContentIDs)
	assert.Equal(t, "Intro to Go", version.Title)
}

func TestUploadAsset(t *testing.T) {
	env := setupTestService(t)
	course := env.createCourse(t, "Upload Course")

	ref := env.uploadAsset(t, course.ID, "lecture one.mp4", "0123456789")
	assert.Equal(t, "memory", ref.Backend)
	assert.Contains(t, ref.Key, course.ID.String())
	assert.NotContains(t, ref.Key, " ")
	assert.Equal(t, int64(10), ref.SizeBytes)
	assert.Equal(t, "video/mp4", ref.MimeType)
}

func TestAddContentRejectsUnknownBlob(t *testing.T) {
	env := setupTestService(t)
	course := env.createCourse(t, "Broken Blob")

	_, err := env.svc.AddContent(context.Background(), courseware.AddContentRequest{
		CourseID:    course.ID,
		Kind:        courseware.ContentKindVideo,
		Title:       "Ghost",
		Blob:        courseware.BlobRef{Backend: "memory", Key: "never/uploaded"},
		RequestedBy: env.admin,
	})
	assert.ErrorIs(t, err, courseware.ErrBlobMissing)
}

func TestAddContentRejectsInvalidKind(t *testing.T) {
	env := setupTestService(t)
	course := env.createCourse(t, "Bad Kind")

	_, err := env.svc.AddContent(context.Background(), courseware.AddContentRequest{
		CourseID: course.ID,
		Kind:     courseware.ContentKind("podcast"),
		Title:    "Nope",
	})
	assert.ErrorIs(t, err, courseware.ErrInvalidContentKind)
}

func TestRecordPurchaseIsIdempotent(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	course := env.createCourse(t, "Idempotent Purchase")
	env.addVideo(t, course.ID, "Lecture 1")

	learner := uuid.New()
	first := env.purchase(t, learner, course.ID)
	assert.Equal(t, 1, first.VersionNumber)

	// Fork to version 2, then purchase again: the entitlement must not move.
	env.addVideo(t, course.ID, "Lecture 2")

	again := env.purchase(t, learner, course.ID)
	assert.Equal(t, 1, again.VersionNumber)
	assert.Equal(t, first.PurchasedAt, again.PurchasedAt)

	updated, err := env.svc.GetCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.EnrollmentCount, "duplicate purchase must not bump enrollments")
}

func TestUpdateContentMetaNeverForks(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	course := env.createCourse(t, "Metadata Edits")
	item := env.addVideo(t, course.ID, "Old Title")

	env.purchase(t, uuid.New(), course.ID)

	updated, err := env.svc.UpdateContentMeta(ctx, courseware.UpdateContentMetaRequest{
		ContentID: item.ID,
		Title:     "New Title",
		Position:  3,
	})
	require.NoError(t, err)
	assert.Equal(t, "New Title", updated.Title)
	assert.Equal(t, 3, updated.Position)
	assert.Equal(t, item.VersionNumber, updated.VersionNumber)

	after, err := env.svc.GetCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, course.CurrentVersion, after.CurrentVersion, "metadata edit must not fork")
}

func TestArchivedCourseRejectsEdits(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	course := env.createCourse(t, "Archived")
	item := env.addVideo(t, course.ID, "Lecture 1")

	require.NoError(t, env.svc.UpdateCourseStatus(ctx, course.ID, courseware.CourseStatusArchived))

	_, err := env.svc.RemoveContent(ctx, courseware.RemoveContentRequest{
		ContentID:   item.ID,
		RequestedBy: env.admin,
	})
	assert.ErrorIs(t, err, courseware.ErrCourseArchived)

	_, err = env.svc.UpdateContentMeta(ctx, courseware.UpdateContentMetaRequest{
		ContentID: item.ID,
		Title:     "Renamed",
	})
	assert.ErrorIs(t, err, courseware.ErrCourseArchived, "metadata edits must respect the archive too")
}

func TestListVersionContentIncludesDecisions(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	course := env.createCourse(t, "Listing")
	env.addVideo(t, course.ID, "Lecture 1")
	env.addVideo(t, course.ID, "Lecture 2")

	learner := uuid.New()
	env.purchase(t, learner, course.ID)

	contents, err := env.svc.ListVersionContent(ctx, courseware.ListVersionContentRequest{
		CourseID:      course.ID,
		VersionNumber: 1,
		RequestedBy:   learner,
	})
	require.NoError(t, err)
	require.Len(t, contents, 2)
	for _, c := range contents {
		assert.Equal(t, courseware.AccessGrantedPurchased, c.Decision.State)
	}
}
