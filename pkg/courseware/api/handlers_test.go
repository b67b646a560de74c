package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillstream/courseware/pkg/courseware"
	"github.com/skillstream/courseware/pkg/courseware/repo/memory"
	memorystorage "github.com/skillstream/courseware/pkg/courseware/storage/memory"
)

type apiTestEnv struct {
	server *httptest.Server
	svc    courseware.Service
	admin  uuid.UUID
}

// asRequester injects the requester id the way RequesterExtractor does,
// without standing up real JWT plumbing for every test.
func asRequester(id uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), RequesterIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func setupAPITest(t *testing.T, requester uuid.UUID) *apiTestEnv {
	t.Helper()

	admin := uuid.New()
	if requester == uuid.Nil {
		requester = admin
	}

	svc, err := courseware.New(
		courseware.WithRepository(memory.New()),
		courseware.WithBlobStore("memory", memorystorage.New()),
		courseware.WithIdentity(courseware.NewStaticAdmins(admin)),
	)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(asRequester(requester))
	r.Mount("/courses", NewCourseHandler(svc).Routes())
	r.Mount("/contents", NewContentHandler(svc).Routes())

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &apiTestEnv{server: server, svc: svc, admin: admin}
}

func (e *apiTestEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *apiTestEnv) createCourse(t *testing.T, title string) courseware.Course {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/courses", CreateCourseRequest{
		Title:      title,
		PriceCents: 2500,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeJSON[courseware.Course](t, resp)
}

func (e *apiTestEnv) uploadAsset(t *testing.T, courseID uuid.UUID, fileName, body string) courseware.BlobRef {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/courses/%s/assets", e.server.URL, courseID),
		strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("X-File-Name", fileName)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeJSON[courseware.BlobRef](t, resp)
}

func (e *apiTestEnv) addContent(t *testing.T, courseID uuid.UUID, title string, ref courseware.BlobRef) courseware.ContentItem {
	t.Helper()
	resp := e.do(t, http.MethodPost, fmt.Sprintf("/courses/%s/contents", courseID), AddContentRequest{
		Kind:  string(courseware.ContentKindVideo),
		Title: title,
		Blob:  ref,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeJSON[courseware.ContentItem](t, resp)
}

func TestCreateCourseEndpoint(t *testing.T) {
	env := setupAPITest(t, uuid.Nil)

	course := env.createCourse(t, "HTTP Course")
	assert.Equal(t, "HTTP Course", course.Title)
	assert.Equal(t, 1, course.CurrentVersion)
	assert.Equal(t, env.admin, course.CreatedBy)
}

func TestCreateCourseRequiresTitle(t *testing.T) {
	env := setupAPITest(t, uuid.Nil)

	resp := env.do(t, http.MethodPost, "/courses", CreateCourseRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetCourseEndpoint(t *testing.T) {
	env := setupAPITest(t, uuid.Nil)
	created := env.createCourse(t, "Lookup")

	resp := env.do(t, http.MethodGet, "/courses/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeJSON[courseware.Course](t, resp)
	assert.Equal(t, created.ID, got.ID)

	resp = env.do(t, http.MethodGet, "/courses/"+uuid.NewString(), nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/courses/not-a-uuid", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadAndAddContentEndpoint(t *testing.T) {
	env := setupAPITest(t, uuid.Nil)
	course := env.createCourse(t, "Upload Flow")

	ref := env.uploadAsset(t, course.ID, "lecture.mp4", "some video bytes")
	assert.Equal(t, int64(16), ref.SizeBytes)
	assert.Equal(t, "video/mp4", ref.MimeType)

	item := env.addContent(t, course.ID, "Lecture 1", ref)
	assert.Equal(t, 1, item.VersionNumber)
	assert.Equal(t, ref.Key, item.BlobKey)
}

func TestAddContentUnknownBlobIsBadRequest(t *testing.T) {
	env := setupAPITest(t, uuid.Nil)
	course := env.createCourse(t, "Bad Blob")

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/courses/%s/contents", course.ID), AddContentRequest{
		Kind:  string(courseware.ContentKindVideo),
		Title: "Ghost",
		Blob:  courseware.BlobRef{Backend: "memory", Key: "missing"},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddContentInvalidKindIsBadRequest(t *testing.T) {
	env := setupAPITest(t, uuid.Nil)
	course := env.createCourse(t, "Bad Kind")
	ref := env.uploadAsset(t, course.ID, "episode.mp3", "audio bytes")

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/courses/%s/contents", course.ID), AddContentRequest{
		Kind:  "podcast",
		Title: "Episode 1",
		Blob:  ref,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeJSON[ErrorResponse](t, resp)
	assert.Contains(t, body.Error, "invalid content kind")
}

func TestPurchaseThenEditForksEndpoint(t *testing.T) {
	env := setupAPITest(t, uuid.Nil)
	course := env.createCourse(t, "Fork Over HTTP")
	ref := env.uploadAsset(t, course.ID, "l1.mp4", "bytes")
	env.addContent(t, course.ID, "Lecture 1", ref)

	// Purchase as a learner through the service directly; the admin cannot
	// purchase through the handler while impersonating the requester.
	learner := uuid.New()
	_, err := env.svc.RecordPurchase(context.Background(), courseware.RecordPurchaseRequest{
		LearnerID: learner,
		CourseID:  course.ID,
	})
	require.NoError(t, err)

	ref2 := env.uploadAsset(t, course.ID, "l2.mp4", "bytes two")
	item := env.addContent(t, course.ID, "Lecture 2", ref2)
	assert.Equal(t, 2, item.VersionNumber)

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/courses/%s/versions", course.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	versions := decodeJSON[[]courseware.CourseVersion](t, resp)
	assert.Len(t, versions, 2)
}

func TestPurchaseEndpoint(t *testing.T) {
	learner := uuid.New()
	env := setupAPITest(t, learner)

	course := env.createCourse(t, "Buyable")

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/courses/%s/purchase", course.ID), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ent := decodeJSON[courseware.Entitlement](t, resp)
	assert.Equal(t, learner, ent.LearnerID)
	assert.Equal(t, 1, ent.VersionNumber)
}

func TestGetVersionEndpoint(t *testing.T) {
	env := setupAPITest(t, uuid.Nil)
	course := env.createCourse(t, "Versions")

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/courses/%s/versions/1", course.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	version := decodeJSON[courseware.CourseVersion](t, resp)
	assert.Equal(t, 1, version.VersionNumber)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/courses/%s/versions/9", course.ID), nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/courses/%s/versions/0", course.ID), nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReconcileEndpoint(t *testing.T) {
	env := setupAPITest(t, uuid.Nil)
	course := env.createCourse(t, "Reconcile Me")
	ref := env.uploadAsset(t, course.ID, "l1.mp4", "bytes")
	item := env.addContent(t, course.ID, "Lecture 1", ref)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/courses/%s/versions/1/reconcile", course.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeJSON[courseware.ReconcileResult](t, resp)
	assert.False(t, result.Drifted)
	assert.Equal(t, []uuid.UUID{item.ID}, result.ContentIDs)
}

func TestAccessAndPlaybackEndpoints(t *testing.T) {
	visitor := uuid.New()
	env := setupAPITest(t, visitor)

	// Seed as admin through the service; requester stays a plain visitor.
	ctx := context.Background()
	course, err := env.svc.CreateCourse(ctx, courseware.CreateCourseRequest{
		Title: "Gated", PriceCents: 1000, CreatedBy: env.admin,
	})
	require.NoError(t, err)
	ref, err := env.svc.UploadAsset(ctx, courseware.UploadAssetRequest{
		CourseID: course.ID, FileName: "l1.mp4", ContentType: "video/mp4",
		Reader: strings.NewReader("bytes"),
	})
	require.NoError(t, err)
	item, err := env.svc.AddContent(ctx, courseware.AddContentRequest{
		CourseID: course.ID, Kind: courseware.ContentKindVideo,
		Title: "Lecture 1", Blob: *ref, RequestedBy: env.admin,
	})
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/contents/%s/access", item.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decision := decodeJSON[courseware.AccessDecision](t, resp)
	assert.Equal(t, courseware.AccessDeniedPurchaseRequired, decision.State)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/contents/%s/playback", item.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	grant := decodeJSON[courseware.PlaybackGrant](t, resp)
	assert.Empty(t, grant.URL)

	// After purchase the same endpoint signs a URL.
	_, err = env.svc.RecordPurchase(ctx, courseware.RecordPurchaseRequest{
		LearnerID: visitor, CourseID: course.ID,
	})
	require.NoError(t, err)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/contents/%s/playback", item.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	grant = decodeJSON[courseware.PlaybackGrant](t, resp)
	assert.Equal(t, courseware.AccessGrantedPurchased, grant.Decision.State)
	assert.NotEmpty(t, grant.URL)
}

func TestRemoveContentConflictAfterFork(t *testing.T) {
	env := setupAPITest(t, uuid.Nil)
	course := env.createCourse(t, "Conflict")
	ref := env.uploadAsset(t, course.ID, "l1.mp4", "bytes")
	item := env.addContent(t, course.ID, "Lecture 1", ref)

	// Fork past the item's version, then try to remove the stale row.
	_, err := env.svc.RecordPurchase(context.Background(), courseware.RecordPurchaseRequest{
		LearnerID: uuid.New(), CourseID: course.ID,
	})
	require.NoError(t, err)
	ref2 := env.uploadAsset(t, course.ID, "l2.mp4", "bytes two")
	env.addContent(t, course.ID, "Lecture 2", ref2)

	resp := env.do(t, http.MethodDelete, "/contents/"+item.ID.String(), nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUpdateCourseStatusEndpoint(t *testing.T) {
	env := setupAPITest(t, uuid.Nil)
	course := env.createCourse(t, "Status")

	resp := env.do(t, http.MethodPut, fmt.Sprintf("/courses/%s/status", course.ID),
		UpdateCourseStatusRequest{Status: "archived"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPut, fmt.Sprintf("/courses/%s/status", course.ID),
		UpdateCourseStatusRequest{Status: "bogus"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
