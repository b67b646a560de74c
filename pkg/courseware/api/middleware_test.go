package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authedRouter(tokenAuth *jwtauth.JWTAuth, probe http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(jwtauth.Verifier(tokenAuth))
	r.Use(jwtauth.Authenticator)
	r.Use(RequesterExtractor)
	r.Get("/probe", probe)
	return r
}

func TestRequesterExtractor(t *testing.T) {
	tokenAuth := NewTokenAuth("test-secret")
	subject := uuid.New()

	var seen uuid.UUID
	router := authedRouter(tokenAuth, func(w http.ResponseWriter, r *http.Request) {
		seen = RequesterID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	_, tokenString, err := tokenAuth.Encode(map[string]interface{}{"sub": subject.String()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, subject, seen)
}

func TestRequesterExtractorRejectsBadSubject(t *testing.T) {
	tokenAuth := NewTokenAuth("test-secret")

	router := authedRouter(tokenAuth, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for an invalid subject")
	})

	_, tokenString, err := tokenAuth.Encode(map[string]interface{}{"sub": "not-a-uuid"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	tokenAuth := NewTokenAuth("test-secret")

	router := authedRouter(tokenAuth, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequesterIDUnauthenticatedContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, uuid.Nil, RequesterID(req.Context()))
}
