package api

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
)

type contextKey string

// RequesterIDKey carries the authenticated requester's uuid.
const RequesterIDKey contextKey = "requester_id"

// NewTokenAuth builds the JWT verifier used by the HTTP surface.
func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// RequesterExtractor resolves the authenticated requester from the
// verified JWT's sub claim and stores it on the request context. Mount
// after jwtauth.Verifier and jwtauth.Authenticator.
func RequesterExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		sub, _ := claims["sub"].(string)
		requesterID, err := uuid.Parse(sub)
		if err != nil {
			http.Error(w, "invalid subject claim", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), RequesterIDKey, requesterID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequesterID returns the authenticated requester stored by
// RequesterExtractor, or uuid.Nil when the route is unauthenticated.
func RequesterID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(RequesterIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
