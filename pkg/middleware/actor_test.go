package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quarryhost/quarry/pkg/auth"
	"github.com/quarryhost/quarry/pkg/contextkeys"
	"github.com/quarryhost/quarry/pkg/models"
	"github.com/quarryhost/quarry/pkg/observability"
)

type stubResolver struct {
	user *models.User
	err  error
}

func (s *stubResolver) ResolveToken(ctx context.Context, token string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func actorCapture(captured **models.User) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = contextkeys.Actor(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, os.Stderr)
}

func TestActorMiddleware(t *testing.T) {
	t.Run("no header means anonymous", func(t *testing.T) {
		var actor *models.User
		m := NewActorMiddleware(&stubResolver{}, testLogger())

		rec := httptest.NewRecorder()
		m.Handler(actorCapture(&actor)).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, actor)
	})

	t.Run("valid token resolves the actor", func(t *testing.T) {
		var actor *models.User
		m := NewActorMiddleware(&stubResolver{user: &models.User{ID: 3, Role: models.RoleDeveloper}}, testLogger())

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer quarry_sometoken")
		rec := httptest.NewRecorder()
		m.Handler(actorCapture(&actor)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotNil(t, actor)
		assert.Equal(t, int64(3), actor.ID)
	})

	t.Run("invalid token is 401, not anonymous", func(t *testing.T) {
		var actor *models.User
		called := false
		m := NewActorMiddleware(&stubResolver{err: auth.ErrSessionNotFound}, testLogger())

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer quarry_expired")
		rec := httptest.NewRecorder()
		m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		})).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called, "handler must not run with a bad credential")
		assert.Nil(t, actor)
	})

	t.Run("malformed header is 401", func(t *testing.T) {
		m := NewActorMiddleware(&stubResolver{}, testLogger())

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		m.Handler(actorCapture(new(*models.User))).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequestID(t *testing.T) {
	t.Run("generates an id", func(t *testing.T) {
		var got string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = contextkeys.RequestID(r.Context())
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

		assert.NotEmpty(t, got)
		assert.Equal(t, got, rec.Header().Get("X-Request-ID"))
	})

	t.Run("honors an upstream id", func(t *testing.T) {
		var got string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = contextkeys.RequestID(r.Context())
		}))

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Request-ID", "upstream-id")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "upstream-id", got)
	})
}
