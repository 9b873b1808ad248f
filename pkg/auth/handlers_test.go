package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryhost/quarry/pkg/bans"
	"github.com/quarryhost/quarry/pkg/contextkeys"
	"github.com/quarryhost/quarry/pkg/models"
	"github.com/quarryhost/quarry/pkg/observability"
	"github.com/quarryhost/quarry/pkg/users"
)

// stubProvider is a canned IdentityProvider
type stubProvider struct {
	claims      *Claims
	exchangeErr error
}

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://issuer.example/authorize?state=" + state
}

func (p *stubProvider) Exchange(ctx context.Context, code string) (*Claims, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.claims, nil
}

// stubChecker lets tests force ban outcomes
type stubChecker struct {
	globalErr error
}

func (s *stubChecker) CheckGlobalBan(ctx context.Context, actor *models.User) error {
	return s.globalErr
}
func (s *stubChecker) CheckResourceBan(ctx context.Context, actor *models.User) error { return nil }
func (s *stubChecker) CheckForumBan(ctx context.Context, actor *models.User) error    { return nil }

func newTestHandlers(t *testing.T, provider IdentityProvider, checker bans.Checker) (sqlmock.Sqlmock, *mux.Router) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, os.Stderr)
	handlers := NewHandlers(provider, NewSessionStore(db), users.NewStore(db), NewAppStore(db),
		checker, bans.NewCatalog(logger), logger, 14*24*time.Hour)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	return mock, router
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "username", "email", "avatar_url", "bio", "role", "badges", "created_at", "last_login",
	}).AddRow(int64(3), "alex", "alex@example.com", "", "", "developer", int64(0), time.Now(), time.Now())
}

func callbackRequest(state string) *http.Request {
	req := httptest.NewRequest("GET", "/auth/callback?state="+state+"&code=authcode", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "state123"})
	return req
}

func TestLogin(t *testing.T) {
	t.Run("redirects to the issuer with a state cookie", func(t *testing.T) {
		_, router := newTestHandlers(t, &stubProvider{}, &stubChecker{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/auth/login", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Contains(t, rec.Header().Get("Location"), "https://issuer.example/authorize")

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, stateCookie, cookies[0].Name)
		assert.NotEmpty(t, cookies[0].Value)
		assert.Contains(t, rec.Header().Get("Location"), cookies[0].Value)
	})

	t.Run("503 when sign-in is not configured", func(t *testing.T) {
		_, router := newTestHandlers(t, nil, &stubChecker{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/auth/login", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestCallback(t *testing.T) {
	claims := &Claims{Subject: "issuer|abc123", PreferredUsername: "alex", Email: "alex@example.com"}

	t.Run("signs in and returns a session token", func(t *testing.T) {
		mock, router := newTestHandlers(t, &stubProvider{claims: claims}, &stubChecker{})

		mock.ExpectQuery(`INSERT INTO users \(oidc_subject`).
			WillReturnRows(userRows())
		mock.ExpectQuery(`INSERT INTO sessions`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "expires_at"}).
				AddRow(int64(5), time.Now(), time.Now().Add(time.Hour)))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, callbackRequest("state123"))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp SignInResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Token, TokenPrefix)
	})

	t.Run("rejects state mismatch", func(t *testing.T) {
		mock, router := newTestHandlers(t, &stubProvider{claims: claims}, &stubChecker{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, callbackRequest("other-state"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("globally banned user cannot sign in", func(t *testing.T) {
		banErr := &bans.BanError{Type: bans.BanTypeGlobal, Reason: "abuse"}
		mock, router := newTestHandlers(t, &stubProvider{claims: claims}, &stubChecker{globalErr: banErr})

		mock.ExpectQuery(`INSERT INTO users \(oidc_subject`).
			WillReturnRows(userRows())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, callbackRequest("state123"))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "banned from the platform")
		assert.NoError(t, mock.ExpectationsWereMet(), "no session row for a banned user")
	})

	t.Run("failed exchange is 401", func(t *testing.T) {
		_, router := newTestHandlers(t,
			&stubProvider{exchangeErr: errors.New("issuer unreachable")}, &stubChecker{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, callbackRequest("state123"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLogout(t *testing.T) {
	t.Run("revokes the bearer session", func(t *testing.T) {
		mock, router := newTestHandlers(t, &stubProvider{}, &stubChecker{})
		token, hash, _, err := NewTokenGenerator().GenerateToken()
		require.NoError(t, err)

		mock.ExpectExec(`DELETE FROM sessions WHERE token_hash = \$1`).
			WithArgs(hash).
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := httptest.NewRequest("POST", "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing token is 401", func(t *testing.T) {
		_, router := newTestHandlers(t, &stubProvider{}, &stubChecker{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/auth/logout", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAppHandlers(t *testing.T) {
	owner := &models.User{ID: 3, Role: models.RoleDeveloper}

	withActor := func(req *http.Request, actor *models.User) *http.Request {
		return req.WithContext(contextkeys.WithActor(context.Background(), actor))
	}

	t.Run("create requires authentication", func(t *testing.T) {
		_, router := newTestHandlers(t, &stubProvider{}, &stubChecker{})

		body, _ := json.Marshal(CreateAppRequest{Name: "Mod Manager", RedirectURI: "https://modman.example/cb"})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/auth/apps", bytes.NewReader(body)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("create returns the client id", func(t *testing.T) {
		mock, router := newTestHandlers(t, &stubProvider{}, &stubChecker{})
		mock.ExpectQuery(`INSERT INTO oauth_apps`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(4), time.Now()))

		body, _ := json.Marshal(CreateAppRequest{Name: "Mod Manager", RedirectURI: "https://modman.example/cb"})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withActor(httptest.NewRequest("POST", "/auth/apps", bytes.NewReader(body)), owner))

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), "client_id")
	})

	t.Run("delete by a stranger is 403 with a reason", func(t *testing.T) {
		mock, router := newTestHandlers(t, &stubProvider{}, &stubChecker{})
		mock.ExpectQuery(`FROM oauth_apps WHERE id = \$1`).
			WithArgs(int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "client_id", "redirect_uri", "created_by", "created_at"}).
				AddRow(int64(4), "Mod Manager", "deadbeef", "https://modman.example/cb", int64(3), time.Now()))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withActor(httptest.NewRequest("DELETE", "/auth/apps/4", nil),
			&models.User{ID: 8, Role: models.RoleDeveloper}))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "not authorized")
	})

	t.Run("anonymous read passes the policy", func(t *testing.T) {
		mock, router := newTestHandlers(t, &stubProvider{}, &stubChecker{})
		mock.ExpectQuery(`FROM oauth_apps WHERE id = \$1`).
			WithArgs(int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "client_id", "redirect_uri", "created_by", "created_at"}).
				AddRow(int64(4), "Mod Manager", "deadbeef", "https://modman.example/cb", int64(3), time.Now()))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/auth/apps/4", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
