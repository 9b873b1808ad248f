package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/quarryhost/quarry/pkg/bans"
	"github.com/quarryhost/quarry/pkg/contextkeys"
	"github.com/quarryhost/quarry/pkg/httputil"
	"github.com/quarryhost/quarry/pkg/observability"
	"github.com/quarryhost/quarry/pkg/users"
	"github.com/quarryhost/quarry/pkg/visibility"
)

const stateCookie = "quarry_oauth_state"

// Handlers exposes sign-in, sign-out, and OAuth app routes
type Handlers struct {
	provider   IdentityProvider
	sessions   *SessionStore
	users      *users.Store
	apps       *AppStore
	checker    bans.Checker
	catalog    *bans.Catalog
	logger     *observability.Logger
	sessionTTL time.Duration
}

// NewHandlers creates auth handlers. provider may be nil when OIDC is
// disabled; the login routes then refuse with 503.
func NewHandlers(provider IdentityProvider, sessions *SessionStore, userStore *users.Store, apps *AppStore, checker bans.Checker, catalog *bans.Catalog, logger *observability.Logger, sessionTTL time.Duration) *Handlers {
	return &Handlers{
		provider:   provider,
		sessions:   sessions,
		users:      userStore,
		apps:       apps,
		checker:    checker,
		catalog:    catalog,
		logger:     logger,
		sessionTTL: sessionTTL,
	}
}

// RegisterRoutes registers auth routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.Login).Methods("GET")
	router.HandleFunc("/auth/callback", h.Callback).Methods("GET")
	router.HandleFunc("/auth/logout", h.Logout).Methods("POST")

	router.HandleFunc("/auth/apps", h.CreateApp).Methods("POST")
	router.HandleFunc("/auth/apps", h.ListApps).Methods("GET")
	router.HandleFunc("/auth/apps/{id}", h.GetApp).Methods("GET")
	router.HandleFunc("/auth/apps/{id}", h.DeleteApp).Methods("DELETE")
}

// Login starts the OIDC code flow
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "sign-in is not configured")
		return
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	state := hex.EncodeToString(stateBytes)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// SignInResponse is the payload returned after a successful sign-in
type SignInResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      interface{} `json:"user"`
}

// Callback finishes the OIDC code flow: verify state, exchange the code,
// upsert the account, refuse globally banned users, and mint a session.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "sign-in is not configured")
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		httputil.WriteBadRequest(w, "state mismatch")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "code is required")
		return
	}

	claims, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.WithError(err).Warn("oidc exchange failed")
		httputil.WriteUnauthorized(w, "sign-in failed")
		return
	}

	user, err := h.users.UpsertOIDCUser(r.Context(), claims.Subject, claims.Username(), claims.Email, claims.Picture)
	if err != nil {
		h.logger.WithError(err).Error("failed to upsert signing-in user")
		httputil.WriteInternalError(w, err)
		return
	}

	// A global ban blocks sign-in itself, not just actions afterwards
	if err := h.checker.CheckGlobalBan(r.Context(), user); err != nil {
		if banErr, ok := bans.AsBanError(err); ok {
			httputil.WriteForbidden(w, h.catalog.Render(banErr))
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	token, session, err := h.sessions.CreateSession(r.Context(), user.ID, h.sessionTTL)
	if err != nil {
		h.logger.WithError(err).Error("failed to create session")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, SignInResponse{Token: token, ExpiresAt: session.ExpiresAt, User: user})
}

// Logout revokes the session behind the request's bearer token
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httputil.WriteUnauthorized(w, "bearer token required")
		return
	}

	if err := h.sessions.RevokeToken(r.Context(), token); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			httputil.WriteUnauthorized(w, "session not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// CreateAppRequest is the payload for registering an OAuth app
type CreateAppRequest struct {
	Name        string `json:"name"`
	RedirectURI string `json:"redirect_uri"`
}

// CreateApp registers an OAuth client app owned by the actor
func (h *Handlers) CreateApp(w http.ResponseWriter, r *http.Request) {
	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CreateAppRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" || req.RedirectURI == "" {
		httputil.WriteBadRequest(w, "name and redirect_uri are required")
		return
	}

	app := &OAuthApp{Name: req.Name, RedirectURI: req.RedirectURI, CreatedBy: actor.ID}
	if err := h.apps.CreateApp(r.Context(), app); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, app)
}

// ListApps lists the actor's OAuth apps
func (h *Handlers) ListApps(w http.ResponseWriter, r *http.Request) {
	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	apps, err := h.apps.ListUserApps(r.Context(), actor.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if apps == nil {
		apps = []*OAuthApp{}
	}
	httputil.WriteSuccess(w, apps)
}

// GetApp retrieves an OAuth app the actor is authorized for
func (h *Handlers) GetApp(w http.ResponseWriter, r *http.Request) {
	app, ok := h.authorizedApp(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, app)
}

// DeleteApp removes an OAuth app. Requires identity even though the
// authorization policy passes anonymous read paths.
func (h *Handlers) DeleteApp(w http.ResponseWriter, r *http.Request) {
	if contextkeys.Actor(r.Context()) == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	app, ok := h.authorizedApp(w, r)
	if !ok {
		return
	}

	if err := h.apps.DeleteApp(r.Context(), app.ID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) authorizedApp(w http.ResponseWriter, r *http.Request) (*OAuthApp, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}

	app, err := h.apps.GetApp(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrAppNotFound) {
			httputil.WriteNotFound(w, "oauth app not found")
			return nil, false
		}
		httputil.WriteInternalError(w, err)
		return nil, false
	}

	actor := contextkeys.Actor(r.Context())
	if err := app.ValidateAuthorized(actor); err != nil {
		if visibility.IsAuthorizationError(err) {
			httputil.WriteForbidden(w, err.Error())
			return nil, false
		}
		httputil.WriteInternalError(w, err)
		return nil, false
	}
	return app, true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
