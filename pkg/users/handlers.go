package users

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quarryhost/quarry/pkg/contextkeys"
	"github.com/quarryhost/quarry/pkg/httputil"
	"github.com/quarryhost/quarry/pkg/models"
	"github.com/quarryhost/quarry/pkg/observability"
)

// Handlers exposes user account routes
type Handlers struct {
	store  *Store
	logger *observability.Logger
}

// NewHandlers creates user handlers
func NewHandlers(store *Store, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// RegisterRoutes registers user routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.ListUsers).Methods("GET")
	router.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	router.HandleFunc("/users/{id}", h.UpdateProfile).Methods("PATCH")
	router.HandleFunc("/users/{id}/role", h.UpdateRole).Methods("POST")
	router.HandleFunc("/users/{id}/badges", h.UpdateBadges).Methods("POST")
}

// GetUser retrieves a user profile. Email is visible only to the account
// owner and moderators.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	actor := contextkeys.Actor(r.Context())
	scrubEmail(user, actor)
	httputil.WriteSuccess(w, user)
}

// ListUsers resolves a batch of users by ?ids=
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	ids, err := httputil.ParseQueryIDs(r, "ids")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if len(ids) == 0 {
		httputil.WriteBadRequest(w, "ids query parameter is required")
		return
	}

	users, err := h.store.GetUsers(r.Context(), ids)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}

	actor := contextkeys.Actor(r.Context())
	for _, user := range users {
		scrubEmail(user, actor)
	}
	httputil.WriteSuccess(w, users)
}

// UpdateProfileRequest is the payload for updating a profile
type UpdateProfileRequest struct {
	Username  *string `json:"username,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// UpdateProfile updates a user's own profile. Moderators may edit anyone.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if actor.ID != id && !actor.IsMod() {
		httputil.WriteForbidden(w, "cannot edit another user's profile")
		return
	}

	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	var req UpdateProfileRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
	}

	if err := h.store.UpdateProfile(r.Context(), user); err != nil {
		h.logger.WithError(err).Error("failed to update profile")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// UpdateRoleRequest is the payload for a role change
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateRole changes a user's role. Admin only; moderators cannot mint
// other moderators.
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	switch models.Role(req.Role) {
	case models.RoleDeveloper, models.RoleModerator, models.RoleAdmin:
	default:
		httputil.WriteBadRequest(w, "unknown role")
		return
	}

	if err := h.store.UpdateRole(r.Context(), id, models.Role(req.Role)); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"user_id":  id,
		"role":     req.Role,
		"admin_id": actor.ID,
	}).Info("user role changed")
	httputil.WriteNoContent(w)
}

// UpdateBadgesRequest is the payload for a badge change
type UpdateBadgesRequest struct {
	Badges int64 `json:"badges"`
}

// UpdateBadges replaces a user's badge bitset. Admin only.
func (h *Handlers) UpdateBadges(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req UpdateBadgesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Badges < 0 {
		httputil.WriteBadRequest(w, "badges must be non-negative")
		return
	}

	if err := h.store.UpdateBadges(r.Context(), id, req.Badges); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) requireAdmin(w http.ResponseWriter, r *http.Request) (int64, *models.User, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return 0, nil, false
	}

	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return 0, nil, false
	}
	if !actor.IsAdmin() {
		httputil.WriteForbidden(w, "admin role required")
		return 0, nil, false
	}
	return id, actor, true
}

func scrubEmail(user *models.User, actor *models.User) {
	if actor.IsMod() || (actor != nil && actor.ID == user.ID) {
		return
	}
	user.Email = ""
}
