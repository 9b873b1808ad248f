package orgs

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quarryhost/quarry/pkg/bans"
	"github.com/quarryhost/quarry/pkg/contextkeys"
	"github.com/quarryhost/quarry/pkg/httputil"
	"github.com/quarryhost/quarry/pkg/models"
	"github.com/quarryhost/quarry/pkg/observability"
	"github.com/quarryhost/quarry/pkg/visibility"
)

// Handlers exposes organization and membership routes
type Handlers struct {
	service *Service
	filter  *visibility.Filter
	checker bans.Checker
	catalog *bans.Catalog
	logger  *observability.Logger
}

// NewHandlers creates organization handlers
func NewHandlers(service *Service, filter *visibility.Filter, checker bans.Checker, catalog *bans.Catalog, logger *observability.Logger) *Handlers {
	return &Handlers{
		service: service,
		filter:  filter,
		checker: checker,
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes registers organization routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs", h.CreateOrganization).Methods("POST")
	router.HandleFunc("/orgs/{id}", h.GetOrganization).Methods("GET")
	router.HandleFunc("/orgs/{id}", h.UpdateOrganization).Methods("PATCH")
	router.HandleFunc("/orgs/{id}", h.DeleteOrganization).Methods("DELETE")

	router.HandleFunc("/orgs/{id}/members", h.ListMembers).Methods("GET")
	router.HandleFunc("/orgs/{id}/members", h.InviteMember).Methods("POST")
	router.HandleFunc("/orgs/{id}/members/accept", h.AcceptInvite).Methods("POST")
	router.HandleFunc("/orgs/{id}/members/{user_id}", h.UpdateMember).Methods("PATCH")
	router.HandleFunc("/orgs/{id}/members/{user_id}", h.RemoveMember).Methods("DELETE")
}

// CreateOrgRequest is the payload for creating an organization
type CreateOrgRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	IconURL     string `json:"icon_url,omitempty"`
}

// CreateOrganization creates a new organization owned by the actor
func (h *Handlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	var req CreateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	org := &models.Organization{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		IconURL:     req.IconURL,
	}

	if err := h.service.CreateOrganization(r.Context(), org, actor.ID); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		h.logger.WithError(err).Error("failed to create organization")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, org)
}

// GetOrganization retrieves an organization, returning 404 when the
// derived visibility rules hide it from the actor.
func (h *Handlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	org, err := h.service.GetOrganization(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrOrgNotFound) {
			httputil.WriteNotFound(w, "organization not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	actor := contextkeys.Actor(r.Context())
	visible, err := h.filter.IsVisibleOrganization(r.Context(), org, actor)
	if err != nil {
		h.logger.WithError(err).Error("failed to check organization visibility")
		httputil.WriteInternalError(w, err)
		return
	}
	if !visible {
		// Hidden orgs are indistinguishable from missing ones
		httputil.WriteNotFound(w, "organization not found")
		return
	}

	httputil.WriteSuccess(w, org)
}

// UpdateOrgRequest is the payload for updating an organization
type UpdateOrgRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IconURL     *string `json:"icon_url,omitempty"`
}

// UpdateOrganization updates an organization's mutable fields
func (h *Handlers) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	org, actor, ok := h.requireManageable(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	var req UpdateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.Name != nil {
		org.Name = *req.Name
	}
	if req.Description != nil {
		org.Description = *req.Description
	}
	if req.IconURL != nil {
		org.IconURL = *req.IconURL
	}

	if err := h.service.UpdateOrganization(r.Context(), org); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// DeleteOrganization deletes an organization
func (h *Handlers) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	org, actor, ok := h.requireManageable(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	if err := h.service.DeleteOrganization(r.Context(), org.ID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListMembers lists the members of an organization's team
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	org, err := h.service.GetOrganization(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrOrgNotFound) {
			httputil.WriteNotFound(w, "organization not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	actor := contextkeys.Actor(r.Context())
	visible, err := h.filter.IsVisibleOrganization(r.Context(), org, actor)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !visible {
		httputil.WriteNotFound(w, "organization not found")
		return
	}

	members, err := h.service.ListMembers(r.Context(), org.TeamID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if members == nil {
		members = []*models.TeamMember{}
	}
	httputil.WriteSuccess(w, members)
}

// InviteMemberRequest is the payload for inviting a member
type InviteMemberRequest struct {
	UserID   int64  `json:"user_id"`
	Role     string `json:"role"`
	Ordering int64  `json:"ordering,omitempty"`
}

// InviteMember adds a pending membership to the organization's team
func (h *Handlers) InviteMember(w http.ResponseWriter, r *http.Request) {
	org, actor, ok := h.requireManageable(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	var req InviteMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	if req.Role == "" {
		req.Role = "Member"
	}

	member, err := h.service.InviteMember(r.Context(), org.TeamID, req.UserID, req.Role, req.Ordering)
	if err != nil {
		if errors.Is(err, ErrAlreadyMember) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, member)
}

// AcceptInvite accepts the actor's pending invitation
func (h *Handlers) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	org, err := h.service.GetOrganization(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrOrgNotFound) {
			httputil.WriteNotFound(w, "organization not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	if err := h.service.AcceptInvite(r.Context(), org.TeamID, actor.ID); err != nil {
		if errors.Is(err, ErrNoPendingInvite) {
			httputil.WriteNotFound(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// UpdateMemberRequest is the payload for changing a member's role
type UpdateMemberRequest struct {
	Role string `json:"role"`
}

// UpdateMember changes a member's role
func (h *Handlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	org, actor, ok := h.requireManageable(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var req UpdateMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Role == "" {
		httputil.WriteBadRequest(w, "role is required")
		return
	}

	if err := h.service.UpdateMemberRole(r.Context(), org.TeamID, userID, req.Role); err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			httputil.WriteNotFound(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RemoveMember removes a member from the team
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	org, actor, ok := h.requireManageable(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), org.TeamID, userID); err != nil {
		switch {
		case errors.Is(err, ErrCannotRemoveOwner):
			httputil.WriteBadRequest(w, err.Error())
		case errors.Is(err, ErrMemberNotFound):
			httputil.WriteNotFound(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}
	httputil.WriteNoContent(w)
}

// requireManageable loads the org and checks the actor may manage it:
// the team owner or a moderator.
func (h *Handlers) requireManageable(w http.ResponseWriter, r *http.Request) (*models.Organization, *models.User, bool) {
	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, nil, false
	}

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, nil, false
	}

	org, err := h.service.GetOrganization(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrOrgNotFound) {
			httputil.WriteNotFound(w, "organization not found")
			return nil, nil, false
		}
		httputil.WriteInternalError(w, err)
		return nil, nil, false
	}

	if actor.IsMod() {
		return org, actor, true
	}

	member, err := h.service.GetMember(r.Context(), org.TeamID, actor.ID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			httputil.WriteNotFound(w, "organization not found")
			return nil, nil, false
		}
		httputil.WriteInternalError(w, err)
		return nil, nil, false
	}
	if !member.IsOwner {
		httputil.WriteForbidden(w, "only the organization owner can do that")
		return nil, nil, false
	}

	return org, actor, true
}

// allowResourceAction enforces the ban registry on mutating routes
func (h *Handlers) allowResourceAction(w http.ResponseWriter, r *http.Request, actor *models.User) bool {
	err := h.checker.CheckResourceBan(r.Context(), actor)
	if err == nil {
		return true
	}
	if banErr, ok := bans.AsBanError(err); ok {
		httputil.WriteForbidden(w, h.catalog.Render(banErr))
		return false
	}
	h.logger.WithError(err).Error("ban check failed")
	httputil.WriteInternalError(w, err)
	return false
}
