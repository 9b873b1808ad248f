package collections

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

// Handlers exposes collection routes
type Handlers struct {
	store   *Store
	checker bans.Checker
	catalog *bans.Catalog
	logger  *observability.Logger
}

// NewHandlers creates collection handlers
func NewHandlers(store *Store, checker bans.Checker, catalog *bans.Catalog, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, checker: checker, catalog: catalog, logger: logger}
}

// RegisterRoutes registers collection routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/collections", h.CreateCollection).Methods("POST")
	router.HandleFunc("/collections/{id}", h.GetCollection).Methods("GET")
	router.HandleFunc("/collections/{id}", h.UpdateCollection).Methods("PATCH")
	router.HandleFunc("/collections/{id}", h.DeleteCollection).Methods("DELETE")
	router.HandleFunc("/users/{id}/collections", h.ListUserCollections).Methods("GET")
}

// CreateCollectionRequest is the payload for creating a collection
type CreateCollectionRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status,omitempty"`
	IconURL     string  `json:"icon_url,omitempty"`
	ProjectIDs  []int64 `json:"project_ids,omitempty"`
}

// CreateCollection creates a collection owned by the actor
func (h *Handlers) CreateCollection(w http.ResponseWriter, r *http.Request) {
	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	var req CreateCollectionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	collection := &models.Collection{
		UserID:      actor.ID,
		Name:        req.Name,
		Description: req.Description,
		Status:      models.CollectionStatus(req.Status),
		IconURL:     req.IconURL,
		ProjectIDs:  req.ProjectIDs,
	}

	if err := h.store.CreateCollection(r.Context(), collection); err != nil {
		h.logger.WithError(err).Error("failed to create collection")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, collection)
}

// GetCollection retrieves a collection, returning 404 when it is hidden
// from the actor.
func (h *Handlers) GetCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	collection, err := h.store.GetCollection(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrCollectionNotFound) {
			httputil.WriteNotFound(w, "collection not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	actor := contextkeys.Actor(r.Context())
	if !visibility.IsVisibleCollection(collection, actor) {
		httputil.WriteNotFound(w, "collection not found")
		return
	}
	httputil.WriteSuccess(w, collection)
}

// ListUserCollections lists a user's collections the actor may observe
func (h *Handlers) ListUserCollections(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	collections, err := h.store.ListUserCollections(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	actor := contextkeys.Actor(r.Context())
	visible := visibility.FilterVisibleCollections(collections, actor)
	if visible == nil {
		visible = []*models.Collection{}
	}
	httputil.WriteSuccess(w, visible)
}

// UpdateCollectionRequest is the payload for updating a collection
type UpdateCollectionRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Status      *string  `json:"status,omitempty"`
	IconURL     *string  `json:"icon_url,omitempty"`
	ProjectIDs  *[]int64 `json:"project_ids,omitempty"`
}

// UpdateCollection updates a collection's mutable fields
func (h *Handlers) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	collection, actor, ok := h.requireOwnable(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	var req UpdateCollectionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name != nil {
		collection.Name = *req.Name
	}
	if req.Description != nil {
		collection.Description = *req.Description
	}
	if req.Status != nil {
		collection.Status = models.CollectionStatus(*req.Status)
	}
	if req.IconURL != nil {
		collection.IconURL = *req.IconURL
	}
	if req.ProjectIDs != nil {
		collection.ProjectIDs = *req.ProjectIDs
	}

	if err := h.store.UpdateCollection(r.Context(), collection); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, collection)
}

// DeleteCollection deletes a collection
func (h *Handlers) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	collection, actor, ok := h.requireOwnable(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	if err := h.store.DeleteCollection(r.Context(), collection.ID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// requireOwnable loads the collection in the path and verifies the actor
// is its owner or a moderator. Outsiders get the same 404 a hidden
// collection produces.
func (h *Handlers) requireOwnable(w http.ResponseWriter, r *http.Request) (*models.Collection, *models.User, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, nil, false
	}

	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, nil, false
	}

	collection, err := h.store.GetCollection(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrCollectionNotFound) {
			httputil.WriteNotFound(w, "collection not found")
			return nil, nil, false
		}
		httputil.WriteInternalError(w, err)
		return nil, nil, false
	}

	if !actor.IsMod() && actor.ID != collection.UserID {
		httputil.WriteNotFound(w, "collection not found")
		return nil, nil, false
	}
	return collection, actor, true
}

// allowResourceAction enforces the resource ban before a mutation
func (h *Handlers) allowResourceAction(w http.ResponseWriter, r *http.Request, actor *models.User) bool {
	if err := h.checker.CheckResourceBan(r.Context(), actor); err != nil {
		if banErr, ok := bans.AsBanError(err); ok {
			httputil.WriteForbidden(w, h.catalog.Render(banErr))
			return false
		}
		httputil.WriteInternalError(w, err)
		return false
	}
	return true
}
