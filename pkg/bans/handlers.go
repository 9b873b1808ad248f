package bans

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quarryhost/quarry/pkg/contextkeys"
	"github.com/quarryhost/quarry/pkg/httputil"
	"github.com/quarryhost/quarry/pkg/models"
	"github.com/quarryhost/quarry/pkg/observability"
)

// Handlers exposes the moderation surface for the ban registry. Every
// route requires a moderator actor.
type Handlers struct {
	store   *Store
	catalog *Catalog
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewHandlers creates ban moderation handlers
func NewHandlers(store *Store, catalog *Catalog, logger *observability.Logger, metrics *observability.Metrics) *Handlers {
	return &Handlers{
		store:   store,
		catalog: catalog,
		logger:  logger,
		metrics: metrics,
	}
}

// RegisterRoutes registers ban moderation routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/{id}/bans", h.CreateBan).Methods("POST")
	router.HandleFunc("/users/{id}/bans", h.ListBans).Methods("GET")
	router.HandleFunc("/users/{id}/bans/active", h.ListActiveBans).Methods("GET")
	router.HandleFunc("/bans/{id}", h.RevokeBan).Methods("DELETE")
}

// CreateBanRequest is the payload for issuing a ban
type CreateBanRequest struct {
	BanType   string     `json:"ban_type"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateBan issues a new ban against a user
func (h *Handlers) CreateBan(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireModerator(w, r)
	if !ok {
		return
	}

	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req CreateBanRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	banType, valid := ParseBanType(req.BanType)
	if !valid {
		httputil.WriteBadRequest(w, "ban_type must be global, resource, or forum")
		return
	}
	if req.Reason == "" {
		httputil.WriteBadRequest(w, "reason is required")
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		httputil.WriteBadRequest(w, "expires_at must be in the future")
		return
	}

	ban := &UserBan{
		UserID:    userID,
		BanType:   banType,
		Reason:    req.Reason,
		BannedBy:  actor.ID,
		ExpiresAt: req.ExpiresAt,
	}

	if err := h.store.CreateBan(r.Context(), ban); err != nil {
		h.logger.WithError(err).Error("failed to create ban")
		httputil.WriteInternalError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"ban_id":    ban.ID,
		"user_id":   userID,
		"ban_type":  string(banType),
		"banned_by": actor.ID,
	}).Info("ban issued")

	httputil.WriteCreated(w, ban)
}

// ListBans returns every ban ever issued for a user, newest first
func (h *Handlers) ListBans(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireModerator(w, r); !ok {
		return
	}

	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	bans, err := h.store.ListUserBans(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list bans")
		httputil.WriteInternalError(w, err)
		return
	}

	if bans == nil {
		bans = []*UserBan{}
	}
	httputil.WriteSuccess(w, bans)
}

// ListActiveBans returns the bans currently in effect for a user
func (h *Handlers) ListActiveBans(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireModerator(w, r); !ok {
		return
	}

	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	bans, err := h.store.ListActiveBans(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list active bans")
		httputil.WriteInternalError(w, err)
		return
	}

	if bans == nil {
		bans = []*UserBan{}
	}
	httputil.WriteSuccess(w, bans)
}

// RevokeBan deactivates a ban
func (h *Handlers) RevokeBan(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireModerator(w, r)
	if !ok {
		return
	}

	banID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.RevokeBan(r.Context(), banID, actor.ID); err != nil {
		httputil.WriteNotFound(w, err.Error())
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"ban_id":     banID,
		"revoked_by": actor.ID,
	}).Info("ban revoked")

	httputil.WriteNoContent(w)
}

// WriteBanDenial renders a ban denial at the HTTP boundary using the
// message catalog and records the denial metric.
func (h *Handlers) WriteBanDenial(w http.ResponseWriter, banErr *BanError) {
	if h.metrics != nil {
		h.metrics.BanDenialsTotal.WithLabelValues(string(banErr.Type)).Inc()
	}
	httputil.WriteForbidden(w, h.catalog.Render(banErr))
}

func (h *Handlers) requireModerator(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	if !actor.IsMod() {
		httputil.WriteForbidden(w, "moderator role required")
		return nil, false
	}
	return actor, true
}
