package projects

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quarryhost/quarry/pkg/bans"
	"github.com/quarryhost/quarry/pkg/contextkeys"
	"github.com/quarryhost/quarry/pkg/httputil"
	"github.com/quarryhost/quarry/pkg/models"
	"github.com/quarryhost/quarry/pkg/observability"
	"github.com/quarryhost/quarry/pkg/visibility"
)

// maxVersionFileSize caps uploaded version files at 512 MiB.
const maxVersionFileSize = 512 << 20

const defaultListLimit = 50

// FileStore persists version files by content hash
type FileStore interface {
	PutVersionFile(ctx context.Context, content []byte, contentType string) (hash string, key string, err error)
}

// Invalidator evicts cached project rows after mutations
type Invalidator interface {
	Invalidate(ctx context.Context, id int64) error
}

// Handlers exposes project and version routes
type Handlers struct {
	store       *Store
	filter      *visibility.Filter
	checker     bans.Checker
	catalog     *bans.Catalog
	files       FileStore
	cache       Invalidator
	logger      *observability.Logger
	maxFileSize int64
}

// NewHandlers creates project handlers. files and cache may be nil when
// object storage or caching is disabled.
func NewHandlers(store *Store, filter *visibility.Filter, checker bans.Checker, catalog *bans.Catalog, files FileStore, cache Invalidator, logger *observability.Logger) *Handlers {
	return &Handlers{
		store:       store,
		filter:      filter,
		checker:     checker,
		catalog:     catalog,
		files:       files,
		cache:       cache,
		logger:      logger,
		maxFileSize: maxVersionFileSize,
	}
}

// validVersionStatus reports whether s is one of the declared version
// statuses. Client-supplied statuses are rejected otherwise; unknown
// strings would read as hidden and quietly vanish from listings.
func validVersionStatus(s models.VersionStatus) bool {
	switch s {
	case models.VersionStatusListed, models.VersionStatusArchived, models.VersionStatusDraft,
		models.VersionStatusUnlisted, models.VersionStatusScheduled:
		return true
	default:
		return false
	}
}

// RegisterRoutes registers project and version routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/projects", h.ListProjects).Methods("GET")
	router.HandleFunc("/projects", h.CreateProject).Methods("POST")
	router.HandleFunc("/projects/moderation", h.ListModerationQueue).Methods("GET")
	router.HandleFunc("/projects/{id}", h.GetProject).Methods("GET")
	router.HandleFunc("/projects/{id}", h.UpdateProject).Methods("PATCH")
	router.HandleFunc("/projects/{id}", h.DeleteProject).Methods("DELETE")
	router.HandleFunc("/projects/{id}/status", h.UpdateProjectStatus).Methods("POST")
	router.HandleFunc("/projects/{id}/versions", h.ListVersions).Methods("GET")
	router.HandleFunc("/projects/{id}/versions", h.PublishVersion).Methods("POST")
	router.HandleFunc("/projects/{id}/report", h.ReportProject).Methods("POST")

	router.HandleFunc("/versions/{id}", h.GetVersion).Methods("GET")
	router.HandleFunc("/versions/{id}", h.UpdateVersion).Methods("PATCH")
	router.HandleFunc("/versions/{id}", h.DeleteVersion).Methods("DELETE")
	router.HandleFunc("/versions/{id}/download", h.DownloadVersion).Methods("POST")
}

// CreateProjectRequest is the payload for creating a project
type CreateProjectRequest struct {
	Slug           string `json:"slug"`
	Title          string `json:"title"`
	Summary        string `json:"summary,omitempty"`
	IconURL        string `json:"icon_url,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`
}

// CreateProject creates a draft project owned by the actor
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	var req CreateProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Slug == "" || req.Title == "" {
		httputil.WriteBadRequest(w, "slug and title are required")
		return
	}

	project := &models.Project{
		Slug:           req.Slug,
		Title:          req.Title,
		Summary:        req.Summary,
		IconURL:        req.IconURL,
		OrganizationID: req.OrganizationID,
	}

	if err := h.store.CreateProject(r.Context(), project, actor.ID); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		h.logger.WithError(err).Error("failed to create project")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, project)
}

// ListProjects serves the listing surface. With ?ids= it resolves the
// requested projects directly; without, it pages through searchable
// projects. Both paths run the batch visibility filter, the former in
// direct-link mode, the latter hiding unlisted projects.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	actor := contextkeys.Actor(r.Context())

	var (
		candidates   []*models.Project
		hideUnlisted bool
		err          error
	)
	if r.URL.Query().Get("ids") != "" {
		ids, parseErr := httputil.ParseQueryIDs(r, "ids")
		if parseErr != nil {
			httputil.WriteBadRequest(w, parseErr.Error())
			return
		}
		candidates, err = h.store.GetProjects(r.Context(), ids)
	} else {
		hideUnlisted = true
		candidates, err = h.store.ListSearchableProjects(r.Context(), defaultListLimit, 0)
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to load projects")
		httputil.WriteInternalError(w, err)
		return
	}

	visibleIDs, err := h.filter.FilterVisibleProjectIDs(r.Context(), candidates, actor, hideUnlisted)
	if err != nil {
		h.logger.WithError(err).Error("failed to filter projects")
		httputil.WriteInternalError(w, err)
		return
	}

	visibleSet := make(map[int64]struct{}, len(visibleIDs))
	for _, id := range visibleIDs {
		visibleSet[id] = struct{}{}
	}
	visible := make([]*models.Project, 0, len(visibleIDs))
	for _, project := range candidates {
		if _, ok := visibleSet[project.ID]; ok {
			visible = append(visible, project)
		}
	}

	httputil.WriteSuccess(w, visible)
}

// ListModerationQueue lists projects awaiting review. Moderators only.
func (h *Handlers) ListModerationQueue(w http.ResponseWriter, r *http.Request) {
	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if !actor.IsMod() {
		httputil.WriteForbidden(w, "moderator role required")
		return
	}

	queue, err := h.store.ListModerationQueue(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if queue == nil {
		queue = []*models.Project{}
	}
	httputil.WriteSuccess(w, queue)
}

// GetProject retrieves a single project, returning 404 when the actor may
// not observe it. Direct-link access: unlisted projects resolve.
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.visibleProject(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, project)
}

// UpdateProjectRequest is the payload for updating a project
type UpdateProjectRequest struct {
	Title          *string `json:"title,omitempty"`
	Summary        *string `json:"summary,omitempty"`
	IconURL        *string `json:"icon_url,omitempty"`
	OrganizationID *int64  `json:"organization_id,omitempty"`
}

// UpdateProject updates a project's mutable fields
func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	project, actor, ok := h.requireEditable(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	var req UpdateProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.Title != nil {
		project.Title = *req.Title
	}
	if req.Summary != nil {
		project.Summary = *req.Summary
	}
	if req.IconURL != nil {
		project.IconURL = *req.IconURL
	}
	if req.OrganizationID != nil {
		project.OrganizationID = req.OrganizationID
	}

	if err := h.store.UpdateProject(r.Context(), project); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.invalidate(r.Context(), project.ID)
	httputil.WriteSuccess(w, project)
}

// UpdateStatusRequest is the payload for a status transition
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateProjectStatus moves a project through its lifecycle. Moderators
// may set any status; team members are limited to the transitions they
// can perform themselves (submitting for review, archiving, relisting).
func (h *Handlers) UpdateProjectStatus(w http.ResponseWriter, r *http.Request) {
	project, actor, ok := h.requireEditable(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	var req UpdateStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	status := models.ProjectStatus(req.Status)
	switch status {
	case models.ProjectStatusApproved, models.ProjectStatusArchived,
		models.ProjectStatusRejected, models.ProjectStatusDraft,
		models.ProjectStatusUnlisted, models.ProjectStatusProcessing,
		models.ProjectStatusWithheld, models.ProjectStatusScheduled,
		models.ProjectStatusPrivate:
	default:
		httputil.WriteBadRequest(w, "unknown status")
		return
	}

	if !actor.IsMod() && !CanMemberTransition(project.Status, status) {
		httputil.WriteForbidden(w, "status transition requires a moderator")
		return
	}

	if err := h.store.UpdateProjectStatus(r.Context(), project.ID, status); err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			httputil.WriteNotFound(w, "project not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	h.invalidate(r.Context(), project.ID)

	project.Status = status
	httputil.WriteSuccess(w, project)
}

// DeleteProject deletes a project and its versions
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	project, actor, ok := h.requireEditable(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	if err := h.store.DeleteProject(r.Context(), project.ID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.invalidate(r.Context(), project.ID)
	httputil.WriteNoContent(w)
}

// ListVersions lists a project's versions the actor may observe
func (h *Handlers) ListVersions(w http.ResponseWriter, r *http.Request) {
	project, ok := h.visibleProject(w, r)
	if !ok {
		return
	}

	actor := contextkeys.Actor(r.Context())
	versions, err := h.store.ListProjectVersions(r.Context(), project.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	visibleIDs, err := h.filter.FilterVisibleVersionIDs(r.Context(), versions, actor)
	if err != nil {
		h.logger.WithError(err).Error("failed to filter versions")
		httputil.WriteInternalError(w, err)
		return
	}

	visibleSet := make(map[int64]struct{}, len(visibleIDs))
	for _, id := range visibleIDs {
		visibleSet[id] = struct{}{}
	}
	visible := make([]*models.Version, 0, len(visibleIDs))
	for _, version := range versions {
		if _, ok := visibleSet[version.ID]; ok {
			visible = append(visible, version)
		}
	}

	httputil.WriteSuccess(w, visible)
}

// PublishVersion uploads a version file and creates the version row. The
// request is multipart: a "file" part with the artifact and form fields
// for the metadata. Files are stored content-addressed, so re-uploading
// identical bytes is free.
func (h *Handlers) PublishVersion(w http.ResponseWriter, r *http.Request) {
	project, actor, ok := h.requireEditable(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}
	if h.files == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "file storage is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxVersionFileSize); err != nil {
		httputil.WriteBadRequest(w, "invalid multipart form")
		return
	}

	name := r.FormValue("name")
	versionNumber := r.FormValue("version_number")
	if name == "" || versionNumber == "" {
		httputil.WriteBadRequest(w, "name and version_number are required")
		return
	}
	status := models.VersionStatusListed
	if raw := r.FormValue("status"); raw != "" {
		status = models.VersionStatus(raw)
		if !validVersionStatus(status) {
			httputil.WriteBadRequest(w, "unknown version status")
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "file part is required")
		return
	}
	defer file.Close()

	// Read one byte past the cap so an at-limit file and an over-limit
	// file are distinguishable.
	content, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if int64(len(content)) > h.maxFileSize {
		httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "version file exceeds the maximum size")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, key, err := h.files.PutVersionFile(r.Context(), content, contentType)
	if err != nil {
		h.logger.WithError(err).Error("failed to store version file")
		httputil.WriteInternalError(w, err)
		return
	}

	version := &models.Version{
		ProjectID:     project.ID,
		AuthorID:      actor.ID,
		Name:          name,
		VersionNumber: versionNumber,
		Changelog:     r.FormValue("changelog"),
		Status:        status,
		FileURL:       key,
		FileSize:      int64(len(content)),
	}
	if err := h.store.CreateVersion(r.Context(), version); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, version)
}

// GetVersion retrieves a single version, returning 404 when the actor may
// not observe it or its owning project.
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, ok := h.visibleVersion(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, version)
}

// UpdateVersionRequest is the payload for updating a version
type UpdateVersionRequest struct {
	Name      *string `json:"name,omitempty"`
	Changelog *string `json:"changelog,omitempty"`
	Status    *string `json:"status,omitempty"`
}

// UpdateVersion updates a version's mutable fields
func (h *Handlers) UpdateVersion(w http.ResponseWriter, r *http.Request) {
	version, actor, ok := h.requireEditableVersion(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	var req UpdateVersionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name != nil {
		version.Name = *req.Name
	}
	if req.Changelog != nil {
		version.Changelog = *req.Changelog
	}
	if req.Status != nil {
		status := models.VersionStatus(*req.Status)
		if !validVersionStatus(status) {
			httputil.WriteBadRequest(w, "unknown version status")
			return
		}
		version.Status = status
	}

	if err := h.store.UpdateVersion(r.Context(), version); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, version)
}

// DeleteVersion removes a version
func (h *Handlers) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	version, actor, ok := h.requireEditableVersion(w, r)
	if !ok {
		return
	}
	if !h.allowResourceAction(w, r, actor) {
		return
	}

	if err := h.store.DeleteVersion(r.Context(), version.ID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// DownloadVersion records a download and returns the file location
func (h *Handlers) DownloadVersion(w http.ResponseWriter, r *http.Request) {
	version, ok := h.visibleVersion(w, r)
	if !ok {
		return
	}

	if err := h.store.IncrementDownloads(r.Context(), version.ID); err != nil {
		h.logger.WithError(err).Warn("failed to count download")
	}

	httputil.WriteSuccess(w, map[string]string{"file_url": version.FileURL})
}

// visibleProject loads the project in the path and applies the visibility
// gate, writing 404 for both missing and hidden projects.
func (h *Handlers) visibleProject(w http.ResponseWriter, r *http.Request) (*models.Project, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			httputil.WriteNotFound(w, "project not found")
			return nil, false
		}
		httputil.WriteInternalError(w, err)
		return nil, false
	}

	actor := contextkeys.Actor(r.Context())
	visible, err := h.filter.IsVisibleProject(r.Context(), project, actor, false)
	if err != nil {
		h.logger.WithError(err).Error("failed to check project visibility")
		httputil.WriteInternalError(w, err)
		return nil, false
	}
	if !visible {
		// Hidden projects are indistinguishable from missing ones
		httputil.WriteNotFound(w, "project not found")
		return nil, false
	}
	return project, true
}

// requireEditable loads the project in the path and verifies the actor
// may mutate it: a team member (directly or through the owning
// organization) or a moderator. Outsiders get the same 404 a hidden
// project produces.
func (h *Handlers) requireEditable(w http.ResponseWriter, r *http.Request) (*models.Project, *models.User, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, nil, false
	}

	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, nil, false
	}

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			httputil.WriteNotFound(w, "project not found")
			return nil, nil, false
		}
		httputil.WriteInternalError(w, err)
		return nil, nil, false
	}

	if actor.IsMod() {
		return project, actor, true
	}

	member, err := h.filter.IsTeamMemberProject(r.Context(), project, actor)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return nil, nil, false
	}
	if !member {
		httputil.WriteNotFound(w, "project not found")
		return nil, nil, false
	}
	return project, actor, true
}

func (h *Handlers) requireEditableVersion(w http.ResponseWriter, r *http.Request) (*models.Version, *models.User, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, nil, false
	}

	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, nil, false
	}

	version, err := h.store.GetVersion(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrVersionNotFound) {
			httputil.WriteNotFound(w, "version not found")
			return nil, nil, false
		}
		httputil.WriteInternalError(w, err)
		return nil, nil, false
	}

	if actor.IsMod() {
		return version, actor, true
	}

	member, err := h.filter.IsTeamMemberVersion(r.Context(), version, actor)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return nil, nil, false
	}
	if !member {
		httputil.WriteNotFound(w, "version not found")
		return nil, nil, false
	}
	return version, actor, true
}

func (h *Handlers) visibleVersion(w http.ResponseWriter, r *http.Request) (*models.Version, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}

	version, err := h.store.GetVersion(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrVersionNotFound) {
			httputil.WriteNotFound(w, "version not found")
			return nil, false
		}
		httputil.WriteInternalError(w, err)
		return nil, false
	}

	actor := contextkeys.Actor(r.Context())
	visible, err := h.filter.IsVisibleVersion(r.Context(), version, actor)
	if err != nil {
		h.logger.WithError(err).Error("failed to check version visibility")
		httputil.WriteInternalError(w, err)
		return nil, false
	}
	if !visible {
		httputil.WriteNotFound(w, "version not found")
		return nil, false
	}
	return version, true
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

func (h *Handlers) invalidate(ctx context.Context, id int64) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, id); err != nil {
		h.logger.WithError(err).WithField("project_id", id).Warn("failed to invalidate project cache")
	}
}
