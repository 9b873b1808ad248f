package projects

import (
	"context"
	"fmt"
	"net/http"

	"github.com/quarryhost/quarry/pkg/bans"
	"github.com/quarryhost/quarry/pkg/contextkeys"
	"github.com/quarryhost/quarry/pkg/httputil"
	"github.com/quarryhost/quarry/pkg/models"
)

// CreateReport inserts a report row against a project
func (s *Store) CreateReport(ctx context.Context, report *models.Report) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO reports (project_id, reporter_id, reason, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		report.ProjectID, report.ReporterID, report.Reason, report.Body).
		Scan(&report.ID, &report.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// ReportRequest is the payload for reporting a project
type ReportRequest struct {
	Reason string `json:"reason"`
	Body   string `json:"body,omitempty"`
}

// ReportProject files a report against a visible project. Reports are a
// forum-adjacent surface, so the gate is the forum ban, not the resource
// ban.
func (h *Handlers) ReportProject(w http.ResponseWriter, r *http.Request) {
	actor := contextkeys.Actor(r.Context())
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := h.checker.CheckForumBan(r.Context(), actor); err != nil {
		if banErr, ok := bans.AsBanError(err); ok {
			httputil.WriteForbidden(w, h.catalog.Render(banErr))
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	project, ok := h.visibleProject(w, r)
	if !ok {
		return
	}

	var req ReportRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Reason == "" {
		httputil.WriteBadRequest(w, "reason is required")
		return
	}

	report := &models.Report{
		ProjectID:  project.ID,
		ReporterID: actor.ID,
		Reason:     req.Reason,
		Body:       req.Body,
	}
	if err := h.store.CreateReport(r.Context(), report); err != nil {
		h.logger.WithError(err).Error("failed to create report")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, report)
}
