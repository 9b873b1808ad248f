package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/quarryhost/quarry/pkg/models"
)

var (
	// ErrProjectNotFound is returned when a project does not exist
	ErrProjectNotFound = errors.New("project not found")
	// ErrSlugTaken is returned when the requested slug is already in use
	ErrSlugTaken = errors.New("project slug already taken")
	// ErrInvalidTransition is returned when a status change is not allowed
	// from the project's current status
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store implements project and version operations against PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new project store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const projectColumns = `id, team_id, organization_id, slug, title, summary, status, downloads, followers, icon_url, created_at, updated_at, approved_at`

// CreateProject creates a project with a fresh team and the creator as
// its accepted owner. New projects always start as drafts.
func (s *Store) CreateProject(ctx context.Context, project *models.Project, ownerID int64) error {
	if project.Slug == "" {
		return fmt.Errorf("project slug is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var taken bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM projects WHERE slug = $1)`, project.Slug).Scan(&taken); err != nil {
		return fmt.Errorf("failed to check slug: %w", err)
	}
	if taken {
		return ErrSlugTaken
	}

	if err := tx.QueryRowContext(ctx,
		`INSERT INTO teams DEFAULT VALUES RETURNING id`).Scan(&project.TeamID); err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	project.Status = models.ProjectStatusDraft
	err = tx.QueryRowContext(ctx, `
		INSERT INTO projects (team_id, organization_id, slug, title, summary, status, icon_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		project.TeamID, project.OrganizationID, project.Slug, project.Title,
		project.Summary, project.Status, project.IconURL).
		Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id, role, is_owner, accepted, ordering)
		VALUES ($1, $2, 'Owner', TRUE, TRUE, 0)`,
		project.TeamID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to add owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID
func (s *Store) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	return s.getProject(ctx, `WHERE id = $1`, id)
}

// GetProjectBySlug retrieves a project by slug
func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error) {
	return s.getProject(ctx, `WHERE slug = $1`, slug)
}

func (s *Store) getProject(ctx context.Context, where string, arg interface{}) (*models.Project, error) {
	project := &models.Project{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects `+where, arg).Scan(
		&project.ID, &project.TeamID, &project.OrganizationID, &project.Slug,
		&project.Title, &project.Summary, &project.Status, &project.Downloads,
		&project.Followers, &project.IconURL, &project.CreatedAt,
		&project.UpdatedAt, &project.ApprovedAt)
	if err == sql.ErrNoRows {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// GetProjects retrieves projects by ID in one round trip. Missing ids are
// dropped, not errors; result order follows the database, not the input.
func (s *Store) GetProjects(ctx context.Context, ids []int64) ([]*models.Project, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get projects: %w", err)
	}
	defer rows.Close()

	return scanProjects(rows)
}

// ListSearchableProjects returns projects in searchable statuses for the
// public listing surface.
func (s *Store) ListSearchableProjects(ctx context.Context, limit, offset int64) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE status IN ('approved', 'archived')
		ORDER BY downloads DESC, id ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	return scanProjects(rows)
}

// ListModerationQueue returns projects awaiting review, oldest first.
func (s *Store) ListModerationQueue(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE status = 'processing'
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list moderation queue: %w", err)
	}
	defer rows.Close()

	return scanProjects(rows)
}

// ListOrganizationProjects returns every project owned by an organization,
// regardless of status. Callers filter for visibility.
func (s *Store) ListOrganizationProjects(ctx context.Context, orgID int64) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE organization_id = $1
		ORDER BY title ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization projects: %w", err)
	}
	defer rows.Close()

	return scanProjects(rows)
}

// UpdateProject updates a project's mutable fields
func (s *Store) UpdateProject(ctx context.Context, project *models.Project) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET title = $2, summary = $3, icon_url = $4, organization_id = $5, updated_at = NOW()
		WHERE id = $1`,
		project.ID, project.Title, project.Summary, project.IconURL, project.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// memberTransitions lists the status changes a team member may perform.
// Moderators bypass this table entirely.
var memberTransitions = map[models.ProjectStatus][]models.ProjectStatus{
	models.ProjectStatusDraft:      {models.ProjectStatusProcessing},
	models.ProjectStatusRejected:   {models.ProjectStatusProcessing, models.ProjectStatusDraft},
	models.ProjectStatusApproved:   {models.ProjectStatusArchived, models.ProjectStatusUnlisted, models.ProjectStatusPrivate},
	models.ProjectStatusArchived:   {models.ProjectStatusApproved, models.ProjectStatusUnlisted, models.ProjectStatusPrivate},
	models.ProjectStatusUnlisted:   {models.ProjectStatusApproved, models.ProjectStatusArchived, models.ProjectStatusPrivate},
	models.ProjectStatusPrivate:    {models.ProjectStatusApproved, models.ProjectStatusArchived, models.ProjectStatusUnlisted},
	models.ProjectStatusScheduled:  {models.ProjectStatusApproved, models.ProjectStatusDraft},
	models.ProjectStatusProcessing: nil,
	models.ProjectStatusWithheld:   nil,
}

// CanMemberTransition reports whether a non-moderator team member may move
// a project from one status to another. Review outcomes (approved,
// rejected, withheld from processing) are moderator-only; a member can
// only re-list between the statuses they already earned.
func CanMemberTransition(from, to models.ProjectStatus) bool {
	for _, allowed := range memberTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// UpdateProjectStatus moves a project to a new status. The first move into
// approved records the approval time.
func (s *Store) UpdateProjectStatus(ctx context.Context, id int64, status models.ProjectStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET status = $2,
		    approved_at = CASE WHEN $2 = 'approved' AND approved_at IS NULL THEN NOW() ELSE approved_at END,
		    updated_at = NOW()
		WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update result: %w", err)
	}
	if affected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// DeleteProject removes a project, its versions, and its team
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var teamID int64
	err = tx.QueryRowContext(ctx,
		`SELECT team_id FROM projects WHERE id = $1`, id).Scan(&teamID)
	if err == sql.ErrNoRows {
		return ErrProjectNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load project team: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM versions WHERE project_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM projects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM team_members WHERE team_id = $1`, teamID); err != nil {
		return fmt.Errorf("failed to delete team members: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM teams WHERE id = $1`, teamID); err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func scanProjects(rows *sql.Rows) ([]*models.Project, error) {
	var projects []*models.Project
	for rows.Next() {
		project := &models.Project{}
		err := rows.Scan(
			&project.ID, &project.TeamID, &project.OrganizationID, &project.Slug,
			&project.Title, &project.Summary, &project.Status, &project.Downloads,
			&project.Followers, &project.IconURL, &project.CreatedAt,
			&project.UpdatedAt, &project.ApprovedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}
