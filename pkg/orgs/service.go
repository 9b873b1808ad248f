package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/quarryhost/quarry/pkg/models"
)

var (
	// ErrOrgNotFound is returned when an organization does not exist
	ErrOrgNotFound = errors.New("organization not found")
	// ErrSlugTaken is returned when the requested slug is already in use
	ErrSlugTaken = errors.New("organization slug already taken")
)

// Service implements organization operations against PostgreSQL
type Service struct {
	db *sql.DB
}

// NewService creates a new organization service
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// CreateOrganization creates an organization with a fresh team and the
// creator as its accepted owner.
func (s *Service) CreateOrganization(ctx context.Context, org *models.Organization, ownerID int64) error {
	if org.Slug == "" {
		org.Slug = GenerateSlug(org.Name)
	}
	if org.Slug == "" {
		return fmt.Errorf("organization slug is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var taken bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM organizations WHERE slug = $1)`, org.Slug).Scan(&taken); err != nil {
		return fmt.Errorf("failed to check slug: %w", err)
	}
	if taken {
		return ErrSlugTaken
	}

	if err := tx.QueryRowContext(ctx,
		`INSERT INTO teams DEFAULT VALUES RETURNING id`).Scan(&org.TeamID); err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO organizations (team_id, slug, name, description, icon_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		org.TeamID, org.Slug, org.Name, org.Description, org.IconURL).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id, role, is_owner, accepted, ordering)
		VALUES ($1, $2, 'Owner', TRUE, TRUE, 0)`,
		org.TeamID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to add owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

const orgColumns = `id, team_id, slug, name, description, icon_url, created_at, updated_at`

// GetOrganization retrieves an organization by ID
func (s *Service) GetOrganization(ctx context.Context, id int64) (*models.Organization, error) {
	return s.getOrganization(ctx, `WHERE id = $1`, id)
}

// GetOrganizationBySlug retrieves an organization by slug
func (s *Service) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return s.getOrganization(ctx, `WHERE slug = $1`, slug)
}

func (s *Service) getOrganization(ctx context.Context, where string, arg interface{}) (*models.Organization, error) {
	org := &models.Organization{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations `+where, arg).Scan(
		&org.ID, &org.TeamID, &org.Slug, &org.Name, &org.Description,
		&org.IconURL, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// ListUserOrganizations returns the organizations a user belongs to,
// including ones where the invitation is still pending.
func (s *Service) ListUserOrganizations(ctx context.Context, userID int64) ([]*models.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.team_id, o.slug, o.name, o.description, o.icon_url, o.created_at, o.updated_at
		FROM organizations o
		INNER JOIN team_members tm ON tm.team_id = o.team_id
		WHERE tm.user_id = $1
		ORDER BY o.name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		org := &models.Organization{}
		if err := rows.Scan(
			&org.ID, &org.TeamID, &org.Slug, &org.Name, &org.Description,
			&org.IconURL, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// UpdateOrganization updates the mutable fields of an organization
func (s *Service) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations
		SET name = $2, description = $3, icon_url = $4, updated_at = NOW()
		WHERE id = $1`,
		org.ID, org.Name, org.Description, org.IconURL)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrgNotFound
	}
	return nil
}

// DeleteOrganization removes an organization, its team, and its
// memberships. Owned projects are detached, not deleted.
func (s *Service) DeleteOrganization(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var teamID int64
	err = tx.QueryRowContext(ctx,
		`SELECT team_id FROM organizations WHERE id = $1`, id).Scan(&teamID)
	if err == sql.ErrNoRows {
		return ErrOrgNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get organization: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET organization_id = NULL WHERE organization_id = $1`, id); err != nil {
		return fmt.Errorf("failed to detach projects: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM organizations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM team_members WHERE team_id = $1`, teamID); err != nil {
		return fmt.Errorf("failed to delete members: %w", err)
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

// GenerateSlug derives a URL slug from a display name
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return strings.Trim(slug, "-")
}
