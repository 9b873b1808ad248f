package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quarryhost/quarry/pkg/models"
)

// ErrVersionNotFound is returned when a version does not exist
var ErrVersionNotFound = errors.New("version not found")

const versionColumns = `id, project_id, author_id, name, version_number, changelog, status, downloads, file_url, file_size, created_at`

// CreateVersion inserts a new version row
func (s *Store) CreateVersion(ctx context.Context, version *models.Version) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO versions (project_id, author_id, name, version_number, changelog, status, file_url, file_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		version.ProjectID, version.AuthorID, version.Name, version.VersionNumber,
		version.Changelog, version.Status, version.FileURL, version.FileSize).
		Scan(&version.ID, &version.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}

// GetVersion retrieves a version by ID
func (s *Store) GetVersion(ctx context.Context, id int64) (*models.Version, error) {
	version := &models.Version{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE id = $1`, id).Scan(
		&version.ID, &version.ProjectID, &version.AuthorID, &version.Name,
		&version.VersionNumber, &version.Changelog, &version.Status,
		&version.Downloads, &version.FileURL, &version.FileSize, &version.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}

// ListProjectVersions returns every version of a project, newest first.
// Callers filter the result for visibility.
func (s *Store) ListProjectVersions(ctx context.Context, projectID int64) ([]*models.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM versions
		WHERE project_id = $1
		ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.Version
	for rows.Next() {
		version := &models.Version{}
		err := rows.Scan(
			&version.ID, &version.ProjectID, &version.AuthorID, &version.Name,
			&version.VersionNumber, &version.Changelog, &version.Status,
			&version.Downloads, &version.FileURL, &version.FileSize, &version.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// UpdateVersion updates a version's mutable fields
func (s *Store) UpdateVersion(ctx context.Context, version *models.Version) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE versions
		SET name = $2, changelog = $3, status = $4
		WHERE id = $1`,
		version.ID, version.Name, version.Changelog, version.Status)
	if err != nil {
		return fmt.Errorf("failed to update version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrVersionNotFound
	}
	return nil
}

// DeleteVersion removes a version row. The underlying file stays in
// object storage; content-addressed keys may be shared between versions.
func (s *Store) DeleteVersion(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM versions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrVersionNotFound
	}
	return nil
}

// IncrementDownloads bumps the download counters for a version and its
// project in one round trip each.
func (s *Store) IncrementDownloads(ctx context.Context, versionID int64) error {
	var projectID int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE versions SET downloads = downloads + 1
		WHERE id = $1
		RETURNING project_id`, versionID).Scan(&projectID)
	if err == sql.ErrNoRows {
		return ErrVersionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to count version download: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE projects SET downloads = downloads + 1 WHERE id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("failed to count project download: %w", err)
	}
	return nil
}
