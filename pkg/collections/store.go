package collections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/quarryhost/quarry/pkg/models"
)

// ErrCollectionNotFound is returned when a collection does not exist
var ErrCollectionNotFound = errors.New("collection not found")

// Store implements collection operations against PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new collection store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const collectionColumns = `id, user_id, name, description, status, icon_url, project_ids, created_at, updated_at`

// CreateCollection inserts a new collection. New collections start listed.
func (s *Store) CreateCollection(ctx context.Context, collection *models.Collection) error {
	if collection.Status == "" {
		collection.Status = models.CollectionStatusListed
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO collections (user_id, name, description, status, icon_url, project_ids)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		collection.UserID, collection.Name, collection.Description,
		collection.Status, collection.IconURL, pq.Array(collection.ProjectIDs)).
		Scan(&collection.ID, &collection.CreatedAt, &collection.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// GetCollection retrieves a collection by ID
func (s *Store) GetCollection(ctx context.Context, id int64) (*models.Collection, error) {
	collection := &models.Collection{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = $1`, id).Scan(
		&collection.ID, &collection.UserID, &collection.Name, &collection.Description,
		&collection.Status, &collection.IconURL, pq.Array(&collection.ProjectIDs),
		&collection.CreatedAt, &collection.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCollectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return collection, nil
}

// ListUserCollections returns every collection owned by a user. Callers
// filter the result for visibility.
func (s *Store) ListUserCollections(ctx context.Context, userID int64) ([]*models.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+collectionColumns+` FROM collections
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var collections []*models.Collection
	for rows.Next() {
		collection := &models.Collection{}
		err := rows.Scan(
			&collection.ID, &collection.UserID, &collection.Name, &collection.Description,
			&collection.Status, &collection.IconURL, pq.Array(&collection.ProjectIDs),
			&collection.CreatedAt, &collection.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		collections = append(collections, collection)
	}
	return collections, rows.Err()
}

// UpdateCollection updates a collection's mutable fields, including its
// project list.
func (s *Store) UpdateCollection(ctx context.Context, collection *models.Collection) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE collections
		SET name = $2, description = $3, status = $4, icon_url = $5, project_ids = $6, updated_at = NOW()
		WHERE id = $1`,
		collection.ID, collection.Name, collection.Description,
		collection.Status, collection.IconURL, pq.Array(collection.ProjectIDs))
	if err != nil {
		return fmt.Errorf("failed to update collection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrCollectionNotFound
	}
	return nil
}

// DeleteCollection removes a collection
func (s *Store) DeleteCollection(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrCollectionNotFound
	}
	return nil
}
