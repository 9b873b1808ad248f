package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/quarryhost/quarry/pkg/models"
)

// ErrUserNotFound is returned when a user does not exist
var ErrUserNotFound = errors.New("user not found")

// Store implements user operations against PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, username, email, avatar_url, bio, role, badges, created_at, last_login`

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, `WHERE username = $1`, username)
}

func (s *Store) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users `+where, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.AvatarURL, &user.Bio,
		&user.Role, &user.Badges, &user.CreatedAt, &user.LastLogin)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUsers retrieves users by ID in one round trip. Missing ids are
// dropped, not errors.
func (s *Store) GetUsers(ctx context.Context, ids []int64) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		err := rows.Scan(
			&user.ID, &user.Username, &user.Email, &user.AvatarURL, &user.Bio,
			&user.Role, &user.Badges, &user.CreatedAt, &user.LastLogin)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpsertOIDCUser creates or refreshes the account tied to an OIDC
// subject, returning the stored row. The subject is an opaque issuer
// identifier; it never leaves the database.
func (s *Store) UpsertOIDCUser(ctx context.Context, subject, username, email, avatarURL string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (oidc_subject, username, email, avatar_url, role, last_login)
		VALUES ($1, $2, $3, $4, 'developer', NOW())
		ON CONFLICT (oidc_subject) DO UPDATE
		SET email = EXCLUDED.email, avatar_url = EXCLUDED.avatar_url, last_login = NOW()
		RETURNING `+userColumns,
		subject, username, email, avatarURL).Scan(
		&user.ID, &user.Username, &user.Email, &user.AvatarURL, &user.Bio,
		&user.Role, &user.Badges, &user.CreatedAt, &user.LastLogin)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// UpdateProfile updates a user's self-editable fields
func (s *Store) UpdateProfile(ctx context.Context, user *models.User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET username = $2, bio = $3, avatar_url = $4
		WHERE id = $1`,
		user.ID, user.Username, user.Bio, user.AvatarURL)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return checkAffected(result, ErrUserNotFound)
}

// UpdateRole changes a user's role
func (s *Store) UpdateRole(ctx context.Context, id int64, role models.Role) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET role = $2 WHERE id = $1`, id, role)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return checkAffected(result, ErrUserNotFound)
}

// UpdateBadges replaces a user's badge bitset
func (s *Store) UpdateBadges(ctx context.Context, id int64, badges int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET badges = $2 WHERE id = $1`, id, badges)
	if err != nil {
		return fmt.Errorf("failed to update badges: %w", err)
	}
	return checkAffected(result, ErrUserNotFound)
}

func checkAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
