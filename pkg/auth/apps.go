package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/quarryhost/quarry/pkg/models"
	"github.com/quarryhost/quarry/pkg/visibility"
)

// ErrAppNotFound is returned when an OAuth app does not exist
var ErrAppNotFound = errors.New("oauth app not found")

// OAuthApp is a registered OAuth client application
type OAuthApp struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValidateAuthorized reports whether the actor may act on this app.
// Anonymous actors pass: read paths need no identity. Authenticated
// actors must be the creator or a moderator.
func (a *OAuthApp) ValidateAuthorized(actor *models.User) error {
	if actor == nil || actor.IsMod() || actor.ID == a.CreatedBy {
		return nil
	}
	return visibility.NewAuthorizationError(
		fmt.Sprintf("user %d is not authorized to access oauth app %d", actor.ID, a.ID))
}

// AppStore manages OAuth client apps in PostgreSQL
type AppStore struct {
	db *sql.DB
}

// NewAppStore creates an app store
func NewAppStore(db *sql.DB) *AppStore {
	return &AppStore{db: db}
}

const appColumns = `id, name, client_id, redirect_uri, created_by, created_at`

// CreateApp registers an OAuth client app with a random client id
func (s *AppStore) CreateApp(ctx context.Context, app *OAuthApp) error {
	clientID := make([]byte, 16)
	if _, err := rand.Read(clientID); err != nil {
		return fmt.Errorf("failed to generate client id: %w", err)
	}
	app.ClientID = hex.EncodeToString(clientID)

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO oauth_apps (name, client_id, redirect_uri, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		app.Name, app.ClientID, app.RedirectURI, app.CreatedBy).
		Scan(&app.ID, &app.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create oauth app: %w", err)
	}
	return nil
}

// GetApp retrieves an OAuth app by ID
func (s *AppStore) GetApp(ctx context.Context, id int64) (*OAuthApp, error) {
	app := &OAuthApp{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM oauth_apps WHERE id = $1`, id).Scan(
		&app.ID, &app.Name, &app.ClientID, &app.RedirectURI, &app.CreatedBy, &app.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAppNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth app: %w", err)
	}
	return app, nil
}

// ListUserApps returns the apps a user created
func (s *AppStore) ListUserApps(ctx context.Context, userID int64) ([]*OAuthApp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+appColumns+` FROM oauth_apps
		WHERE created_by = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list oauth apps: %w", err)
	}
	defer rows.Close()

	var apps []*OAuthApp
	for rows.Next() {
		app := &OAuthApp{}
		err := rows.Scan(&app.ID, &app.Name, &app.ClientID, &app.RedirectURI, &app.CreatedBy, &app.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan oauth app: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// DeleteApp removes an OAuth app
func (s *AppStore) DeleteApp(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM oauth_apps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete oauth app: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrAppNotFound
	}
	return nil
}
