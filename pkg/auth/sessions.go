package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quarryhost/quarry/pkg/models"
)

// ErrSessionNotFound is returned when a session token does not resolve
var ErrSessionNotFound = errors.New("session not found or expired")

// Session is a stored login session. The token itself is never stored;
// TokenHash is the SHA-256 of it and TokenPrefix a display stub.
type Session struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	TokenPrefix string    `json:"token_prefix"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionStore manages login sessions in PostgreSQL
type SessionStore struct {
	db        *sql.DB
	generator *TokenGenerator
}

// NewSessionStore creates a session store
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db, generator: NewTokenGenerator()}
}

// CreateSession mints a token for the user and stores its hash. The
// plaintext token is returned exactly once.
func (s *SessionStore) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (string, *Session, error) {
	token, tokenHash, tokenPrefix, err := s.generator.GenerateToken()
	if err != nil {
		return "", nil, err
	}

	session := &Session{UserID: userID, TokenPrefix: tokenPrefix}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (user_id, token_hash, token_prefix, expires_at)
		VALUES ($1, $2, $3, NOW() + $4::interval)
		RETURNING id, created_at, expires_at`,
		userID, tokenHash, tokenPrefix, fmt.Sprintf("%d seconds", int64(ttl.Seconds()))).
		Scan(&session.ID, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	return token, session, nil
}

// ResolveToken maps a bearer token to its user. Expiry is evaluated in
// SQL so a stale row can never authenticate.
func (s *SessionStore) ResolveToken(ctx context.Context, token string) (*models.User, error) {
	if err := s.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrSessionNotFound
	}

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.email, u.avatar_url, u.bio, u.role, u.badges, u.created_at, u.last_login
		FROM sessions s
		INNER JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1 AND s.expires_at > NOW()`,
		s.generator.HashToken(token)).Scan(
		&user.ID, &user.Username, &user.Email, &user.AvatarURL, &user.Bio,
		&user.Role, &user.Badges, &user.CreatedAt, &user.LastLogin)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	return user, nil
}

// RevokeToken removes the session behind a token
func (s *SessionStore) RevokeToken(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token_hash = $1`, s.generator.HashToken(token))
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revoke result: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteExpired removes sessions past their expiry. Run from the
// background sweeper.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
