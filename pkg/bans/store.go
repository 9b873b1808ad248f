package bans

import (
	"context"
	"database/sql"
	"fmt"
)

// Store manages ban records. Enforcement reads go through Checker; the
// store is the write side used by moderation tooling.
type Store struct {
	db *sql.DB
}

// NewStore creates a ban store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateBan inserts an active ban and fills in its id and creation time.
func (s *Store) CreateBan(ctx context.Context, ban *UserBan) error {
	if _, ok := ParseBanType(string(ban.BanType)); !ok {
		return fmt.Errorf("invalid ban type %q", ban.BanType)
	}
	ban.IsActive = true
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO user_bans (user_id, ban_type, reason, is_active, banned_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		ban.UserID, ban.BanType, ban.Reason, ban.IsActive, ban.BannedBy, ban.ExpiresAt).
		Scan(&ban.ID, &ban.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ban: %w", err)
	}
	return nil
}

// RevokeBan deactivates a ban, recording who revoked it.
func (s *Store) RevokeBan(ctx context.Context, banID, revokedBy int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_bans
		SET is_active = FALSE, revoked_at = NOW(), revoked_by = $2
		WHERE id = $1 AND is_active = TRUE`, banID, revokedBy)
	if err != nil {
		return fmt.Errorf("failed to revoke ban: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("ban %d not found or already revoked", banID)
	}
	return nil
}

// ListUserBans returns all bans ever issued for a user, newest first.
func (s *Store) ListUserBans(ctx context.Context, userID int64) ([]*UserBan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, ban_type, reason, is_active, banned_by, created_at, expires_at, revoked_at, revoked_by
		FROM user_bans
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bans: %w", err)
	}
	defer rows.Close()
	return scanBans(rows)
}

// ListActiveBans returns the bans currently in effect for a user.
func (s *Store) ListActiveBans(ctx context.Context, userID int64) ([]*UserBan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, ban_type, reason, is_active, banned_by, created_at, expires_at, revoked_at, revoked_by
		FROM user_bans
		WHERE user_id = $1
		  AND is_active = TRUE
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active bans: %w", err)
	}
	defer rows.Close()
	return scanBans(rows)
}

// DeactivateExpired flips is_active off on bans whose expiry has passed.
// Storage hygiene only: the checker's query already treats expired rows as
// absent, so correctness never depends on this running.
func (s *Store) DeactivateExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_bans
		SET is_active = FALSE
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired bans: %w", err)
	}
	return result.RowsAffected()
}

func scanBans(rows *sql.Rows) ([]*UserBan, error) {
	var bans []*UserBan
	for rows.Next() {
		ban := &UserBan{}
		if err := rows.Scan(
			&ban.ID, &ban.UserID, &ban.BanType, &ban.Reason, &ban.IsActive,
			&ban.BannedBy, &ban.CreatedAt, &ban.ExpiresAt, &ban.RevokedAt, &ban.RevokedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ban: %w", err)
		}
		bans = append(bans, ban)
	}
	return bans, rows.Err()
}
