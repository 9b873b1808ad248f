package bans

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quarryhost/quarry/pkg/models"
)

// Checker answers "is this actor currently banned for this purpose".
type Checker interface {
	// CheckGlobalBan fails with *BanError iff an active global ban exists.
	CheckGlobalBan(ctx context.Context, actor *models.User) error
	// CheckResourceBan checks the global ban first, then the resource
	// ban. Global wins when both apply.
	CheckResourceBan(ctx context.Context, actor *models.User) error
	// CheckForumBan checks the global ban first, then the forum ban.
	CheckForumBan(ctx context.Context, actor *models.User) error
}

// PostgresChecker implements Checker against the user_bans table. Every
// check is a direct query; no cache sits on this path.
type PostgresChecker struct {
	db *sql.DB
}

// NewPostgresChecker creates a checker backed by db.
func NewPostgresChecker(db *sql.DB) *PostgresChecker {
	return &PostgresChecker{db: db}
}

// checkBan is the single existence predicate every public check goes
// through. Expiry is evaluated inside the query so an expired ban is
// indistinguishable from no ban.
func (c *PostgresChecker) checkBan(ctx context.Context, userID int64, banType BanType) error {
	var ban BanError
	ban.Type = banType
	err := c.db.QueryRowContext(ctx, `
		SELECT reason, expires_at FROM user_bans
		WHERE user_id = $1
		  AND ban_type = $2
		  AND is_active = TRUE
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC
		LIMIT 1`, userID, banType).Scan(&ban.Reason, &ban.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check %s ban: %w", banType, err)
	}
	return &ban
}

// CheckGlobalBan fails iff the actor has an active global ban. Anonymous
// actors cannot be banned.
func (c *PostgresChecker) CheckGlobalBan(ctx context.Context, actor *models.User) error {
	if actor == nil {
		return nil
	}
	return c.checkBan(ctx, actor.ID, BanTypeGlobal)
}

// CheckResourceBan guards content mutation. The global check runs first:
// when both bans apply the caller sees the global denial.
func (c *PostgresChecker) CheckResourceBan(ctx context.Context, actor *models.User) error {
	if actor == nil {
		return nil
	}
	if err := c.checkBan(ctx, actor.ID, BanTypeGlobal); err != nil {
		return err
	}
	return c.checkBan(ctx, actor.ID, BanTypeResource)
}

// CheckForumBan guards social interaction. The global check runs first.
func (c *PostgresChecker) CheckForumBan(ctx context.Context, actor *models.User) error {
	if actor == nil {
		return nil
	}
	if err := c.checkBan(ctx, actor.ID, BanTypeGlobal); err != nil {
		return err
	}
	return c.checkBan(ctx, actor.ID, BanTypeForum)
}
