package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quarryhost/quarry/pkg/models"
)

var (
	// ErrMemberNotFound is returned when no membership row exists
	ErrMemberNotFound = errors.New("member not found")
	// ErrAlreadyMember is returned when inviting an existing member
	ErrAlreadyMember = errors.New("user is already a team member")
	// ErrNoPendingInvite is returned when accepting without an invitation
	ErrNoPendingInvite = errors.New("no pending invitation")
	// ErrCannotRemoveOwner is returned when removing the team owner
	ErrCannotRemoveOwner = errors.New("cannot remove the team owner")
)

const memberColumns = `id, team_id, user_id, role, is_owner, accepted, ordering, created_at`

// ListMembers returns all members of a team, accepted and invited,
// ordered by their display ordering.
func (s *Service) ListMembers(ctx context.Context, teamID int64) ([]*models.TeamMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM team_members WHERE team_id = $1 ORDER BY ordering ASC, created_at ASC`,
		teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()
	return scanMembers(rows)
}

// GetMember returns a single membership row
func (s *Service) GetMember(ctx context.Context, teamID, userID int64) (*models.TeamMember, error) {
	member := &models.TeamMember{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM team_members WHERE team_id = $1 AND user_id = $2`,
		teamID, userID).Scan(
		&member.ID, &member.TeamID, &member.UserID, &member.Role,
		&member.IsOwner, &member.Accepted, &member.Ordering, &member.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// InviteMember adds a pending membership. The invited user is enlisted
// for visibility immediately but does not count toward the org's
// accepted-member threshold until they accept.
func (s *Service) InviteMember(ctx context.Context, teamID, userID int64, role string, ordering int64) (*models.TeamMember, error) {
	member := &models.TeamMember{
		TeamID:   teamID,
		UserID:   userID,
		Role:     role,
		Accepted: false,
		Ordering: ordering,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO team_members (team_id, user_id, role, is_owner, accepted, ordering)
		VALUES ($1, $2, $3, FALSE, FALSE, $4)
		ON CONFLICT (team_id, user_id) DO NOTHING
		RETURNING id, created_at`,
		teamID, userID, role, ordering).Scan(&member.ID, &member.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to invite member: %w", err)
	}
	return member, nil
}

// AcceptInvite flips a pending membership to accepted
func (s *Service) AcceptInvite(ctx context.Context, teamID, userID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE team_members
		SET accepted = TRUE
		WHERE team_id = $1 AND user_id = $2 AND accepted = FALSE`,
		teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to accept invite: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoPendingInvite
	}
	return nil
}

// UpdateMemberRole changes a member's role within the team
func (s *Service) UpdateMemberRole(ctx context.Context, teamID, userID int64, role string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE team_members SET role = $3 WHERE team_id = $1 AND user_id = $2`,
		teamID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// RemoveMember removes a membership. The owner cannot be removed;
// ownership transfer is a separate operation.
func (s *Service) RemoveMember(ctx context.Context, teamID, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM team_members WHERE team_id = $1 AND user_id = $2 AND is_owner = FALSE`,
		teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		member, getErr := s.GetMember(ctx, teamID, userID)
		if getErr == nil && member.IsOwner {
			return ErrCannotRemoveOwner
		}
		return ErrMemberNotFound
	}
	return nil
}

// TransferOwnership moves the owner flag to another accepted member
func (s *Service) TransferOwnership(ctx context.Context, teamID, fromUserID, toUserID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var accepted bool
	err = tx.QueryRowContext(ctx,
		`SELECT accepted FROM team_members WHERE team_id = $1 AND user_id = $2`,
		teamID, toUserID).Scan(&accepted)
	if err == sql.ErrNoRows {
		return ErrMemberNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get member: %w", err)
	}
	if !accepted {
		return fmt.Errorf("cannot transfer ownership to a pending member")
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE team_members SET is_owner = FALSE WHERE team_id = $1 AND user_id = $2 AND is_owner = TRUE`,
		teamID, fromUserID)
	if err != nil {
		return fmt.Errorf("failed to clear owner: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("user %d does not own team %d", fromUserID, teamID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE team_members SET is_owner = TRUE WHERE team_id = $1 AND user_id = $2`,
		teamID, toUserID); err != nil {
		return fmt.Errorf("failed to set owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// DeleteStaleInvites removes pending invitations older than maxAge.
func (s *Service) DeleteStaleInvites(ctx context.Context, maxAge time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM team_members
		WHERE accepted = FALSE AND is_owner = FALSE AND created_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(maxAge.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale invites: %w", err)
	}
	return result.RowsAffected()
}

func scanMembers(rows *sql.Rows) ([]*models.TeamMember, error) {
	var members []*models.TeamMember
	for rows.Next() {
		member := &models.TeamMember{}
		if err := rows.Scan(
			&member.ID, &member.TeamID, &member.UserID, &member.Role,
			&member.IsOwner, &member.Accepted, &member.Ordering, &member.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}
