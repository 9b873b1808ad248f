package bans

import (
	"errors"
	"fmt"
	"time"
)

// BanType is the category of action a ban blocks.
type BanType string

const (
	// BanTypeGlobal blocks every action, including sign-in.
	BanTypeGlobal BanType = "global"
	// BanTypeResource blocks content mutation: creating, editing, or
	// deleting projects, uploading versions, team management.
	BanTypeResource BanType = "resource"
	// BanTypeForum blocks social interaction: comments, posts, wiki
	// edits, messages.
	BanTypeForum BanType = "forum"
)

// ParseBanType maps a stored ban type string to a BanType.
func ParseBanType(s string) (BanType, bool) {
	switch BanType(s) {
	case BanTypeGlobal, BanTypeResource, BanTypeForum:
		return BanType(s), true
	}
	return "", false
}

// UserBan is a ban record. A ban is in effect iff IsActive and ExpiresAt
// is nil or in the future; the checker evaluates that predicate at query
// time rather than trusting IsActive alone.
type UserBan struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	BanType   BanType    `json:"ban_type"`
	Reason    string     `json:"reason"`
	IsActive  bool       `json:"is_active"`
	BannedBy  int64      `json:"banned_by"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	RevokedBy *int64     `json:"revoked_by,omitempty"`
}

// BanError is the denial returned by a failed ban check. It carries the
// kind and facts only; user-facing message rendering belongs to the
// Catalog at the HTTP boundary.
type BanError struct {
	Type      BanType
	Reason    string
	ExpiresAt *time.Time
}

func (e *BanError) Error() string {
	if e.ExpiresAt != nil {
		return fmt.Sprintf("user is banned (%s) until %s", e.Type, e.ExpiresAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("user is banned (%s)", e.Type)
}

// AsBanError unwraps err into a *BanError if it is one.
func AsBanError(err error) (*BanError, bool) {
	var banErr *BanError
	if errors.As(err, &banErr) {
		return banErr, true
	}
	return nil, false
}
