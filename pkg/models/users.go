package models

import "time"

// Role is the global privilege level attached to a user account.
type Role string

const (
	RoleDeveloper Role = "developer"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole maps a stored role string to a Role, defaulting to developer.
func ParseRole(s string) Role {
	switch s {
	case "admin":
		return RoleAdmin
	case "moderator":
		return RoleModerator
	default:
		return RoleDeveloper
	}
}

// IsMod reports whether the role carries moderation privileges.
// Moderators bypass visibility filtering everywhere.
func (r Role) IsMod() bool {
	return r == RoleModerator || r == RoleAdmin
}

// IsAdmin reports whether the role is admin. Admins additionally bypass
// role-assignment and badge-assignment restrictions.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// User is the authenticated actor for a request. Handlers pass either a
// *User or nil (anonymous) into every visibility and ban check; nothing in
// the authorization layer reaches for ambient state.
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Bio       string     `json:"bio,omitempty"`
	Role      Role       `json:"role"`
	Badges    int64      `json:"badges"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// IsMod reports whether a possibly-nil user has moderation privileges.
func (u *User) IsMod() bool {
	return u != nil && u.Role.IsMod()
}

// IsAdmin reports whether a possibly-nil user is an admin.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role.IsAdmin()
}
