package models

import "time"

// Organization owns zero or more projects and exactly one team. An
// organization has no stored visibility flag; whether it is visible to a
// viewer is derived from its projects and members, so it can never go stale
// relative to either.
type Organization struct {
	ID          int64     `json:"id"`
	TeamID      int64     `json:"team_id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IconURL     string    `json:"icon_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TeamMember is a membership row for a project or organization team.
// Accepted is false for an invited-but-not-yet-accepted member. Acceptance
// gates the organization-visibility member count but not enlistment: an
// invited member already has internal access to the team's hidden work.
type TeamMember struct {
	ID        int64     `json:"id"`
	TeamID    int64     `json:"team_id"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	IsOwner   bool      `json:"is_owner"`
	Accepted  bool      `json:"accepted"`
	Ordering  int64     `json:"ordering"`
	CreatedAt time.Time `json:"created_at"`
}
