package models

import "time"

// ProjectStatus is the lifecycle status of a project. Visibility consumes
// it only through IsHidden and IsSearchable.
type ProjectStatus string

const (
	ProjectStatusApproved   ProjectStatus = "approved"
	ProjectStatusArchived   ProjectStatus = "archived"
	ProjectStatusRejected   ProjectStatus = "rejected"
	ProjectStatusDraft      ProjectStatus = "draft"
	ProjectStatusUnlisted   ProjectStatus = "unlisted"
	ProjectStatusProcessing ProjectStatus = "processing"
	ProjectStatusWithheld   ProjectStatus = "withheld"
	ProjectStatusScheduled  ProjectStatus = "scheduled"
	ProjectStatusPrivate    ProjectStatus = "private"
	ProjectStatusUnknown    ProjectStatus = "unknown"
)

// IsHidden reports whether the status hides the project from everyone but
// team members and moderators. Unlisted projects are not hidden; they are
// reachable by direct link but excluded from search.
func (s ProjectStatus) IsHidden() bool {
	switch s {
	case ProjectStatusApproved, ProjectStatusArchived, ProjectStatusUnlisted:
		return false
	default:
		return true
	}
}

// IsSearchable reports whether the project appears on listing and search
// surfaces.
func (s ProjectStatus) IsSearchable() bool {
	return s == ProjectStatusApproved || s == ProjectStatusArchived
}

// Project is a hosted mod project. A project always has a team; it may
// additionally belong to an organization, in which case the organization's
// team members are enlisted on it too.
type Project struct {
	ID             int64         `json:"id"`
	TeamID         int64         `json:"team_id"`
	OrganizationID *int64        `json:"organization_id,omitempty"`
	Slug           string        `json:"slug"`
	Title          string        `json:"title"`
	Summary        string        `json:"summary,omitempty"`
	Status         ProjectStatus `json:"status"`
	Downloads      int64         `json:"downloads"`
	Followers      int64         `json:"followers"`
	IconURL        string        `json:"icon_url,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	ApprovedAt     *time.Time    `json:"approved_at,omitempty"`
}

// VersionStatus is the lifecycle status of a single version of a project.
type VersionStatus string

const (
	VersionStatusListed    VersionStatus = "listed"
	VersionStatusArchived  VersionStatus = "archived"
	VersionStatusDraft     VersionStatus = "draft"
	VersionStatusUnlisted  VersionStatus = "unlisted"
	VersionStatusScheduled VersionStatus = "scheduled"
	VersionStatusUnknown   VersionStatus = "unknown"
)

// IsHidden reports whether the version is hidden from everyone but team
// members and moderators. A non-hidden version is still invisible when its
// owning project is.
func (s VersionStatus) IsHidden() bool {
	switch s {
	case VersionStatusListed, VersionStatusArchived, VersionStatusUnlisted:
		return false
	default:
		return true
	}
}

// Version is a released (or draft) build of a project.
type Version struct {
	ID            int64         `json:"id"`
	ProjectID     int64         `json:"project_id"`
	AuthorID      int64         `json:"author_id"`
	Name          string        `json:"name"`
	VersionNumber string        `json:"version_number"`
	Changelog     string        `json:"changelog,omitempty"`
	Status        VersionStatus `json:"status"`
	Downloads     int64         `json:"downloads"`
	FileURL       string        `json:"file_url,omitempty"`
	FileSize      int64         `json:"file_size,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Report is a user-submitted report against a project, reviewed by
// moderators out of band.
type Report struct {
	ID         int64     `json:"id"`
	ProjectID  int64     `json:"project_id"`
	ReporterID int64     `json:"reporter_id"`
	Reason     string    `json:"reason"`
	Body       string    `json:"body,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
