package models

import "time"

// CollectionStatus is the lifecycle status of a user collection.
type CollectionStatus string

const (
	CollectionStatusListed   CollectionStatus = "listed"
	CollectionStatusUnlisted CollectionStatus = "unlisted"
	CollectionStatusPrivate  CollectionStatus = "private"
	CollectionStatusRejected CollectionStatus = "rejected"
	CollectionStatusUnknown  CollectionStatus = "unknown"
)

// IsHidden reports whether the collection is hidden from everyone but its
// owner and moderators.
func (s CollectionStatus) IsHidden() bool {
	switch s {
	case CollectionStatusListed, CollectionStatusUnlisted:
		return false
	default:
		return true
	}
}

// Collection is a user-curated list of projects. Collections have no team;
// the owner is the only non-moderator with access to a hidden one.
type Collection struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Status      CollectionStatus `json:"status"`
	IconURL     string           `json:"icon_url,omitempty"`
	ProjectIDs  []int64          `json:"project_ids,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
