// Package collections implements user-curated project lists. Collections
// have no team; mutation is owner-or-moderator, and visibility is the
// simple status-plus-owner rule with no database reads.
package collections
