// Package bans enforces and manages the platform's multi-tier ban system.
//
// Three ban types exist: global (blocks all actions), resource (blocks
// content mutation: creating/editing projects, uploading versions), and
// forum (blocks social interaction: comments, posts, wiki edits).
// Multiple bans of different types may be active for one user at a time.
//
// The checks (CheckGlobalBan, CheckResourceBan, CheckForumBan) query the
// ban table directly on every call, with no cache in between. Bans are
// rare but must take effect the moment they are written; a freshly banned
// user must not slip a mutation through a stale cache, so this path trades
// latency for read-after-write consistency. Resource and forum checks test
// the global ban first: global is the more severe kind and its denial wins
// when both apply.
//
// A ban is in effect iff it is active and either has no expiry or expires
// in the future, evaluated inside the query. Expired rows behave exactly
// like absent rows; the cron sweep that deactivates them is storage
// hygiene, never a correctness requirement.
//
// A failed check surfaces as *BanError carrying the ban type, reason, and
// expiry. Handlers render it through the message catalog at the HTTP
// boundary; nothing between the check and the boundary recovers from it.
package bans
