// Package visibility decides what an actor is allowed to see.
//
// # Overview
//
// Given an optional authenticated user and a batch of projects, versions,
// collections, or organizations, the Filter computes the subset the user
// may observe. The same rules apply whether one entity or a thousand are
// checked; the singular helpers delegate to the batch forms so the two can
// never drift apart.
//
// Three inputs combine into a visibility decision:
//
//  1. Entity status: a non-hidden entity is visible to everyone. Listing
//     surfaces use strict mode (searchable statuses only); direct-link
//     access uses loose mode (anything not explicitly hidden).
//  2. Enlistment: membership of the entity's team, directly or through the
//     team of the organization that owns it. Enlisted users see their own
//     hidden work.
//  3. Moderator override: moderators and admins see everything.
//
// Version visibility layers on project visibility: a public version under
// a hidden project stays hidden unless the viewer is enlisted or a mod.
//
// # Query complexity
//
// Batch filtering issues O(1) query round trips regardless of batch size.
// The enlistment lookup runs its two membership branches (direct team,
// via owning organization) concurrently and merges the results.
//
// # Batch exclusion vs. explicit denial
//
// Batch filters silently drop entities the actor may not see; an excluded
// entity must not be distinguishable from a nonexistent one. Direct-object
// authorization (the Authorizable surface) returns an explicit error
// instead, since the caller already knows the object exists.
package visibility
