// Package orgs manages organizations and the teams that carry their
// memberships. Organizations own projects through their team; an org has
// no visibility state of its own, it is derived from its projects and
// members by the visibility package.
package orgs
