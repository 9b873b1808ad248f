// Package projects implements project and version storage, lifecycle
// transitions, and the HTTP surface over them. Reads are gated by the
// visibility filter; mutations are gated by team enlistment and the ban
// registry. Version files are content-addressed blobs in S3.
package projects
