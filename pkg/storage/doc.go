// Package storage defines configuration for the persistence backends:
// PostgreSQL (primary and read replicas), Redis for hot reads, and
// S3-compatible object storage for version files.
package storage
