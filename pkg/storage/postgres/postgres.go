// Package postgres provides the PostgreSQL-backed persistence layer:
// primary/replica connection management, the Redis read-through cache,
// and S3 object storage for version files.
package postgres

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("quarry/storage/postgres")
