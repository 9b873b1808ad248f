// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application are defined here. This
// prevents typos, documents dependencies, and makes key usage
// discoverable.
package contextkeys

import (
	"context"

	"github.com/quarryhost/quarry/pkg/models"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ActorKey contains the authenticated *models.User, or is absent for
	// anonymous requests.
	// Set by: middleware.ActorMiddleware
	// Read by: every handler that performs visibility or ban checks
	ActorKey Key = "actor"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: middleware.RequestLogger
	// Used by: logging, error responses
	RequestIDKey Key = "request_id"
)

// WithActor stores the authenticated user on the context. A nil user is
// stored as-is and read back as anonymous.
func WithActor(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, ActorKey, user)
}

// Actor retrieves the authenticated user from the context; nil means
// anonymous.
func Actor(ctx context.Context) *models.User {
	if user, ok := ctx.Value(ActorKey).(*models.User); ok {
		return user
	}
	return nil
}

// WithRequestID stores the request ID on the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID from the context
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
