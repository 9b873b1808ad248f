package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/quarryhost/quarry/pkg/auth"
	"github.com/quarryhost/quarry/pkg/contextkeys"
	"github.com/quarryhost/quarry/pkg/httputil"
	"github.com/quarryhost/quarry/pkg/models"
	"github.com/quarryhost/quarry/pkg/observability"
)

// TokenResolver maps a bearer token to its user
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*models.User, error)
}

// ActorMiddleware resolves an optional actor from the Authorization
// header. No header means anonymous and the request proceeds; a header
// that fails to resolve is an explicit credential error and stops here.
type ActorMiddleware struct {
	resolver TokenResolver
	logger   *observability.Logger
}

// NewActorMiddleware creates an actor resolution middleware
func NewActorMiddleware(resolver TokenResolver, logger *observability.Logger) *ActorMiddleware {
	return &ActorMiddleware{resolver: resolver, logger: logger}
}

// Handler wraps next with actor resolution
func (m *ActorMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		user, err := m.resolver.ResolveToken(r.Context(), parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrSessionNotFound) {
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			m.logger.WithError(err).Error("failed to resolve session token")
			httputil.WriteInternalError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithActor(r.Context(), user)))
	})
}
