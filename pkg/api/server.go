package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quarryhost/quarry/pkg/auth"
	"github.com/quarryhost/quarry/pkg/bans"
	"github.com/quarryhost/quarry/pkg/collections"
	"github.com/quarryhost/quarry/pkg/middleware"
	"github.com/quarryhost/quarry/pkg/observability"
	"github.com/quarryhost/quarry/pkg/orgs"
	"github.com/quarryhost/quarry/pkg/projects"
	"github.com/quarryhost/quarry/pkg/storage/postgres"
	"github.com/quarryhost/quarry/pkg/users"
	"github.com/quarryhost/quarry/pkg/visibility"
)

// Dependencies holds the external resources the server wires together.
// DB, Catalog and Logger are required; the rest are optional and the
// matching feature degrades when absent (no rate limiting without Redis,
// no file uploads without Files, no sign-in without Provider).
type Dependencies struct {
	DB       *sql.DB
	Redis    *redis.Client
	Files    projects.FileStore
	Cache    *postgres.ProjectCache
	Provider auth.IdentityProvider

	Catalog    *bans.Catalog
	SessionTTL time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracing bool
}

// Server is the assembled HTTP API: every handler group registered on a
// shared router behind the common middleware chain.
type Server struct {
	router  *mux.Router
	handler http.Handler

	sessions *auth.SessionStore
	logger   *observability.Logger
}

// NewServer builds the stores and handler groups from the given
// dependencies and registers every route.
func NewServer(deps Dependencies) *Server {
	checker := bans.NewPostgresChecker(deps.DB)

	projectStore := projects.NewStore(deps.DB)
	collectionStore := collections.NewStore(deps.DB)
	userStore := users.NewStore(deps.DB)
	orgService := orgs.NewService(deps.DB)
	banStore := bans.NewStore(deps.DB)
	sessionStore := auth.NewSessionStore(deps.DB)
	appStore := auth.NewAppStore(deps.DB)

	// The read-through cache fronts bulk project lookups when configured;
	// otherwise the store answers directly.
	getter := visibility.ProjectGetter(projectStore)
	var invalidator projects.Invalidator
	if deps.Cache != nil {
		getter = deps.Cache
		invalidator = deps.Cache
	}
	filter := visibility.NewFilter(deps.DB, getter)

	s := &Server{
		router:   mux.NewRouter(),
		sessions: sessionStore,
		logger:   deps.Logger,
	}

	bans.NewHandlers(banStore, deps.Catalog, deps.Logger, deps.Metrics).RegisterRoutes(s.router)
	projects.NewHandlers(projectStore, filter, checker, deps.Catalog, deps.Files, invalidator, deps.Logger).RegisterRoutes(s.router)
	orgs.NewHandlers(orgService, filter, checker, deps.Catalog, deps.Logger).RegisterRoutes(s.router)
	collections.NewHandlers(collectionStore, checker, deps.Catalog, deps.Logger).RegisterRoutes(s.router)
	users.NewHandlers(userStore, deps.Logger).RegisterRoutes(s.router)
	auth.NewHandlers(deps.Provider, sessionStore, userStore, appStore, checker, deps.Catalog, deps.Logger, deps.SessionTTL).RegisterRoutes(s.router)

	s.handler = s.buildChain(deps)
	return s
}

// buildChain wraps the router in the shared middleware, innermost first:
// request ID, actor resolution, request logging, rate limiting, metrics,
// panic recovery, and optionally OTel tracing on the outside.
func (s *Server) buildChain(deps Dependencies) http.Handler {
	handler := http.Handler(s.router)

	if deps.Redis != nil {
		handler = middleware.NewRateLimitMiddleware(deps.Redis, deps.Logger).Handler(handler)
	}
	handler = middleware.RequestLogger(deps.Logger)(handler)
	handler = middleware.NewActorMiddleware(s.sessions, deps.Logger).Handler(handler)
	handler = middleware.RequestID(handler)

	if deps.Metrics != nil {
		handler = deps.Metrics.HTTPMiddleware(handler)
	}
	handler = observability.PanicMiddleware(deps.Logger)(handler)

	if deps.Tracing {
		handler = otelhttp.NewHandler(handler, "quarry.http")
	}
	return handler
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying mux for additional registrations, such
// as debug endpoints in development builds.
func (s *Server) Router() *mux.Router {
	return s.router
}
