package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quarryhost/quarry/pkg/api"
	"github.com/quarryhost/quarry/pkg/auth"
	"github.com/quarryhost/quarry/pkg/bans"
	"github.com/quarryhost/quarry/pkg/config"
	"github.com/quarryhost/quarry/pkg/observability"
	"github.com/quarryhost/quarry/pkg/projects"
	"github.com/quarryhost/quarry/pkg/storage/postgres"
)

const serviceVersion = "0.4.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", serviceVersion).Info("starting quarry")

	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: serviceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize opentelemetry")
		os.Exit(1)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	connMgr, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Storage.PostgresURL,
		ReplicaURLs: splitReplicaURLs(cfg.Storage.PostgresReplicaURLs),
		MaxConns:    cfg.Storage.PostgresMaxConns,
		MinConns:    cfg.Storage.PostgresMinConns,
		Timeout:     cfg.Storage.PostgresTimeout,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	db := connMgr.Primary()

	var redisClient *postgres.RedisClient
	if cfg.Storage.RedisURL != "" {
		redisClient, err = postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			logger.WithError(err).Error("failed to connect to redis")
			os.Exit(1)
		}
	}

	var files projects.FileStore
	if cfg.Storage.S3Bucket != "" {
		s3Client, s3Err := postgres.NewS3Client(cfg.Storage)
		if s3Err != nil {
			logger.WithError(s3Err).Error("failed to initialize s3 storage")
			os.Exit(1)
		}
		files = s3Client
	} else {
		logger.Warn("no s3 bucket configured, version file uploads disabled")
	}

	var cache *postgres.ProjectCache
	if cfg.Storage.CacheEnabled && redisClient != nil {
		cache, err = postgres.NewProjectCache(projects.NewStore(db), redisClient, cfg.Storage.L1CacheSize, metrics)
		if err != nil {
			logger.WithError(err).Error("failed to initialize project cache")
			os.Exit(1)
		}
	}

	catalog := bans.NewCatalog(logger)
	catalogStop := make(chan struct{})
	if cfg.Bans.MessagesPath != "" {
		if err := catalog.LoadFile(cfg.Bans.MessagesPath); err != nil {
			logger.WithError(err).Error("failed to load ban message catalog")
			os.Exit(1)
		}
		if cfg.Bans.WatchMessages {
			// Watch blocks until stopped, so it gets its own goroutine.
			go func() {
				if err := catalog.Watch(catalogStop); err != nil {
					logger.WithError(err).Warn("ban message catalog watch unavailable")
				}
			}()
		}
	}

	var provider auth.IdentityProvider
	if cfg.Auth.OIDCEnabled {
		oidcProvider, oidcErr := auth.NewOIDCProvider(ctx, cfg.Auth)
		if oidcErr != nil {
			logger.WithError(oidcErr).Error("failed to initialize oidc provider")
			os.Exit(1)
		}
		provider = oidcProvider
	} else {
		logger.Warn("oidc disabled, sign-in endpoints will report unavailable")
	}

	deps := api.Dependencies{
		DB:         db,
		Files:      files,
		Cache:      cache,
		Provider:   provider,
		Catalog:    catalog,
		SessionTTL: cfg.Auth.SessionTTL,
		Logger:     logger,
		Metrics:    metrics,
		Tracing:    cfg.Observability.OTelEnabled,
	}
	if redisClient != nil {
		deps.Redis = redisClient.GetClient()
	}
	server := api.NewServer(deps)

	var sweeper *bans.Sweeper
	if cfg.Bans.SweepSchedule != "" {
		sweeper = bans.NewSweeper(bans.NewStore(db), logger, cfg.Bans.SweepSchedule)
		if err := sweeper.Start(); err != nil {
			logger.WithError(err).Error("failed to start ban sweeper")
			os.Exit(1)
		}
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := newHealthServer(cfg, db, redisClient, metrics)
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	if sweeper != nil {
		shutdown.Register(func(ctx context.Context) error {
			sweeper.Stop()
			return nil
		})
	}
	shutdown.Register(func(ctx context.Context) error {
		close(catalogStop)
		return nil
	})
	if redisClient != nil {
		shutdown.Register(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.Register(func(ctx context.Context) error {
		return connMgr.Close()
	})
	if providers != nil {
		shutdown.Register(providers.Shutdown)
	}

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("api server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("api server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown completed with errors")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// newHealthServer serves liveness, readiness and metrics on a separate
// port so probes and scrapes stay off the public listener.
func newHealthServer(cfg *config.Config, db *sql.DB, redisClient *postgres.RedisClient, metrics *observability.Metrics) *http.Server {
	var raw *redis.Client
	if redisClient != nil {
		raw = redisClient.GetClient()
	}
	checker := observability.NewHealthChecker(db, raw)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	return &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func splitReplicaURLs(urls string) []string {
	if urls == "" {
		return nil
	}
	var out []string
	for _, u := range strings.Split(urls, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
