// quarry-sweeper is a standalone maintenance job: on a cron schedule it
// deactivates expired ban rows, deletes expired sessions, and drops team
// invitations that were never accepted. Run it as a sidecar or a
// Kubernetes CronJob (with -once) next to the API server, which enforces
// ban and session expiry at query time regardless.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/quarryhost/quarry/pkg/auth"
	"github.com/quarryhost/quarry/pkg/bans"
	"github.com/quarryhost/quarry/pkg/orgs"
)

const sweepTimeout = 2 * time.Minute

func main() {
	postgresURL := flag.String("postgres-url", os.Getenv("QUARRY_POSTGRES_URL"), "PostgreSQL connection URL")
	schedule := flag.String("schedule", "@hourly", "Cron schedule for the sweep")
	inviteMaxAge := flag.Duration("invite-max-age", 30*24*time.Hour, "Age after which pending team invitations are dropped")
	once := flag.Bool("once", false, "Run a single sweep and exit")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if *postgresURL == "" {
		logger.Fatal("postgres URL is required (-postgres-url or QUARRY_POSTGRES_URL)")
	}

	db, err := sql.Open("postgres", *postgresURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.WithError(err).Fatal("failed to reach database")
	}

	banStore := bans.NewStore(db)
	sessionStore := auth.NewSessionStore(db)
	orgService := orgs.NewService(db)

	sweep := func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		if n, err := banStore.DeactivateExpired(ctx); err != nil {
			logger.WithError(err).Error("ban sweep failed")
		} else if n > 0 {
			logger.WithField("deactivated", n).Info("deactivated expired bans")
		}

		if n, err := sessionStore.DeleteExpired(ctx); err != nil {
			logger.WithError(err).Error("session sweep failed")
		} else if n > 0 {
			logger.WithField("deleted", n).Info("deleted expired sessions")
		}

		if n, err := orgService.DeleteStaleInvites(ctx, *inviteMaxAge); err != nil {
			logger.WithError(err).Error("invite sweep failed")
		} else if n > 0 {
			logger.WithField("deleted", n).Info("dropped stale team invitations")
		}
	}

	if *once {
		sweep()
		return
	}

	runner := cron.New()
	if _, err := runner.AddFunc(*schedule, sweep); err != nil {
		logger.WithError(err).Fatalf("invalid schedule %q", *schedule)
	}

	logger.WithField("schedule", *schedule).Info("sweeper started")
	runner.Run()
}
