package bans

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quarryhost/quarry/pkg/observability"
)

// Sweeper periodically deactivates expired ban rows. The checker already
// ignores expired rows at query time, so the sweep only keeps the active
// partition small.
type Sweeper struct {
	store    *Store
	logger   *observability.Logger
	schedule string
	cron     *cron.Cron
}

// NewSweeper creates a sweeper running on the given cron schedule
// (e.g. "@hourly").
func NewSweeper(store *Store, logger *observability.Logger, schedule string) *Sweeper {
	return &Sweeper{
		store:    store,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start schedules the sweep and starts the cron runner.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.sweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner, waiting for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.store.DeactivateExpired(ctx)
	if err != nil {
		s.logger.WithError(err).Error("ban expiry sweep failed")
		return
	}
	if n > 0 {
		s.logger.WithField("deactivated", n).Info("deactivated expired bans")
	}
}
