// Package scheduler runs the periodic maintenance jobs of the service.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Expirer moves stale referrals to expired
type Expirer interface {
	ExpireStaleReferrals(ctx context.Context) (int64, error)
}

// Scheduler manages the cron jobs
type Scheduler struct {
	cron    *cron.Cron
	expirer Expirer
	logger  *slog.Logger
	timeout time.Duration
}

// New creates a scheduler whose job panics are recovered and logged
func New(expirer Expirer, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:    c,
		expirer: expirer,
		logger:  logger,
		timeout: time.Minute,
	}
}

// Start registers the expiry sweep on schedule and starts the cron loop
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.sweepExpired); err != nil {
		return fmt.Errorf("failed to schedule referral expiry sweep %q: %w", schedule, err)
	}
	s.logger.Info("scheduled referral expiry sweep", "schedule", schedule)

	s.cron.Start()
	return nil
}

// Stop stops the cron loop. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) sweepExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.expirer.ExpireStaleReferrals(ctx)
	if err != nil {
		s.logger.Error("referral expiry sweep failed", "error", err)
		return
	}
	s.logger.Debug("referral expiry sweep finished", "expired", n)
}
