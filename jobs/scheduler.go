// Package jobs runs the periodic maintenance of the auth tables and of the
// in process session store.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultPurgeSchedule runs the purge daily at 03:00
const DefaultPurgeSchedule = "0 0 3 * * *"

// DefaultSweepSchedule evicts idle sessions every ten minutes
const DefaultSweepSchedule = "0 */10 * * * *"

// SessionSweeper evicts sessions idle past their ttl
type SessionSweeper interface {
	Sweep(now time.Time) int
}

// TokenPurger removes reset tokens that can no longer be redeemed
type TokenPurger interface {
	PurgeSpent(ctx context.Context, now time.Time) (int64, error)
}

type Scheduler struct {
	cron     *cron.Cron
	purger   TokenPurger
	schedule string
	log      zerolog.Logger
	now      func() time.Time

	sweeper       SessionSweeper
	sweepSchedule string
}

func NewScheduler(purger TokenPurger, schedule string, log zerolog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		purger:   purger,
		schedule: schedule,
		log:      log,
		now:      time.Now,
	}
}

// WithSessionSweeper also evicts idle sessions on schedule.
func (s *Scheduler) WithSessionSweeper(sweeper SessionSweeper, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	s.sweeper = sweeper
	s.sweepSchedule = schedule
	return s
}

func (s *Scheduler) Start() error {
	if s.purger == nil && s.sweeper == nil {
		return nil
	}

	if s.purger != nil {
		if _, err := s.cron.AddFunc(s.schedule, s.purge); err != nil {
			return err
		}
	}

	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(s.sweepSchedule, s.sweep); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop waits up to five seconds for a running purge to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("maintenance job still running at shutdown")
	}
}

// SweepOnce evicts idle sessions right away.
func (s *Scheduler) SweepOnce() int {
	if s.sweeper == nil {
		return 0
	}
	return s.sweeper.Sweep(s.now())
}

// RunOnce purges spent tokens right away.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	if s.purger == nil {
		return 0, nil
	}
	return s.purger.PurgeSpent(ctx, s.now())
}

func (s *Scheduler) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("purge reset tokens failed")
		return
	}
	s.log.Info().Int64("deleted", n).Msg("purged reset tokens")
}

func (s *Scheduler) sweep() {
	n := s.SweepOnce()
	s.log.Debug().Int("evicted", n).Msg("swept idle sessions")
}
