package ratelimit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweepable is a store that can evict idle keys.
type Sweepable interface {
	Sweep(idle time.Duration) int
}

// Sweeper evicts idle buckets on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	store  Sweepable
	idle   time.Duration
	logger zerolog.Logger
}

// NewSweeper schedules store.Sweep(idle) on spec, e.g. "@every 5m".
func NewSweeper(spec string, store Sweepable, idle time.Duration, logger zerolog.Logger) (*Sweeper, error) {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	s := &Sweeper{
		cron:   cron.New(),
		store:  store,
		idle:   idle,
		logger: logger.With().Str("component", "ratelimit_sweeper").Logger(),
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) run() {
	if removed := s.store.Sweep(s.idle); removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("evicted idle rate limit buckets")
	}
}

// Start begins running the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
