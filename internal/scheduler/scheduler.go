package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RunFunc executes one full crossover check cycle.
type RunFunc func(ctx context.Context) error

// Options tune scheduler behaviour.
type Options struct {
	// Hour and Minute pin the daily run to a wall-clock time in Location.
	Hour     int
	Minute   int
	Location *time.Location
	// StartupDelay triggers an initial smoke run shortly after start.
	StartupDelay time.Duration
}

// Scheduler drives daily execution of the crossover check. At most one
// cycle is in flight at a time: a trigger that fires while a cycle is
// still running is skipped, not queued.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// Run blocks, invoking the run function once after the startup delay and
// then daily at the configured wall-clock time until ctx is cancelled. The
// next trigger is recomputed after each run completes, so a long cycle
// delays but never stacks runs.
func (s *Scheduler) Run(ctx context.Context, run RunFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		s.logger.Info().Msg("running initial check on startup")
		s.runOnce(ctx, run)
	}

	for {
		next := s.NextTrigger(s.now())
		delay := next.Sub(s.now())
		s.logger.Info().Time("next_run", next).Dur("in", delay).Msg("waiting for next scheduled check")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		s.runOnce(ctx, run)
	}
}

// NextTrigger returns the next daily wall-clock trigger strictly after now.
func (s *Scheduler) NextTrigger(now time.Time) time.Time {
	local := now.In(s.opts.Location)
	target := time.Date(local.Year(), local.Month(), local.Day(), s.opts.Hour, s.opts.Minute, 0, 0, s.opts.Location)
	if !target.After(local) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// runOnce executes a cycle under the single-flight guard and reports
// whether it actually ran.
func (s *Scheduler) runOnce(ctx context.Context, run RunFunc) bool {
	if !s.mu.TryLock() {
		s.logger.Warn().Msg("previous check still running; skipping trigger")
		return false
	}
	defer s.mu.Unlock()

	start := s.now()
	s.logger.Info().Time("started_at", start).Msg("executing crossover check")

	if err := run(ctx); err != nil {
		s.logger.Error().Err(err).Msg("crossover check failed")
	} else {
		s.logger.Info().Dur("elapsed", s.now().Sub(start)).Msg("crossover check completed")
	}
	return true
}
