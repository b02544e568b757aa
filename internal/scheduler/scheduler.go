package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMinSleep is the shortest pause between cycles, even when a cycle overran.
const DefaultMinSleep = 100 * time.Millisecond

// TickFunc runs one cycle. cycle counts from 1.
type TickFunc func(ctx context.Context, cycle int) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	MinSleep     time.Duration
	StartupDelay time.Duration
}

// Scheduler drives a fixed-cadence loop: each cycle is followed by the rest
// of the interval, and a failed cycle by a full interval.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.MinSleep <= 0 {
		opts.MinSleep = DefaultMinSleep
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// Run blocks, invoking tick until ctx is cancelled. It returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	for cycle := 1; ; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := s.now()
		err := tick(ctx, cycle)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		pause := s.Pause(s.now().Sub(started), err)
		if err != nil {
			s.logger.Error().Err(err).Int("cycle", cycle).Dur("retry_in", pause).Msg("cycle failed")
		} else {
			s.logger.Debug().Int("cycle", cycle).Dur("next_in", pause).Msg("cycle finished")
		}

		if err := sleep(ctx, pause); err != nil {
			return err
		}
	}
}

// Pause returns how long to wait after a cycle that took elapsed.
func (s *Scheduler) Pause(elapsed time.Duration, cycleErr error) time.Duration {
	if cycleErr != nil {
		return s.opts.Interval
	}
	return max(s.opts.MinSleep, s.opts.Interval-elapsed)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
