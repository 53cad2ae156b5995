// Package scheduler drives the trade cycle on a fixed cadence with
// uniform jitter. At most one cycle is ever in flight: the next delay is
// armed only after the previous cycle returns, so an overrun delays the
// schedule instead of queueing behind it.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/lcerda/tidebot/core"
)

// Cycle is one trade cycle invocation.
type Cycle func(ctx context.Context) error

// Scheduler repeatedly runs a Cycle on the configured cadence.
type Scheduler struct {
	log            core.Logger
	interval       time.Duration
	jitter         time.Duration
	firstImmediate bool
	rng            *rand.Rand
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRandSource replaces the jitter source, used by tests.
func WithRandSource(src rand.Source) Option {
	return func(s *Scheduler) {
		s.rng = rand.New(src)
	}
}

// New returns a scheduler with the given cadence.
func New(log core.Logger, cfg core.CadenceConfig, options ...Option) *Scheduler {
	s := &Scheduler{
		log:            log,
		interval:       time.Duration(cfg.CycleIntervalMinutes) * time.Minute,
		jitter:         time.Duration(cfg.JitterSeconds) * time.Second,
		firstImmediate: cfg.FirstRunImmediate,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Run blocks until ctx is canceled, invoking cycle on the cadence.
// Cycle errors are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context, cycle Cycle) {
	if s.firstImmediate {
		s.invoke(ctx, cycle)
	}

	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-timer.C:
			s.invoke(ctx, cycle)
			timer.Reset(s.nextDelay())
		}
	}
}

func (s *Scheduler) invoke(ctx context.Context, cycle Cycle) {
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	if err := cycle(ctx); err != nil {
		s.log.WithError(err).Error("trade cycle failed")
	}

	if elapsed := time.Since(started); elapsed > s.interval {
		s.log.WithFields(map[string]any{
			"elapsed":  elapsed.String(),
			"interval": s.interval.String(),
		}).Warn("trade cycle overran its interval")
	}
}

// nextDelay returns the interval shifted by a uniform draw in
// [-jitter, +jitter], floored at zero.
func (s *Scheduler) nextDelay() time.Duration {
	if s.jitter <= 0 {
		return s.interval
	}
	offset := time.Duration(s.rng.Int63n(int64(2*s.jitter)+1)) - s.jitter
	d := s.interval + offset
	if d < 0 {
		return 0
	}
	return d
}
