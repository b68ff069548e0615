package app

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// PacingScheduler spaces the jobs of a bulk run. Fixed-interval or zero-delay
// bulk sends are a detectable automation signature on the messaging channel,
// so each gap is drawn uniformly at random from [min, max]. The wait is
// cancellable; an aborted wait returns the context's error immediately.
type PacingScheduler struct {
	min    time.Duration
	max    time.Duration
	logger *slog.Logger
}

func NewPacingScheduler(min, max time.Duration, logger *slog.Logger) *PacingScheduler {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	return &PacingScheduler{min: min, max: max, logger: logger.With("component", "pacing")}
}

// NextDelay draws one inter-job delay.
func (s *PacingScheduler) NextDelay() time.Duration {
	spread := s.max - s.min
	if spread <= 0 {
		return s.min
	}
	return s.min + time.Duration(rand.Int63n(int64(spread)+1))
}

// Wait blocks for one randomized gap or until ctx is cancelled.
func (s *PacingScheduler) Wait(ctx context.Context) error {
	delay := s.NextDelay()
	pacingDelayHist.Observe(delay.Seconds())
	s.logger.DebugContext(ctx, "pacing before next job", "delay", delay.String())

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Estimate returns the expected total pacing time for a run of n jobs:
// (n-1) gaps at the average delay. No gap precedes the first job.
func (s *PacingScheduler) Estimate(n int) time.Duration {
	if n <= 1 {
		return 0
	}
	avg := (s.min + s.max) / 2
	return time.Duration(n-1) * avg
}
