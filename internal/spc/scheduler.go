package spc

import "time"

// Scheduler enforces a minimum interval between chart updates. It is polled
// with injected time and never sleeps.
type Scheduler struct {
	interval time.Duration
	last     time.Time
}

// NewScheduler starts the interval at baseline.
func NewScheduler(interval time.Duration, baseline time.Time) *Scheduler {
	return &Scheduler{interval: interval, last: baseline}
}

// ShouldUpdate reports whether at least one interval has elapsed since the last update.
func (s *Scheduler) ShouldUpdate(now time.Time) bool {
	return now.Sub(s.last) >= s.interval
}

// MarkUpdated moves the baseline to now.
func (s *Scheduler) MarkUpdated(now time.Time) {
	s.last = now
}

// LastUpdate returns the current baseline.
func (s *Scheduler) LastUpdate() time.Time { return s.last }

// NextUpdate returns the earliest time ShouldUpdate becomes true.
func (s *Scheduler) NextUpdate() time.Time { return s.last.Add(s.interval) }

// Interval returns the configured minimum spacing.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Reset moves the baseline to now without counting as an update.
func (s *Scheduler) Reset(now time.Time) {
	s.last = now
}
