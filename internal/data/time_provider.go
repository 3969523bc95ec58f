package data

import "time"

// TimeProvider supplies the timestamps the repositories stamp onto queue and
// result rows. Lease expiry, retry backoff, and revision timestamps all flow
// through it, so tests can pin the clock instead of sleeping.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider reads the system clock.
type RealTimeProvider struct{}

// Now returns the current system time.
func (r *RealTimeProvider) Now() time.Time {
	return time.Now()
}

// FixedTimeProvider pins the clock to a settable instant.
type FixedTimeProvider struct {
	fixedTime time.Time
}

// NewFixedTimeProvider creates a FixedTimeProvider pinned to t.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{fixedTime: t}
}

// Now returns the pinned time.
func (f *FixedTimeProvider) Now() time.Time {
	return f.fixedTime
}

// SetTime moves the pinned clock to t.
func (f *FixedTimeProvider) SetTime(t time.Time) {
	f.fixedTime = t
}

// Advance moves the pinned clock forward by d. Tests use it to step past a
// lease or a retry backoff without sleeping.
func (f *FixedTimeProvider) Advance(d time.Duration) {
	f.fixedTime = f.fixedTime.Add(d)
}
