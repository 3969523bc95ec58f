// Package job holds domain policy for queue job claiming. Workers hold a
// claimed audit job under a lease; the policy here turns whatever duration a
// caller asked for into the whole-second lease the queue actually grants.
package job

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// LeaseSource identifies how a lease duration was resolved.
type LeaseSource string

const (
	// LeaseSourceExplicit indicates the caller supplied a positive duration.
	LeaseSourceExplicit LeaseSource = "explicit"
	// LeaseSourceDefault indicates the default duration was used.
	LeaseSourceDefault LeaseSource = "default"
	// LeaseSourceClamped indicates the request was raised to the one-second minimum.
	LeaseSourceClamped LeaseSource = "clamped"
)

// LeasePolicy normalizes lease durations for claims and heartbeats. The queue
// stores leases as whole seconds, so every request passes through here first.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy around the given default.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// LeaseDecision is the resolved lease plus how it was arrived at, so callers
// can log when a worker's requested lease was overridden.
type LeaseDecision struct {
	Seconds   int
	Source    LeaseSource
	Requested time.Duration
}

// UsedDefault reports whether the policy fell back to the default lease.
func (d LeaseDecision) UsedDefault() bool {
	return d.Source == LeaseSourceDefault
}

// Clamped reports whether the request was raised to the minimum lease.
func (d LeaseDecision) Clamped() bool {
	return d.Source == LeaseSourceClamped
}

// Resolve turns a requested duration into whole seconds. Zero means "use the
// default"; anything that would round to less than one second is clamped, a
// zero-length lease being indistinguishable from an already-expired one.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	if p == nil {
		return LeaseDecision{Source: LeaseSourceDefault, Requested: request}
	}

	if request == 0 {
		seconds, _ := wholeSeconds(p.defaultLease)
		return LeaseDecision{Seconds: seconds, Source: LeaseSourceDefault, Requested: request}
	}
	if request < 0 {
		return LeaseDecision{Seconds: 1, Source: LeaseSourceClamped, Requested: request}
	}

	seconds, clamped := wholeSeconds(request)
	source := LeaseSourceExplicit
	if clamped {
		source = LeaseSourceClamped
	}
	return LeaseDecision{Seconds: seconds, Source: source, Requested: request}
}

// wholeSeconds truncates d to seconds and clamps the result into [1, MaxInt].
func wholeSeconds(d time.Duration) (int, bool) {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return 1, true
	}
	if seconds > int64(math.MaxInt) {
		return math.MaxInt, true
	}
	return int(seconds), false
}
