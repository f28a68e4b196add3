// Package job holds queue policies shared by the repository, the runner and the reaper.
package job

import (
	"errors"
	"time"
)

// Policy defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 30 * time.Second
	DefaultMaxDelay    = 10 * time.Minute
	DefaultLease       = 2 * time.Minute
)

// ErrInvalidPolicy indicates a policy was configured with non-positive values.
var ErrInvalidPolicy = errors.New("retry policy values must be positive")

// RetryPolicy decides how often and how soon a failed job is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns three attempts with 30s, 60s backoff capped at ten minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay, MaxDelay: DefaultMaxDelay}
}

// Validate reports whether all policy values are usable.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts <= 0 || p.BaseDelay <= 0 || p.MaxDelay <= 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// Normalize fills zero values with defaults.
func (p RetryPolicy) Normalize() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Exhausted reports whether a job that has already failed retryCount times, and is failing again
// now, has used up its attempts.
func (p RetryPolicy) Exhausted(retryCount int) bool {
	return retryCount+1 >= p.MaxAttempts
}

// Backoff returns the delay before the next attempt after retryCount prior failures:
// BaseDelay * 2^retryCount, capped at MaxDelay.
func (p RetryPolicy) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := p.BaseDelay
	for range retryCount {
		if delay >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// LeaseSeconds converts a lease duration to whole seconds, never less than one. Zero or negative
// durations resolve to DefaultLease.
func LeaseSeconds(d time.Duration) int {
	if d <= 0 {
		d = DefaultLease
	}
	s := int(d / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
