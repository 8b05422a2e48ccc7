// Package backoff implements the reconnection policy: a pure decision over
// the attempt counter, with exponentially growing delays capped at 30s.
package backoff

import "time"

// MaxDelay caps the exponential growth. Bounds the worst-case wait while
// still spreading reconnect storms.
const MaxDelay = 30 * time.Second

// Policy decides whether and when another reconnect attempt may run.
// The zero value denies everything; use New for sensible construction.
type Policy struct {
	// BaseDelay is the delay before attempt 0.
	BaseDelay time.Duration

	// MaxAttempts caps the number of scheduled reconnects. 0 means unlimited.
	MaxAttempts int
}

// New creates a Policy. A non-positive base falls back to one second.
func New(base time.Duration, maxAttempts int) Policy {
	if base <= 0 {
		base = time.Second
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return Policy{BaseDelay: base, MaxAttempts: maxAttempts}
}

// Allow reports whether attempt number `attempts` (the count of reconnects
// already scheduled) may be scheduled.
func (p Policy) Allow(attempts int) bool {
	return p.MaxAttempts == 0 || attempts < p.MaxAttempts
}

// Delay returns the wait before attempt n (0-indexed):
// min(BaseDelay * 2^n, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= MaxDelay {
			return MaxDelay
		}
	}
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}
