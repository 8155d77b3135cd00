// Package ratelimit throttles renders and probes sent to the target.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a fixed pause before each request and, optionally, a
// requests-per-second ceiling. Wait always blocks until both are satisfied.
type Throttle struct {
	delay   time.Duration
	limiter *rate.Limiter
}

// NewThrottle creates a throttle. A requestsPerSecond of zero or less
// disables the rate ceiling; burst below one is raised to one.
func NewThrottle(delay time.Duration, requestsPerSecond float64, burst int) *Throttle {
	t := &Throttle{delay: delay}
	if requestsPerSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return t
}

// Wait blocks for the fixed delay and then for a rate token.
// It returns the context error if ctx ends first.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return ctx.Err()
	}

	if t.delay > 0 {
		timer := time.NewTimer(t.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if t.limiter != nil {
		return t.limiter.Wait(ctx)
	}
	return ctx.Err()
}
