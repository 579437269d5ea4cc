// Package ratelimit paces request slots and drives the request rate through
// the phases of a load profile.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// recheckInterval caps a single sleep so that rate changes made while a
// caller waits take effect quickly.
const recheckInterval = 100 * time.Millisecond

type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

// NewRateLimiter returns a token bucket releasing rps requests per second.
// Zero disables limiting.
func NewRateLimiter(rps float64) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burstFor(rps)),
	}
}

// Wait blocks until the next request may go out and returns the moment it
// was scheduled for.
func (r *RateLimiter) Wait(ctx context.Context) (time.Time, error) {
	for {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}

		r.mu.RLock()
		limiter := r.limiter
		limit := limiter.Limit()
		r.mu.RUnlock()

		now := time.Now()
		// If rate limit is 0, don't wait (no rate limiting)
		if limit == 0 {
			return now, nil
		}

		res := limiter.ReserveN(now, 1)
		if !res.OK() {
			return time.Time{}, context.DeadlineExceeded
		}
		delay := res.DelayFrom(now)
		if delay == 0 {
			return now, nil
		}

		sleep := delay
		if delay > recheckInterval {
			res.CancelAt(now)
			sleep = recheckInterval
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			if sleep == delay {
				res.Cancel()
			}
			return time.Time{}, ctx.Err()
		case <-timer.C:
		}
		if sleep == delay {
			return now.Add(delay), nil
		}
	}
}

// SetRate changes the rate. Zero disables limiting.
func (r *RateLimiter) SetRate(rps float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter.SetLimit(rate.Limit(rps))
	r.limiter.SetBurst(burstFor(rps))
}

// Rate returns the current rate in requests per second.
func (r *RateLimiter) Rate() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return float64(r.limiter.Limit())
}

func burstFor(rps float64) int {
	if rps < 1 {
		return 1
	}
	return int(math.Ceil(rps))
}
