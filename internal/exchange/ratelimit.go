// ratelimit.go implements a single global token bucket for the MEXC REST
// client. Every outbound request, signed or not, acquires one token before
// it is sent.
package exchange

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a single-threaded token bucket with burst 1: the minimum
// interval between two acquisitions is 1/rps. It refills continuously
// rather than in discrete windows, so acquisitions are spaced evenly
// instead of bursting up to a window boundary and then stalling.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens per second == requests per second
	lastTime time.Time
}

// NewRateLimiter creates a limiter at the given requests-per-second rate
// with burst 1.
func NewRateLimiter(rps float64) *RateLimiter {
	return &RateLimiter{
		tokens:   1,
		capacity: 1,
		rate:     rps,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(rl.lastTime).Seconds()
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
		rl.lastTime = now

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
