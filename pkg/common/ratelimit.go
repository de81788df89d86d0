package common

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter provides thread-safe rate limiting with dynamically adjustable limits.
// It keeps concurrent callers of a remote service under that service's request quota.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex // Protects concurrent access to the limiter
}

// NewRateLimiter creates a RateLimiter with the specified requests per second (rps)
// and burst size. A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(toLimit(rps), max(burst, 1))}
}

// Wait blocks until the rate limiter allows an event or the context is canceled.
// It returns an error if the context is canceled while waiting.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Wait(ctx)
}

// UpdateLimits dynamically adjusts the rate limiter's requests per second and burst size,
// for example after a service reports throttling.
func (rl *RateLimiter) UpdateLimits(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(toLimit(rps))
	rl.limiter.SetBurst(max(burst, 1))
}

// Limit returns the current requests per second, +Inf when unlimited.
func (rl *RateLimiter) Limit() float64 {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if l := rl.limiter.Limit(); l != rate.Inf {
		return float64(l)
	}
	return math.Inf(1)
}

// Burst returns the current burst size.
func (rl *RateLimiter) Burst() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Burst()
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}
