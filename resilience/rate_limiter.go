package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/relay/logger"
)

// RateLimiterConfig configures a rate limiter.
type RateLimiterConfig struct {
	// Name identifies this rate limiter in logs.
	Name string
	// Rate is the number of tokens added per second.
	Rate float64
	// Burst is the bucket size. It defaults to one tenth of a second's worth
	// of tokens, and at least one.
	Burst int
}

// RateLimiter implements a token bucket. WaitN may borrow past an empty
// bucket, so a request larger than Burst waits for its deficit instead of
// failing.
type RateLimiter struct {
	config RateLimiterConfig

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 1
	}
	if config.Burst <= 0 {
		config.Burst = max(1, int(config.Rate/10))
	}
	return &RateLimiter{
		config:     config,
		tokens:     float64(config.Burst),
		lastRefill: time.Now(),
	}
}

// Allow reports whether one token is available, taking it if so.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN reports whether n tokens are available, taking them if so.
func (rl *RateLimiter) AllowN(n int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= float64(n) {
		rl.tokens -= float64(n)
		return true
	}
	return false
}

// Wait blocks until one token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN takes n tokens, blocking for as long as the bucket needs to cover
// them. A cancelled wait keeps the reservation.
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	wait := rl.reserveN(n)
	if wait <= 0 {
		return nil
	}

	logger.Debug("rate limited", logger.Fields(
		logger.FieldComponent, rl.config.Name,
		"tokens", n,
		"wait_ms", wait.Milliseconds(),
	))

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// refill adds tokens for the time elapsed since the last refill. Callers
// hold rl.mu.
func (rl *RateLimiter) refill() {
	now := time.Now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.config.Rate
	rl.lastRefill = now

	if rl.tokens > float64(rl.config.Burst) {
		rl.tokens = float64(rl.config.Burst)
	}
}

// reserveN takes n tokens, possibly going negative, and returns how long
// the caller must wait for the bucket to cover them.
func (rl *RateLimiter) reserveN(n int) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	rl.tokens -= float64(n)
	if rl.tokens >= 0 {
		return 0
	}
	return time.Duration(-rl.tokens / rl.config.Rate * float64(time.Second))
}

// Burst returns the bucket size.
func (rl *RateLimiter) Burst() int { return rl.config.Burst }
