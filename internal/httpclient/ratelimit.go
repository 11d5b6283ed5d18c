package httpclient

import (
	"sync"
	"time"
)

// RateLimiter is a token-bucket outbound request gate, adapted from the
// teacher's position-sizing rate limiter to throttle polling against a
// single vendor endpoint instead of order submission.
type RateLimiter struct {
	maxRequests int
	interval    time.Duration

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter builds a limiter allowing maxRequests per interval.
func NewRateLimiter(maxRequests int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		interval:    interval,
		tokens:      maxRequests,
		lastRefill:  time.Now(),
	}
}

// Wait blocks until a token is available.
func (rl *RateLimiter) Wait() {
	for !rl.allow() {
		time.Sleep(100 * time.Millisecond)
	}
}

func (rl *RateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) refill() {
	now := time.Now()
	if now.Sub(rl.lastRefill) >= rl.interval {
		rl.tokens = rl.maxRequests
		rl.lastRefill = now
	}
}

// WithRateLimiter attaches a pre-request gate to c, returning c for chaining.
// The Bithumb trigger parts use this to stay under Bithumb's documented
// per-IP request ceiling instead of relying on 429 detection alone.
func (c *Client) WithRateLimiter(rl *RateLimiter) *Client {
	c.limiter = rl
	return c
}
