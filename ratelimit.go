package main

import (
	"sync"
	"time"
)

// RateLimiter is a token bucket: up to maxTokens requests may burst through,
// refilling at refillRate tokens per second. Adapted from the teacher's
// per-UUID/per-IP rate limiters down to the one thing this simulator needs:
// a single per-session command-rate cap, since I6 already limits the
// simulator to one session at a time.
type RateLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second, 0 = unlimited
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter returns a limiter admitting up to rate commands per
// second with a burst of the same size. rate <= 0 disables limiting.
func NewRateLimiter(rate int) *RateLimiter {
	if rate <= 0 {
		return &RateLimiter{refillRate: 0, lastRefill: time.Now()}
	}
	return &RateLimiter{
		tokens:     float64(rate),
		maxTokens:  float64(rate),
		refillRate: float64(rate),
		lastRefill: time.Now(),
	}
}

// Allow reports whether a command may proceed right now, consuming one
// token if so.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.refillRate == 0 {
		return true
	}

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now

	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

// Wait blocks until a token is available. The wire protocol has no error
// code for "too many requests" (spec.md 6), so an over-fast client is
// throttled with backpressure rather than refused.
func (rl *RateLimiter) Wait() {
	for !rl.Allow() {
		time.Sleep(10 * time.Millisecond)
	}
}
