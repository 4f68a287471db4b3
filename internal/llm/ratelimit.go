package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// rateLimiter spaces requests to one provider. Tokens accrue continuously
// and are computed when a caller reserves one, so nothing runs in the
// background. A negative balance is the queue of callers already waiting.
type rateLimiter struct {
	mu       sync.Mutex
	provider string
	capacity float64
	tokens   float64
	interval time.Duration // time to earn one token
	last     time.Time
	now      func() time.Time
}

func newRateLimiter(provider string, requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &rateLimiter{
		provider: provider,
		capacity: float64(requestsPerMinute),
		tokens:   float64(requestsPerMinute),
		interval: time.Minute / time.Duration(requestsPerMinute),
		last:     time.Now(),
		now:      time.Now,
	}
}

// reserve takes a token and returns how long the caller must wait before
// using it.
func (rl *rateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if elapsed := now.Sub(rl.last); elapsed > 0 {
		rl.tokens = min(rl.capacity, rl.tokens+float64(elapsed)/float64(rl.interval))
	}
	rl.last = now

	rl.tokens--
	if rl.tokens >= 0 {
		return 0
	}
	return time.Duration(-rl.tokens * float64(rl.interval))
}

// release hands back a reservation that was never used.
func (rl *rateLimiter) release() {
	rl.mu.Lock()
	rl.tokens = min(rl.capacity, rl.tokens+1)
	rl.mu.Unlock()
}

func (rl *rateLimiter) wait(ctx context.Context) error {
	delay := rl.reserve()
	if delay <= 0 {
		return nil
	}

	slog.Debug("Waiting for LLM rate limit", "provider", rl.provider, "delay", delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		rl.release()
		return fmt.Errorf("%s rate limit wait canceled: %w", rl.provider, ctx.Err())
	case <-timer.C:
		return nil
	}
}
