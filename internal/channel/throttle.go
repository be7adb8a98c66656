package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"relaybot/internal/domain"
)

// throttle is a per-channel token bucket for outbound sends.
type throttle struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     float64
	rate    float64 // tokens per second
	maxWait time.Duration
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

// newThrottle returns nil when ratePerMinute is not positive; a nil throttle
// never blocks.
func newThrottle(maxBurst int, ratePerMinute float64, maxWait time.Duration) *throttle {
	if ratePerMinute <= 0 {
		return nil
	}
	if maxBurst <= 0 {
		maxBurst = 5
	}
	if maxWait <= 0 {
		maxWait = 2 * time.Second
	}
	return &throttle{
		buckets: make(map[string]*bucket),
		max:     float64(maxBurst),
		rate:    ratePerMinute / 60.0,
		maxWait: maxWait,
		now:     time.Now,
	}
}

// Take consumes one token for key. It waits up to maxWait for the bucket to
// refill and fails with domain.ErrRateLimited when the wait would be longer.
func (t *throttle) Take(ctx context.Context, key string) error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	now := t.now()
	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{tokens: t.max, lastTime: now}
		t.buckets[key] = b
	}
	b.tokens += now.Sub(b.lastTime).Seconds() * t.rate
	if b.tokens > t.max {
		b.tokens = t.max
	}
	b.lastTime = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		t.mu.Unlock()
		return nil
	}

	wait := time.Duration((1.0 - b.tokens) / t.rate * float64(time.Second))
	if wait > t.maxWait {
		t.mu.Unlock()
		return fmt.Errorf("%w: channel %s send budget exhausted, next slot in %s", domain.ErrRateLimited, key, wait.Round(time.Millisecond))
	}
	// Reserve the token now so later callers queue behind this one.
	b.tokens -= 1.0
	t.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
