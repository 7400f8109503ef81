package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces API requests at least one interval apart. Each Wait
// reserves the next free slot, so concurrent callers are served in arrival
// order. A nil *RateLimiter never blocks.
type RateLimiter struct {
	interval time.Duration

	mu   sync.Mutex
	next time.Time // earliest start of the next request
}

// NewRateLimiter creates a RateLimiter that allows perMinute requests per
// minute. It returns nil when perMinute is not positive.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{interval: time.Minute / time.Duration(perMinute)}
}

// Wait blocks until the caller's slot starts or ctx is done. A cancelled
// wait gives its slot back when no later caller has queued behind it.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil || rl == nil {
		return err
	}

	rl.mu.Lock()
	slot := time.Now()
	if rl.next.After(slot) {
		slot = rl.next
	}
	rl.next = slot.Add(rl.interval)
	rl.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		rl.mu.Lock()
		if rl.next.Equal(slot.Add(rl.interval)) {
			rl.next = slot
		}
		rl.mu.Unlock()
		return ctx.Err()
	}
}
