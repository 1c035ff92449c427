package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket accumulates permission tokens at a fixed rate up to a cap.
// All token math is floating point; refill is clamped at capacity so long
// idle periods never accumulate unbounded credit.
type TokenBucket struct {
	capacity   float64
	refillRate float64 // tokens per second

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a full bucket with the given capacity and refill
// rate in tokens per second.
func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		lastRefill: time.Now(),
	}
}

// refill adds tokens for the elapsed wall-clock time. Caller holds the lock.
func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.refillRate)
	}
	b.lastRefill = now
}

// Consume tries to take n tokens. On success it returns (true, 0). On
// rejection no tokens are consumed and the second return value is how long
// until n tokens will be available at the current refill rate.
func (b *TokenBucket) Consume(n float64) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())

	if b.tokens >= n {
		b.tokens -= n
		return true, 0
	}

	needed := n - b.tokens
	wait := time.Duration(needed / b.refillRate * float64(time.Second))
	return false, wait
}

// Probe reports whether n tokens are available right now and, when they are
// not, how long until they will be. Nothing is consumed either way.
func (b *TokenBucket) Probe(n float64) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())

	if b.tokens >= n {
		return true, 0
	}
	needed := n - b.tokens
	return false, time.Duration(needed / b.refillRate * float64(time.Second))
}

// Peek reports the current token count without consuming.
func (b *TokenBucket) Peek() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())
	return b.tokens
}

// Capacity returns the bucket's maximum token count.
func (b *TokenBucket) Capacity() float64 {
	return b.capacity
}
