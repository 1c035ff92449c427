package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Well-known limit names. WeightPerMinute is the only bucket that consumes
// the caller-specified weight; every other bucket is charged 1 per call.
const (
	OrdersPerSecond = "orders/sec"
	WeightPerMinute = "weight/min"
	OrdersPerDay    = "orders/day"
)

// pollInterval bounds how long Acquire sleeps in one step so cancellation
// stays responsive even for long waits.
const pollInterval = 50 * time.Millisecond

// Limit describes one named throughput ceiling.
type Limit struct {
	Name     string
	MaxUnits int
	Window   time.Duration
}

// RateLimitError reports a rejected or timed-out acquire.
type RateLimitError struct {
	Limit      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit %q exceeded, retry after %v", e.Limit, e.RetryAfter)
}

// Limiter enforces multiple simultaneous throughput ceilings on outbound
// calls. Each ceiling is backed 1:1 by a token bucket whose refill rate is
// maxUnits/window.
type Limiter struct {
	limits  []Limit
	buckets map[string]*TokenBucket

	mu            sync.Mutex
	totalRequests uint64
	totalBlocked  uint64
	totalWait     time.Duration
}

// NewLimiter creates a limiter from the given ceilings.
func NewLimiter(limits []Limit) *Limiter {
	buckets := make(map[string]*TokenBucket, len(limits))
	for _, l := range limits {
		rate := float64(l.MaxUnits) / l.Window.Seconds()
		buckets[l.Name] = NewTokenBucket(float64(l.MaxUnits), rate)
	}
	return &Limiter{limits: limits, buckets: buckets}
}

// cost returns the token charge for one bucket given the call weight.
func cost(name string, weight int) float64 {
	if name == WeightPerMinute {
		return float64(weight)
	}
	return 1
}

// Check reports whether a call of the given weight can proceed right now.
// When it cannot, the returned wait is the maximum across all buckets (the
// call is only as fast as its tightest ceiling) and the name identifies the
// bucket demanding that wait. Tokens are only consumed when every bucket
// admits the call.
func (l *Limiter) Check(weight int) (bool, time.Duration, string) {
	ok, wait, name := l.admit(weight)
	l.mu.Lock()
	l.totalRequests++
	if !ok {
		l.totalBlocked++
	}
	l.mu.Unlock()
	return ok, wait, name
}

// admit is Check without counter accounting, so Acquire's polling does not
// inflate the request counters.
func (l *Limiter) admit(weight int) (bool, time.Duration, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var maxWait time.Duration
	var limiting string
	for _, lim := range l.limits {
		ok, wait := l.buckets[lim.Name].Probe(cost(lim.Name, weight))
		if !ok && wait >= maxWait {
			maxWait = wait
			limiting = lim.Name
		}
	}

	if limiting != "" {
		return false, maxWait, limiting
	}

	for _, lim := range l.limits {
		l.buckets[lim.Name].Consume(cost(lim.Name, weight))
	}
	return true, 0, ""
}

// Acquire blocks until every bucket admits a call of the given weight, the
// context is cancelled, or its deadline passes. It polls in small increments
// rather than sleeping the full wait in one step. On failure it returns a
// *RateLimitError carrying the retry hint of the tightest bucket. One call
// counts as one request and at most one block, however many polls it takes.
func (l *Limiter) Acquire(ctx context.Context, weight int) error {
	start := time.Now()
	l.mu.Lock()
	l.totalRequests++
	l.mu.Unlock()

	blocked := false
	for {
		ok, wait, name := l.admit(weight)
		if ok {
			l.mu.Lock()
			l.totalWait += time.Since(start)
			l.mu.Unlock()
			return nil
		}

		if !blocked {
			blocked = true
			l.mu.Lock()
			l.totalBlocked++
			l.mu.Unlock()
		}

		sleep := wait
		if sleep > pollInterval {
			sleep = pollInterval
		}

		select {
		case <-ctx.Done():
			return &RateLimitError{Limit: name, RetryAfter: wait}
		case <-time.After(sleep):
		}
	}
}

// Status reports per-bucket token levels and aggregate counters.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	buckets := make([]BucketStatus, 0, len(l.limits))
	for _, lim := range l.limits {
		b := l.buckets[lim.Name]
		buckets = append(buckets, BucketStatus{
			Name:     lim.Name,
			Tokens:   b.Peek(),
			Capacity: b.Capacity(),
		})
	}

	return Status{
		Buckets:       buckets,
		TotalRequests: l.totalRequests,
		TotalBlocked:  l.totalBlocked,
		TotalWait:     l.totalWait,
	}
}

// BucketStatus is a read-only snapshot of one bucket.
type BucketStatus struct {
	Name     string  `json:"name"`
	Tokens   float64 `json:"tokens"`
	Capacity float64 `json:"capacity"`
}

// Status is a read-only snapshot of the limiter.
type Status struct {
	Buckets       []BucketStatus `json:"buckets"`
	TotalRequests uint64         `json:"total_requests"`
	TotalBlocked  uint64         `json:"total_blocked"`
	TotalWait     time.Duration  `json:"total_wait"`
}
