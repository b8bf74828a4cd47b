// Package ratelimit provides the two limiters guarding the chat entry
// points: a per-user token bucket for message sends and a per-IP failure
// window for authentication attempts.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// tokenBucket refills continuously at rate tokens/second up to capacity.
type tokenBucket struct {
	tokens     float64
	capacity   float64
	rate       float64
	lastRefill time.Time
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.tokens+elapsed*b.rate, b.capacity)
		b.lastRefill = now
	}
}

func (b *tokenBucket) tryConsume(now time.Time, n float64) bool {
	b.refill(now)
	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// Bucketer rate-limits message sends with one token bucket per key.
type Bucketer struct {
	mu       sync.RWMutex
	buckets  map[string]*tokenBucket
	capacity float64
	rate     float64

	now func() time.Time
}

// NewBucketer builds a limiter allowing burst sends within window, e.g.
// 100 messages per 60 seconds refilling at 100/60 tokens per second.
func NewBucketer(burst int, window time.Duration) *Bucketer {
	if burst <= 0 {
		burst = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Bucketer{
		buckets:  make(map[string]*tokenBucket),
		capacity: float64(burst),
		rate:     float64(burst) / window.Seconds(),
		now:      time.Now,
	}
}

// Allow consumes one token for key. On exhaustion it returns false together
// with the number of seconds after which one token will be available again.
func (l *Bucketer) Allow(key string) (bool, int64) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: l.capacity, capacity: l.capacity, rate: l.rate, lastRefill: now}
		l.buckets[key] = b
	}

	if b.tryConsume(now, 1) {
		return true, 0
	}

	retryAfter := int64(math.Ceil((1 - b.tokens) / b.rate))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}

// Remaining reports the tokens currently available for key.
func (l *Bucketer) Remaining(key string) float64 {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		return l.capacity
	}
	b.refill(now)
	return b.tokens
}

// Reset drops the bucket for key, restoring it to full capacity.
func (l *Bucketer) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
