package ratelimit

import (
	"sync"
	"time"
)

// Buckets are keyed by caller identity (client IP plus endpoint), so the
// map grows with the set of distinct callers. A bucket idle for pruneAfter
// is dropped; at the refill rates used here it would have returned to full
// well inside that window.
const pruneAfter = 10 * time.Minute

type tokenBucket struct {
	remaining float64
	limit     float64
	perSecond float64
	touched   time.Time
}

// Limiter is a token-bucket rate limiter over string keys.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	pruned  time.Time
}

func New() *Limiter {
	return &Limiter{buckets: make(map[string]*tokenBucket), pruned: time.Now()}
}

// Allow consumes one token for key if available. A key seen for the first
// time starts with a full bucket of `capacity` tokens refilling at
// refillPerSec tokens per second.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{remaining: capacity, limit: capacity, perSecond: refillPerSec, touched: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.touched).Seconds(); elapsed > 0 {
		b.remaining += elapsed * b.perSecond
		if b.remaining > b.limit {
			b.remaining = b.limit
		}
		b.touched = now
	}

	if now.Sub(l.pruned) > pruneAfter {
		l.pruneLocked(now)
	}

	if b.remaining < 1 {
		return false
	}
	b.remaining--
	return true
}

func (l *Limiter) pruneLocked(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.touched) > pruneAfter {
			delete(l.buckets, k)
		}
	}
	l.pruned = now
}
