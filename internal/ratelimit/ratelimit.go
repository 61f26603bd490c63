// Package ratelimit throttles API callers with per-key token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of a single Take.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the bucket will be full again.
	ResetAt time.Time
}

type bucket struct {
	tokens   float64
	rate     int
	refilled time.Time
	seen     time.Time
}

// Limiter keeps one token bucket per caller key. Each bucket holds up to
// its rate in tokens and refills linearly over the window.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration
	now     func() time.Time
}

// New creates a Limiter that allows rate requests per window for keys
// without an override.
func New(rate int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// Take consumes a token for key when one is available. A positive override
// replaces the default rate for this key; a rate change keeps the current
// token count, capped at the new rate.
func (l *Limiter) Take(key string, override int) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.bucketFor(key, override, now)

	d := Decision{Limit: b.rate}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	}
	d.Remaining = max(int(b.tokens), 0)

	missing := float64(b.rate) - b.tokens
	d.ResetAt = now
	if missing > 0 {
		d.ResetAt = now.Add(time.Duration(float64(l.window) * missing / float64(b.rate)))
	}
	return d
}

// bucketFor returns key's bucket refilled up to now. l.mu must be held.
func (l *Limiter) bucketFor(key string, override int, now time.Time) *bucket {
	rate := l.rate
	if override > 0 {
		rate = override
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rate), refilled: now}
		l.buckets[key] = b
	}
	b.rate = rate
	b.seen = now

	if elapsed := now.Sub(b.refilled); elapsed > 0 {
		b.tokens += float64(rate) * elapsed.Seconds() / l.window.Seconds()
		b.refilled = now
	}
	b.tokens = min(b.tokens, float64(rate))
	return b
}

// Prune drops buckets not touched for longer than idle and returns how many
// were removed. A dropped bucket starts full on its next use, so idle should
// be at least the window.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	n := 0
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
