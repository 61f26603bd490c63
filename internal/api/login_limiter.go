package api

import (
	"math"
	"sync"
	"time"
)

// loginRateLimiter caps login attempts per client IP in fixed windows.
type loginRateLimiter struct {
	limit   int
	window  time.Duration
	entries sync.Map // ip -> *loginAttempts
}

type loginAttempts struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

func newLoginRateLimiter(limit int, window time.Duration) *loginRateLimiter {
	return &loginRateLimiter{limit: limit, window: window}
}

// allow records an attempt from ip. When the attempt is over the limit it
// returns false and the number of seconds until the window resets.
func (l *loginRateLimiter) allow(ip string) (bool, int) {
	now := time.Now()
	v, _ := l.entries.LoadOrStore(ip, &loginAttempts{resetAt: now.Add(l.window)})
	a := v.(*loginAttempts)

	a.mu.Lock()
	defer a.mu.Unlock()

	if !now.Before(a.resetAt) {
		a.count = 0
		a.resetAt = now.Add(l.window)
	}
	if a.count >= l.limit {
		retry := int(math.Ceil(a.resetAt.Sub(now).Seconds()))
		if retry < 1 {
			retry = 1
		}
		return false, retry
	}
	a.count++
	return true, 0
}

// cleanup drops entries whose window has passed.
func (l *loginRateLimiter) cleanup() {
	now := time.Now()
	l.entries.Range(func(key, v interface{}) bool {
		a := v.(*loginAttempts)
		a.mu.Lock()
		expired := !now.Before(a.resetAt)
		a.mu.Unlock()
		if expired {
			l.entries.Delete(key)
		}
		return true
	})
}
