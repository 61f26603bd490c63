package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/role"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedLimiter(rate int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := New(rate, window)
	l.now = clock.Now
	return l, clock
}

// serve sends one request through a ByUser-keyed middleware and returns the
// status code.
func serve(h http.Handler, u *auth.User, remote string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestAs(u, remote))
	return rec.Code
}

func TestMembersHaveSeparateBuckets(t *testing.T) {
	l, _ := newClockedLimiter(1, time.Minute)
	h := Middleware(l, ByUser(0))(okHandler())
	alice := &auth.User{ID: "alice", Role: role.ProjectMember, Active: true}
	bob := &auth.User{ID: "bob", Role: role.Viewer, Active: true}

	// Same client address: users are keyed by ID, not IP.
	if code := serve(h, alice, "10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("alice first request: got %d", code)
	}
	if code := serve(h, alice, "10.0.0.1:1"); code != http.StatusTooManyRequests {
		t.Fatalf("alice second request: got %d", code)
	}
	if code := serve(h, bob, "10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("bob should not share alice's bucket: got %d", code)
	}
	if code := serve(h, nil, "10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("anonymous caller should use the ip bucket: got %d", code)
	}
	if l.Len() != 3 {
		t.Fatalf("expected buckets user:alice, user:bob, ip:10.0.0.1; got %d", l.Len())
	}
}

func TestAnonymousCallersShareAddressBucket(t *testing.T) {
	l, _ := newClockedLimiter(2, time.Minute)
	h := Middleware(l, ByUser(0))(okHandler())

	serve(h, nil, "10.0.0.5:1000")
	serve(h, nil, "10.0.0.5:2000")
	if code := serve(h, nil, "10.0.0.5:3000"); code != http.StatusTooManyRequests {
		t.Fatalf("third request from the same host: got %d", code)
	}
	if code := serve(h, nil, "10.0.0.6:1000"); code != http.StatusOK {
		t.Fatalf("other host: got %d", code)
	}
}

func TestAdminRate(t *testing.T) {
	tests := []struct {
		name      string
		adminRate int
		user      *auth.User
		want      int
	}{
		{"admin gets raised rate", 5, &auth.User{ID: "a1", Role: role.Admin}, 5},
		{"admin without override uses default", 0, &auth.User{ID: "a1", Role: role.Admin}, 2},
		{"project admin ignores admin rate", 5, &auth.User{ID: "p1", Role: role.ProjectAdmin}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newClockedLimiter(2, time.Minute)
			h := Middleware(l, ByUser(tt.adminRate))(okHandler())

			allowed := 0
			for i := 0; i < tt.want+3; i++ {
				if serve(h, tt.user, "10.0.0.1:1") == http.StatusOK {
					allowed++
				}
			}
			if allowed != tt.want {
				t.Fatalf("expected %d allowed, got %d", tt.want, allowed)
			}
		})
	}
}

func TestTakeRefillsOverWindow(t *testing.T) {
	// 60 per minute is one token a second.
	l, clock := newClockedLimiter(60, time.Minute)

	for i := 0; i < 60; i++ {
		l.Take("user:u1", 0)
	}
	d := l.Take("user:u1", 0)
	if d.Allowed {
		t.Fatal("bucket should be empty")
	}
	if want := clock.Now().Add(time.Minute); !d.ResetAt.Equal(want) {
		t.Fatalf("empty bucket resets at %v, want %v", d.ResetAt, want)
	}

	clock.Advance(3 * time.Second)
	for i := 0; i < 3; i++ {
		if !l.Take("user:u1", 0).Allowed {
			t.Fatalf("token %d should have refilled", i+1)
		}
	}
	if l.Take("user:u1", 0).Allowed {
		t.Fatal("only three tokens should have refilled")
	}

	clock.Advance(time.Hour)
	if d := l.Take("user:u1", 0); d.Remaining != 59 {
		t.Fatalf("refill should cap at the rate, remaining %d", d.Remaining)
	}
}

func TestTakeFreshBucket(t *testing.T) {
	l, clock := newClockedLimiter(10, time.Minute)

	d := l.Take("ip:10.0.0.1", 0)
	if !d.Allowed || d.Limit != 10 || d.Remaining != 9 {
		t.Fatalf("unexpected decision %+v", d)
	}
	// One token short at 10/min is six seconds.
	if want := clock.Now().Add(6 * time.Second); !d.ResetAt.Equal(want) {
		t.Fatalf("resetAt %v, want %v", d.ResetAt, want)
	}
}

func TestTakeRateChangeCapsTokens(t *testing.T) {
	l, _ := newClockedLimiter(2, time.Minute)

	// A user promoted to admin keeps their bucket with the higher limit.
	if d := l.Take("user:u1", 0); d.Limit != 2 || d.Remaining != 1 {
		t.Fatalf("member decision %+v", d)
	}
	if d := l.Take("user:u1", 10); d.Limit != 10 || d.Remaining != 0 {
		t.Fatalf("admin decision %+v", d)
	}

	// Demotion caps whatever has accumulated.
	l.Take("user:u2", 10)
	if d := l.Take("user:u2", 0); d.Limit != 2 || d.Remaining != 1 {
		t.Fatalf("demoted decision %+v", d)
	}
}

func TestTakeConcurrent(t *testing.T) {
	l, _ := newClockedLimiter(100, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Take("user:busy", 0).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 100 {
		t.Fatalf("expected exactly 100 allowed, got %d", allowed)
	}
}

func TestPruneDropsIdleCallers(t *testing.T) {
	l, clock := newClockedLimiter(5, time.Minute)
	h := Middleware(l, ByUser(0))(okHandler())
	member := &auth.User{ID: "m1", Role: role.ProjectMember}

	serve(h, nil, "10.0.0.9:1")
	serve(h, member, "10.0.0.1:1")
	clock.Advance(10 * time.Minute)
	serve(h, member, "10.0.0.1:1")

	if n := l.Prune(5 * time.Minute); n != 1 {
		t.Fatalf("expected the idle ip bucket pruned, got %d", n)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 bucket left, got %d", l.Len())
	}
	// Refilled to 5 before the second request, so this is the third token.
	if d := l.Take("user:m1", 0); d.Remaining != 3 {
		t.Fatalf("active bucket lost its state, remaining %d", d.Remaining)
	}
	if n := l.Prune(5 * time.Minute); n != 0 {
		t.Fatalf("nothing else is idle, pruned %d", n)
	}
}

func TestPrunedBucketStartsFull(t *testing.T) {
	l, clock := newClockedLimiter(2, time.Minute)

	l.Take("ip:10.0.0.3", 0)
	l.Take("ip:10.0.0.3", 0)
	clock.Advance(2 * time.Minute)
	l.Prune(time.Minute)

	if d := l.Take("ip:10.0.0.3", 0); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("pruned key should start with a full bucket, got %+v", d)
	}
}
