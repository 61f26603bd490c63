package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alecgard/teamhub/internal/authz"
	"github.com/alecgard/teamhub/internal/role"
)

func TestObserveDecisionCountsDenialsOnly(t *testing.T) {
	m := New()
	ctx := context.Background()

	m.ObserveDecision(ctx, authz.Decision{Predicate: "IsProjectAdmin", Action: "team.update"})
	m.ObserveDecision(ctx, authz.Decision{Predicate: "IsProjectAdmin", Action: "team.update"})
	m.ObserveDecision(ctx, authz.Decision{Predicate: "IsAdmin", Action: "role.elevate"})
	m.ObserveDecision(ctx, authz.Decision{Predicate: "IsAnyUser", Action: "team.list", Allowed: true})

	s, err := m.Summarize()
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Authorization.Denials != 3 {
		t.Errorf("expected 3 denials, got %v", s.Authorization.Denials)
	}
	if got := s.Authorization.DenialsByPredicate["IsProjectAdmin"]; got != 2 {
		t.Errorf("expected 2 IsProjectAdmin denials, got %v", got)
	}
	if _, ok := s.Authorization.DenialsByPredicate["IsAnyUser"]; ok {
		t.Error("grants should not be counted")
	}
}

func TestObserveRecompute(t *testing.T) {
	m := New()

	m.ObserveRecompute("u1", role.Viewer, role.ProjectAdmin, nil)
	m.ObserveRecompute("u1", role.ProjectAdmin, role.ProjectAdmin, nil)
	m.ObserveRecompute("u2", role.Viewer, role.Viewer, errors.New("boom"))

	s, err := m.Summarize()
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Authorization.RoleRecomputes != 3 {
		t.Errorf("expected 3 recomputes, got %v", s.Authorization.RoleRecomputes)
	}
	if s.Authorization.RoleChanges != 1 {
		t.Errorf("expected 1 change, got %v", s.Authorization.RoleChanges)
	}
	if s.Authorization.RecomputeErrors != 1 {
		t.Errorf("expected 1 error, got %v", s.Authorization.RecomputeErrors)
	}
}

func TestObserveAuditFlush(t *testing.T) {
	m := New()
	m.ObserveAuditFlush(5, nil)
	m.ObserveAuditFlush(3, errors.New("db down"))

	s, err := m.Summarize()
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Audit.TotalFlushes != 2 || s.Audit.FlushErrors != 1 || s.Audit.Records != 5 {
		t.Errorf("unexpected audit summary: %+v", s.Audit)
	}
}

func TestHandlerServesJSON(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/api/v1/teams", 200, 512, 20*time.Millisecond)
	m.ObserveRequest("POST", "/api/v1/teams", 403, 64, 5*time.Millisecond)
	m.IncAuthFailure("session")
	m.IncRateLimitRejection("user")
	m.IncNotificationPublished(nil)
	m.RegisterDBPoolCollector(func() PoolStats {
		return PoolStats{Total: 10, Idle: 7, Acquired: 3, Max: 20, EmptyAcquires: 4}
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metrics/summary", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var s Summary
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if s.HTTP.TotalRequests != 2 {
		t.Errorf("expected 2 requests, got %v", s.HTTP.TotalRequests)
	}
	if s.HTTP.ErrorRate != 0.5 {
		t.Errorf("expected error rate 0.5, got %v", s.HTTP.ErrorRate)
	}
	if s.Auth.Failures != 1 || s.RateLimit.Rejections != 1 || s.Notifications.Published != 1 {
		t.Errorf("unexpected counters: auth=%+v ratelimit=%+v notifications=%+v", s.Auth, s.RateLimit, s.Notifications)
	}
	if s.DB.TotalConns != 10 || s.DB.IdleConns != 7 || s.DB.AcquiredConns != 3 || s.DB.MaxConns != 20 || s.DB.EmptyAcquires != 4 {
		t.Errorf("unexpected db summary: %+v", s.DB)
	}
	if s.Server.StartTime == 0 {
		t.Error("expected start time to be set")
	}
}

func TestHistogramPercentileEmpty(t *testing.T) {
	if got := histogramPercentile(nil, 0.5); got != 0 {
		t.Errorf("expected 0 for nil family, got %v", got)
	}
}
