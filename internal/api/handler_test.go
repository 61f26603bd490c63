package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/authz"
	"github.com/alecgard/teamhub/internal/board"
	"github.com/alecgard/teamhub/internal/chat"
	"github.com/alecgard/teamhub/internal/db"
	"github.com/alecgard/teamhub/internal/metrics"
	"github.com/alecgard/teamhub/internal/ratelimit"
	"github.com/alecgard/teamhub/internal/role"
	"github.com/alecgard/teamhub/internal/task"
	"github.com/alecgard/teamhub/internal/team"
	"github.com/alecgard/teamhub/internal/user"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakePinger implements the Ping(ctx) method used by the health handler.
type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

// fakeSessions resolves bearer tokens from a fixed map.
type fakeSessions map[string]*auth.User

func (f fakeSessions) LookupSession(_ context.Context, token string) (*auth.User, error) {
	if u, ok := f[token]; ok {
		return u, nil
	}
	return nil, errors.New("no session")
}

var (
	adminUser  = &auth.User{ID: "00000000-0000-0000-0000-000000000001", Email: "admin@example.com", Role: role.Admin, Active: true}
	memberUser = &auth.User{ID: "00000000-0000-0000-0000-000000000002", Email: "member@example.com", Role: role.ProjectMember, Active: true}
)

func testSessions() fakeSessions {
	return fakeSessions{"admin-token": adminUser, "member-token": memberUser}
}

func doRequest(h http.Handler, method, path, token string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var envelope errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	return envelope.Error
}

// ---------------------------------------------------------------------------
// Health check handler tests
// ---------------------------------------------------------------------------

func TestHealthCheck_OK(t *testing.T) {
	handler := NewRouter(RouterDeps{
		AllowedOrigins: []string{"*"},
		DB:             &fakePinger{},
		Redis:          &fakePinger{},
	})

	rec := doRequest(handler, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", body["status"])
	}
	if body["database"] != "connected" {
		t.Errorf("expected database=connected, got %q", body["database"])
	}
	if body["redis"] != "connected" {
		t.Errorf("expected redis=connected, got %q", body["redis"])
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
}

func TestHealthCheck_RedisDisabled(t *testing.T) {
	handler := NewRouter(RouterDeps{DB: &fakePinger{}})

	rec := doRequest(handler, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["redis"] != "disabled" {
		t.Errorf("expected redis=disabled, got %q", body["redis"])
	}
}

func TestHealthCheck_DatabaseDown(t *testing.T) {
	handler := NewRouter(RouterDeps{
		DB:    &fakePinger{err: errors.New("connection refused")},
		Redis: &fakePinger{},
	})

	rec := doRequest(handler, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "degraded" {
		t.Errorf("expected status=degraded, got %q", body["status"])
	}
	if body["database"] != "unreachable" {
		t.Errorf("expected database=unreachable, got %q", body["database"])
	}
}

// ---------------------------------------------------------------------------
// Well-known manifest tests
// ---------------------------------------------------------------------------

func TestWellKnownHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/.well-known/teamhub.json", nil)
	rec := httptest.NewRecorder()
	WellKnownHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var manifest map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&manifest); err != nil {
		t.Fatalf("failed to decode manifest: %v", err)
	}

	requiredFields := []string{"name", "description", "version", "api_base", "auth", "roles", "endpoints", "health"}
	for _, field := range requiredFields {
		if _, ok := manifest[field]; !ok {
			t.Errorf("manifest missing required field %q", field)
		}
	}

	if name, _ := manifest["name"].(string); name != "TeamHub" {
		t.Errorf("expected name=TeamHub, got %q", name)
	}

	roles, ok := manifest["roles"].([]interface{})
	if !ok {
		t.Fatal("roles field is not an array")
	}
	want := []role.Role{role.Admin, role.ProjectAdmin, role.ProjectMember, role.Viewer}
	if len(roles) != len(want) {
		t.Fatalf("expected %d roles, got %d", len(want), len(roles))
	}
	for i, r := range want {
		if roles[i] != string(r) {
			t.Errorf("roles[%d]: got %v, want %s", i, roles[i], r)
		}
	}

	endpoints, ok := manifest["endpoints"].(map[string]interface{})
	if !ok {
		t.Fatal("endpoints field is not an object")
	}
	for _, ep := range []string{"teams", "public_teams", "invitations", "notifications", "notification_stream", "users"} {
		if _, ok := endpoints[ep]; !ok {
			t.Errorf("endpoints missing %q", ep)
		}
	}
}

func TestWellKnownHandler_ViaRouter(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"*"}})

	rec := doRequest(handler, http.MethodGet, "/.well-known/teamhub.json", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 via router, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// CORS middleware tests
// ---------------------------------------------------------------------------

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name            string
		allowedOrigins  []string
		requestOrigin   string
		method          string
		wantStatus      int
		wantAllowOrigin string
		wantVary        string
	}{
		{
			name:            "wildcard allows any origin",
			allowedOrigins:  []string{"*"},
			requestOrigin:   "https://example.com",
			method:          http.MethodGet,
			wantStatus:      http.StatusOK,
			wantAllowOrigin: "*",
		},
		{
			name:            "specific origin is echoed back",
			allowedOrigins:  []string{"https://app.example.com"},
			requestOrigin:   "https://app.example.com",
			method:          http.MethodGet,
			wantStatus:      http.StatusOK,
			wantAllowOrigin: "https://app.example.com",
			wantVary:        "Origin",
		},
		{
			name:            "non-matching origin gets no Allow-Origin header",
			allowedOrigins:  []string{"https://app.example.com"},
			requestOrigin:   "https://evil.com",
			method:          http.MethodGet,
			wantStatus:      http.StatusOK,
			wantAllowOrigin: "",
		},
		{
			name:            "no origin header means no CORS headers",
			allowedOrigins:  []string{"*"},
			requestOrigin:   "",
			method:          http.MethodGet,
			wantStatus:      http.StatusOK,
			wantAllowOrigin: "",
		},
		{
			name:            "preflight returns 204",
			allowedOrigins:  []string{"*"},
			requestOrigin:   "https://example.com",
			method:          http.MethodOptions,
			wantStatus:      http.StatusNoContent,
			wantAllowOrigin: "*",
		},
		{
			name:            "preflight with specific origin",
			allowedOrigins:  []string{"https://app.example.com"},
			requestOrigin:   "https://app.example.com",
			method:          http.MethodOptions,
			wantStatus:      http.StatusNoContent,
			wantAllowOrigin: "https://app.example.com",
			wantVary:        "Origin",
		},
		{
			name:            "empty allowed origins list",
			allowedOrigins:  nil,
			requestOrigin:   "https://example.com",
			method:          http.MethodGet,
			wantStatus:      http.StatusOK,
			wantAllowOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := corsMiddleware(tt.allowedOrigins)
			handler := mw(inner)

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}

			gotAllowOrigin := rec.Header().Get("Access-Control-Allow-Origin")
			if gotAllowOrigin != tt.wantAllowOrigin {
				t.Errorf("Access-Control-Allow-Origin: got %q, want %q", gotAllowOrigin, tt.wantAllowOrigin)
			}

			if tt.wantVary != "" {
				gotVary := rec.Header().Get("Vary")
				if gotVary != tt.wantVary {
					t.Errorf("Vary: got %q, want %q", gotVary, tt.wantVary)
				}
			}

			// When origin is set and allowed, check CORS method headers are present.
			if tt.requestOrigin != "" && tt.wantAllowOrigin != "" {
				if methods := rec.Header().Get("Access-Control-Allow-Methods"); methods == "" {
					t.Error("expected Access-Control-Allow-Methods to be set")
				}
				if headers := rec.Header().Get("Access-Control-Allow-Headers"); headers == "" {
					t.Error("expected Access-Control-Allow-Headers to be set")
				}
				if maxAge := rec.Header().Get("Access-Control-Max-Age"); maxAge != "86400" {
					t.Errorf("Access-Control-Max-Age: got %q, want 86400", maxAge)
				}
			}
		})
	}
}

func TestCORSMiddleware_PreflightDoesNotCallNext(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	mw := corsMiddleware([]string{"*"})
	handler := mw(inner)

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Error("preflight OPTIONS should not call the next handler")
	}
}

// ---------------------------------------------------------------------------
// Secure headers middleware tests
// ---------------------------------------------------------------------------

func TestSecureHeaders(t *testing.T) {
	handler := secureHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	expectedHeaders := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "0",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, want := range expectedHeaders {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s: got %q, want %q", header, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Request ID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var capturedID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := requestIDMiddleware(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	respID := rec.Header().Get("X-Request-ID")
	if respID == "" {
		t.Fatal("expected X-Request-ID response header to be set")
	}
	if _, err := uuid.Parse(respID); err != nil {
		t.Errorf("expected a UUID request id, got %q", respID)
	}
	if capturedID != respID {
		t.Errorf("context ID %q does not match response header ID %q", capturedID, respID)
	}
}

func TestRequestIDMiddleware_ForwardsExistingID(t *testing.T) {
	const existingID = "my-custom-request-id-12345"

	var capturedID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := requestIDMiddleware(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", existingID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if respID := rec.Header().Get("X-Request-ID"); respID != existingID {
		t.Errorf("expected forwarded ID %q, got %q", existingID, respID)
	}
	if capturedID != existingID {
		t.Errorf("context ID: expected %q, got %q", existingID, capturedID)
	}
}

func TestRequestIDMiddleware_SanitizesWhitespace(t *testing.T) {
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "  some-id-with-spaces  ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if respID := rec.Header().Get("X-Request-ID"); respID != "some-id-with-spaces" {
		t.Errorf("expected sanitized ID, got %q", respID)
	}
}

func TestRequestIDMiddleware_ReplacesOversizedID(t *testing.T) {
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if _, err := uuid.Parse(rec.Header().Get("X-Request-ID")); err != nil {
		t.Errorf("expected oversized id to be replaced, got %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	id := RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	if id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

func TestGenerateID_Unique(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := generateID()
		if _, exists := ids[id]; exists {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		ids[id] = struct{}{}
	}
}

// ---------------------------------------------------------------------------
// Login rate limiter tests
// ---------------------------------------------------------------------------

func TestLoginRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := newLoginRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		allowed, _ := rl.allow("1.2.3.4")
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	// Fourth request should be denied.
	allowed, retryAfter := rl.allow("1.2.3.4")
	if allowed {
		t.Error("expected request 4 to be denied")
	}
	if retryAfter < 1 {
		t.Errorf("expected retryAfter >= 1, got %d", retryAfter)
	}
}

func TestLoginRateLimiter_SeparateIPs(t *testing.T) {
	rl := newLoginRateLimiter(2, time.Minute)

	// Use up limit for IP A.
	rl.allow("10.0.0.1")
	rl.allow("10.0.0.1")

	allowed, _ := rl.allow("10.0.0.1")
	if allowed {
		t.Error("IP A should be denied after 2 attempts")
	}

	// IP B should still be allowed.
	allowed, _ = rl.allow("10.0.0.2")
	if !allowed {
		t.Error("IP B should still be allowed")
	}
}

func TestLoginRateLimiter_WindowResets(t *testing.T) {
	// Use a very short window so we can test reset.
	rl := newLoginRateLimiter(1, 10*time.Millisecond)

	allowed, _ := rl.allow("1.2.3.4")
	if !allowed {
		t.Fatal("first request should be allowed")
	}

	allowed, _ = rl.allow("1.2.3.4")
	if allowed {
		t.Fatal("second request should be denied")
	}

	// Wait for window to expire.
	time.Sleep(15 * time.Millisecond)

	allowed, _ = rl.allow("1.2.3.4")
	if !allowed {
		t.Error("request after window reset should be allowed")
	}
}

func TestLoginRateLimiter_Cleanup(t *testing.T) {
	rl := newLoginRateLimiter(1, 10*time.Millisecond)

	rl.allow("1.2.3.4")
	rl.allow("5.6.7.8")

	// Both IPs should be stored.
	count := 0
	rl.entries.Range(func(_, _ interface{}) bool { count++; return true })
	if count != 2 {
		t.Fatalf("expected 2 entries, got %d", count)
	}

	// Wait for window to expire, then run cleanup.
	time.Sleep(15 * time.Millisecond)
	rl.cleanup()

	count = 0
	rl.entries.Range(func(_, _ interface{}) bool { count++; return true })
	if count != 0 {
		t.Errorf("expected 0 entries after cleanup, got %d", count)
	}
}

func TestLoginRateLimiter_RetryAfterValue(t *testing.T) {
	rl := newLoginRateLimiter(1, 30*time.Second)

	rl.allow("1.2.3.4")
	_, retryAfter := rl.allow("1.2.3.4")

	// retryAfter should be between 1 and 30 seconds.
	if retryAfter < 1 || retryAfter > 30 {
		t.Errorf("expected retryAfter between 1 and 30, got %d", retryAfter)
	}
}

// ---------------------------------------------------------------------------
// writeError / writeJSON helper tests
// ---------------------------------------------------------------------------

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusNotFound, "not_found", "resource not found")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var envelope errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Errorf("expected code=not_found, got %q", envelope.Error.Code)
	}
	if envelope.Error.Message != "resource not found" {
		t.Errorf("expected message='resource not found', got %q", envelope.Error.Message)
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	data := map[string]string{"hello": "world"}
	writeJSON(rec, http.StatusCreated, data)

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["hello"] != "world" {
		t.Errorf("expected hello=world, got %q", body["hello"])
	}
}

// ---------------------------------------------------------------------------
// readJSON helper tests
// ---------------------------------------------------------------------------

func TestReadJSON_Valid(t *testing.T) {
	body := strings.NewReader(`{"name":"test","value":42}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)

	var result struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}
	if err := readJSON(req, &result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Name != "test" || result.Value != 42 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestReadJSON_InvalidJSON(t *testing.T) {
	body := strings.NewReader(`{not json`)
	req := httptest.NewRequest(http.MethodPost, "/", body)

	var result map[string]interface{}
	if err := readJSON(req, &result); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestReadJSON_EmptyBody(t *testing.T) {
	body := strings.NewReader("")
	req := httptest.NewRequest(http.MethodPost, "/", body)

	var result map[string]interface{}
	if err := readJSON(req, &result); err == nil {
		t.Error("expected error for empty body")
	}
}

// ---------------------------------------------------------------------------
// Router tests
// ---------------------------------------------------------------------------

func TestRouter_SecureHeadersApplied(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"*"}})

	rec := doRequest(handler, http.MethodGet, "/health", "", "")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected X-Content-Type-Options: nosniff on router responses")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID to be set on router responses")
	}
}

func TestRouter_CORSApplied(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"https://myapp.com"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://myapp.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://myapp.com" {
		t.Errorf("expected Access-Control-Allow-Origin=https://myapp.com, got %q", got)
	}
}

func TestRouter_PreflightAtAnyPath(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"*"}, Sessions: testSessions()})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/teams", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for OPTIONS preflight, got %d", rec.Code)
	}
}

func TestRouter_NotFound(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"*"}})

	rec := doRequest(handler, http.MethodGet, "/nonexistent-path", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestRouter_SessionRequired(t *testing.T) {
	handler := NewRouter(RouterDeps{Sessions: testSessions()})

	for _, path := range []string{"/api/v1/teams", "/api/v1/invitations", "/api/v1/notifications", "/api/v1/admin/users"} {
		rec := doRequest(handler, http.MethodGet, path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: expected 401, got %d", path, rec.Code)
		}
		rec = doRequest(handler, http.MethodGet, path, "stale-token", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s with unknown token: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestRouter_AdminRoutesRequireAdmin(t *testing.T) {
	var decisions []authz.Decision
	handler := NewRouter(RouterDeps{
		Sessions: testSessions(),
		Decisions: []authz.DecisionFunc{func(_ context.Context, d authz.Decision) {
			decisions = append(decisions, d)
		}},
	})

	rec := doRequest(handler, http.MethodGet, "/api/v1/admin/users", "member-token", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "forbidden" {
		t.Errorf("expected code forbidden, got %q", code)
	}

	if len(decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(decisions))
	}
	d := decisions[0]
	if d.Allowed || d.UserID != memberUser.ID || d.Predicate != "IsAdmin" || d.Action != "route.admin" {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestRouter_DeleteUserRequiresAdmin(t *testing.T) {
	handler := NewRouter(RouterDeps{Sessions: testSessions()})

	rec := doRequest(handler, http.MethodDelete, "/api/v1/admin/users/"+uuid.NewString(), "member-token", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	rec = doRequest(handler, http.MethodDelete, "/api/v1/admin/users/"+uuid.NewString(), "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without session, got %d", rec.Code)
	}
}

func TestRouter_ChatInputValidation(t *testing.T) {
	handler := NewRouter(RouterDeps{Sessions: testSessions()})

	rec := doRequest(handler, http.MethodPost, "/api/v1/chat/rooms", "member-token", `{"participant_ids":["not-a-uuid"]}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for bad participant id, got %d", rec.Code)
	}
	rec = doRequest(handler, http.MethodPost, "/api/v1/chat/rooms", "member-token", `{bad`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad body, got %d", rec.Code)
	}
	rec = doRequest(handler, http.MethodGet, "/api/v1/chat/rooms/nope/messages", "member-token", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad room id, got %d", rec.Code)
	}
	rec = doRequest(handler, http.MethodDelete, "/api/v1/boards/nope", "member-token", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad board id, got %d", rec.Code)
	}
	rec = doRequest(handler, http.MethodGet, "/api/v1/teams/nope/logbook/stats", "member-token", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad team id, got %d", rec.Code)
	}
}

func TestRouter_BlockedUserCannotCreateTeam(t *testing.T) {
	blocked := &auth.User{ID: "00000000-0000-0000-0000-000000000003", Role: role.ProjectAdmin, Active: true, Blocked: true}
	handler := NewRouter(RouterDeps{Sessions: fakeSessions{"blocked-token": blocked}})

	rec := doRequest(handler, http.MethodPost, "/api/v1/teams", "blocked-token", `{"name":"x"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for blocked user, got %d", rec.Code)
	}
}

func TestRouter_MetricsSummaryAdminOnly(t *testing.T) {
	handler := NewRouter(RouterDeps{Sessions: testSessions(), Metrics: metrics.New()})

	rec := doRequest(handler, http.MethodGet, "/api/v1/metrics/summary", "member-token", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for member, got %d", rec.Code)
	}

	rec = doRequest(handler, http.MethodGet, "/api/v1/metrics/summary", "admin-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
	var summary metrics.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("failed to decode summary: %v", err)
	}
	if summary.Authorization.Denials != 1 {
		t.Errorf("expected the member's denial to be counted, got %v", summary.Authorization.Denials)
	}
}

func TestRouter_PrometheusExposition(t *testing.T) {
	handler := NewRouter(RouterDeps{Metrics: metrics.New()})

	doRequest(handler, http.MethodGet, "/health", "", "")
	rec := doRequest(handler, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "teamhub_http_requests_total") {
		t.Error("expected teamhub_http_requests_total in exposition")
	}
}

func TestRouter_InvalidPathID(t *testing.T) {
	handler := NewRouter(RouterDeps{Sessions: testSessions()})

	rec := doRequest(handler, http.MethodGet, "/api/v1/boards/not-a-uuid", "member-token", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "invalid_id" {
		t.Errorf("expected code invalid_id, got %q", code)
	}
}

func TestRouter_InvalidBoardFilter(t *testing.T) {
	handler := NewRouter(RouterDeps{Sessions: testSessions()})

	rec := doRequest(handler, http.MethodGet, "/api/v1/teams/"+uuid.NewString()+"/boards?filter=deleted", "member-token", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "invalid_filter" {
		t.Errorf("expected code invalid_filter, got %q", code)
	}
}

func TestRouter_InvalidStatusFilter(t *testing.T) {
	handler := NewRouter(RouterDeps{Sessions: testSessions()})

	rec := doRequest(handler, http.MethodGet, "/api/v1/invitations?status=maybe", "member-token", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRouter_StreamWithoutHub(t *testing.T) {
	handler := NewRouter(RouterDeps{Sessions: testSessions()})

	rec := doRequest(handler, http.MethodGet, "/api/v1/notifications/stream", "member-token", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a hub, got %d", rec.Code)
	}
}

func TestRouter_UserRateLimit(t *testing.T) {
	handler := NewRouter(RouterDeps{
		Sessions: testSessions(),
		Limiter:  ratelimit.New(1, time.Minute),
	})

	path := "/api/v1/boards/not-a-uuid"
	if rec := doRequest(handler, http.MethodGet, path, "member-token", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("first request: expected 400, got %d", rec.Code)
	}
	rec := doRequest(handler, http.MethodGet, path, "member-token", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "1" {
		t.Errorf("expected X-RateLimit-Limit=1, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}

	// Another user has their own bucket.
	if rec := doRequest(handler, http.MethodGet, path, "admin-token", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("other user: expected 400, got %d", rec.Code)
	}
}

func TestRouter_LoginRateLimit(t *testing.T) {
	handler := NewRouter(RouterDeps{LoginLimit: 1, LoginWindow: time.Minute})

	login := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("{bad"))
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := login("192.168.1.1"); rec.Code != http.StatusBadRequest {
		t.Fatalf("first attempt: expected 400, got %d", rec.Code)
	}
	rec := login("192.168.1.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second attempt: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header to be set")
	}
	if code := decodeError(t, rec).Code; code != "rate_limited" {
		t.Errorf("expected code rate_limited, got %q", code)
	}
	if rec := login("192.168.1.2"); rec.Code != http.StatusBadRequest {
		t.Errorf("other IP: expected 400, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Parameter helper tests
// ---------------------------------------------------------------------------

func TestPageParams(t *testing.T) {
	valid := db.EncodeCursor(time.Now(), uuid.NewString())

	tests := []struct {
		name      string
		query     string
		wantOK    bool
		wantLimit int
		wantCode  string
	}{
		{"defaults", "", true, 0, ""},
		{"limit", "limit=25", true, 25, ""},
		{"cursor", "cursor=" + valid, true, 0, ""},
		{"zero limit", "limit=0", false, 0, "invalid_limit"},
		{"limit too large", "limit=201", false, 0, "invalid_limit"},
		{"non-numeric limit", "limit=ten", false, 0, "invalid_limit"},
		{"garbage cursor", "cursor=not-a-cursor", false, 0, "invalid_cursor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			rec := httptest.NewRecorder()
			limit, _, ok := pageParams(rec, req)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if ok && limit != tt.wantLimit {
				t.Errorf("limit: got %d, want %d", limit, tt.wantLimit)
			}
			if !ok {
				if rec.Code != http.StatusBadRequest {
					t.Errorf("expected 400, got %d", rec.Code)
				}
				if code := decodeError(t, rec).Code; code != tt.wantCode {
					t.Errorf("code: got %q, want %q", code, tt.wantCode)
				}
			}
		})
	}
}

func TestValidUUID(t *testing.T) {
	if !validUUID(uuid.NewString()) {
		t.Error("expected a generated UUID to be valid")
	}
	for _, s := range []string{"", "abc", "00000000-0000-0000-0000"} {
		if validUUID(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

// ---------------------------------------------------------------------------
// Error mapping tests
// ---------------------------------------------------------------------------

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"permission denied", fmt.Errorf("%w: team.update requires IsAdminOrProjectAdmin", authz.ErrPermissionDenied), http.StatusForbidden, "forbidden"},
		{"team locked", team.ErrTeamLocked, http.StatusForbidden, "team_locked"},
		{"inconsistent role", fmt.Errorf("recompute: %w", role.ErrInconsistentRoleState), http.StatusInternalServerError, "inconsistent_role_state"},
		{"team not found", fmt.Errorf("get: %w", team.ErrNotFound), http.StatusNotFound, "not_found"},
		{"not member", team.ErrNotMember, http.StatusNotFound, "not_member"},
		{"already member", team.ErrAlreadyMember, http.StatusConflict, "already_member"},
		{"position taken", task.ErrPositionTaken, http.StatusConflict, "position_taken"},
		{"assignee outside team", task.ErrAssigneeNotInTeam, http.StatusUnprocessableEntity, "validation_error"},
		{"invalid filter", board.ErrInvalidFilter, http.StatusBadRequest, "invalid_filter"},
		{"chat room not found", chat.ErrNotFound, http.StatusNotFound, "not_found"},
		{"chat without participants", chat.ErrNoParticipants, http.StatusUnprocessableEntity, "validation_error"},
		{"chat message empty", chat.ErrEmptyMessage, http.StatusUnprocessableEntity, "validation_error"},
		{"user validation", &user.ValidationError{Message: "name is required"}, http.StatusUnprocessableEntity, "validation_error"},
		{"invalid credentials", user.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _ := mapError(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("mapError(%v) = %d %q, want %d %q", tt.err, status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestWriteServiceError_PermissionMessage(t *testing.T) {
	err := fmt.Errorf("%w: board.archive requires IsAdminOrProjectAdmin", authz.ErrPermissionDenied)
	rec := httptest.NewRecorder()
	writeServiceError(rec, httptest.NewRequest(http.MethodPost, "/", nil), "archive", err)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	detail := decodeError(t, rec)
	if !strings.Contains(detail.Message, "IsAdminOrProjectAdmin") {
		t.Errorf("expected the predicate in the message, got %q", detail.Message)
	}
}

func TestWriteServiceError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), "get", errors.New("pq: password=secret"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if msg := decodeError(t, rec).Message; strings.Contains(msg, "secret") {
		t.Errorf("internal detail leaked: %q", msg)
	}
}

func TestIsValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"random error", fmt.Errorf("something went wrong"), false},
		{"team name", team.ErrInvalidName, true},
		{"user validation", &user.ValidationError{Message: "bad email"}, true},
		{"not found", team.ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidationError(tt.err); got != tt.want {
				t.Errorf("isValidationError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
