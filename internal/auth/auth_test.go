package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alecgard/teamhub/internal/role"
)

// --- mock store ---

type mockSessionLookup struct {
	users map[string]*User
}

func (m *mockSessionLookup) LookupSession(ctx context.Context, token string) (*User, error) {
	u, ok := m.users[token]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

// --- GenerateSessionToken tests ---

func TestGenerateSessionToken_PrefixAndLength(t *testing.T) {
	plaintext, hash, err := GenerateSessionToken()
	if err != nil {
		t.Fatalf("GenerateSessionToken() error: %v", err)
	}

	if !strings.HasPrefix(plaintext, TokenPrefix) {
		t.Errorf("token should start with %q, got %q", TokenPrefix, plaintext)
	}

	// "th_" (3) + 43 random chars = 46
	if len(plaintext) != 46 {
		t.Errorf("expected token length 46, got %d", len(plaintext))
	}

	if hash != HashToken(plaintext) {
		t.Error("returned hash does not match HashToken(plaintext)")
	}
}

func TestGenerateSessionToken_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		plaintext, _, err := GenerateSessionToken()
		if err != nil {
			t.Fatalf("GenerateSessionToken() error: %v", err)
		}
		if seen[plaintext] {
			t.Fatalf("duplicate token generated: %s", plaintext)
		}
		seen[plaintext] = true
	}
}

// --- HashToken tests ---

func TestHashToken_Deterministic(t *testing.T) {
	if HashToken("th_abc") != HashToken("th_abc") {
		t.Error("HashToken should be deterministic")
	}
	if HashToken("th_aaa") == HashToken("th_bbb") {
		t.Error("different tokens should produce different hashes")
	}
	if len(HashToken("anything")) != 64 {
		t.Errorf("expected hash length 64, got %d", len(HashToken("anything")))
	}
}

// --- User tests ---

func TestUser_CanAct(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want bool
	}{
		{"nil", nil, false},
		{"active", &User{ID: "u1", Active: true}, true},
		{"inactive", &User{ID: "u1"}, false},
		{"blocked", &User{ID: "u1", Active: true, Blocked: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.CanAct(); got != tt.want {
				t.Errorf("CanAct() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUser_IsAdmin(t *testing.T) {
	var nilUser *User
	if nilUser.IsAdmin() {
		t.Error("nil user should not be admin")
	}
	if (&User{Role: role.ProjectAdmin}).IsAdmin() {
		t.Error("project admin should not be admin")
	}
	if !(&User{Role: role.Admin}).IsAdmin() {
		t.Error("admin should be admin")
	}
}

// --- Context helpers tests ---

func TestUserContext_RoundTrip(t *testing.T) {
	u := &User{ID: "u1", Name: "Ada"}
	got := UserFromContext(ContextWithUser(context.Background(), u))
	if got == nil || got.ID != "u1" {
		t.Fatalf("expected user u1 from context, got %+v", got)
	}
	if UserFromContext(context.Background()) != nil {
		t.Error("expected nil from empty context")
	}
}

// --- SessionMiddleware tests ---

func TestSessionMiddleware(t *testing.T) {
	store := &mockSessionLookup{
		users: map[string]*User{
			"th_valid": {ID: "u1", Role: role.Viewer, Active: true},
		},
	}

	var seen *User
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "Bearer th_valid", http.StatusOK},
		{"unknown token", "Bearer th_wrong", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token th_valid", http.StatusUnauthorized},
		{"bearer only", "Bearer", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()

			SessionMiddleware(store)(okHandler).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus == http.StatusOK {
				if seen == nil || seen.ID != "u1" {
					t.Errorf("expected user u1 in context, got %+v", seen)
				}
			} else {
				assertJSONError(t, rr)
			}
		})
	}
}

func TestOptionalSession(t *testing.T) {
	store := &mockSessionLookup{
		users: map[string]*User{"th_valid": {ID: "u1", Active: true}},
	}

	var seen *User
	h := OptionalSession(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	for _, header := range []string{"", "Bearer th_wrong"} {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("header %q: expected 200, got %d", header, rr.Code)
		}
		if seen != nil {
			t.Errorf("header %q: expected anonymous request, got %+v", header, seen)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer th_valid")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == nil || seen.ID != "u1" {
		t.Errorf("expected user u1, got %+v", seen)
	}
}

// assertJSONError checks that the response body contains the expected error JSON structure.
func assertJSONError(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()

	ct := rr.Header().Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error.Code != "unauthorized" {
		t.Errorf("expected error code 'unauthorized', got %q", resp.Error.Code)
	}
	if resp.Error.Message == "" {
		t.Error("expected non-empty error message")
	}
}
