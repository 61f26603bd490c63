package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/alecgard/teamhub/internal/role"
)

// TokenPrefix starts every session token handed to clients.
const TokenPrefix = "th_"

// User is the authenticated principal attached to a request.
type User struct {
	ID      string
	Email   string
	Name    string
	Role    role.Role
	Active  bool
	Blocked bool
}

// IsAdmin returns true if the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == role.Admin
}

// CanAct reports whether the user is authenticated and allowed to act at
// all. Every permission predicate starts from this check.
func (u *User) CanAct() bool {
	return u != nil && u.Active && !u.Blocked
}

// SessionLookup is the interface for resolving session tokens to users.
type SessionLookup interface {
	LookupSession(ctx context.Context, token string) (*User, error)
}

// GenerateSessionToken creates a new session token with the "th_" prefix
// followed by 43 URL-safe random characters. It returns the token and the
// hash that is stored.
func GenerateSessionToken() (plaintext, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating random bytes: %w", err)
	}
	plaintext = TokenPrefix + base64.RawURLEncoding.EncodeToString(b)
	return plaintext, HashToken(plaintext), nil
}

// HashToken returns the hex-encoded SHA-256 hash of the given plaintext token.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
