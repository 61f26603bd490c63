package user

import (
	"time"

	"github.com/alecgard/teamhub/internal/role"
)

// User represents a registered user account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         role.Role `json:"role"`
	Active       bool      `json:"is_active"`
	Blocked      bool      `json:"is_blocked"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUserInput holds the fields required to create a new user.
type CreateUserInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// UpdateUserInput holds optional fields for a partial user update. The role
// is deliberately absent: it is only written by the role service.
type UpdateUserInput struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Name     *string `json:"name,omitempty"`
}

// PublicProfile is what anonymous callers may see of a user.
type PublicProfile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Block records who blocked a user and why.
type Block struct {
	UserID    string    `json:"user_id"`
	AdminID   *string   `json:"admin_id"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// Session represents an active user session.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
