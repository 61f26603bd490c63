package team

import "time"

// Status is the state of a join request or invitation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Responsible labels given to memberships created by the service.
const (
	ResponsibleOwner  = "Owner"
	ResponsibleMember = "Member"
)

// Team is a group of users collaborating on boards.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   *string   `json:"created_by"`
	IsPublic    bool      `json:"is_public"`
	IsLocked    bool      `json:"is_locked"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreatorID returns the creator's id, or "" once the creator is gone.
func (t *Team) CreatorID() string {
	if t.CreatedBy == nil {
		return ""
	}
	return *t.CreatedBy
}

// CreateInput holds the fields for a new team.
type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"is_public,omitempty"`
}

// UpdateInput holds optional fields for a partial team update.
type UpdateInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Membership links a user to a team.
type Membership struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	TeamID      string    `json:"team_id"`
	Responsible string    `json:"responsible"`
	CreatedAt   time.Time `json:"created_at"`
}

// Member is a membership joined with the user's public fields.
type Member struct {
	Membership
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// JoinRequest is a user's request to join a team.
type JoinRequest struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TeamID     string    `json:"team_id"`
	ResolvedBy *string   `json:"resolved_by"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Invitation is an invite from a team manager to a user.
type Invitation struct {
	ID        string    `json:"id"`
	InviterID *string   `json:"inviter_id"`
	InviteeID string    `json:"invitee_id"`
	TeamID    string    `json:"team_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
