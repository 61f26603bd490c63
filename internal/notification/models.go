package notification

import "time"

// Notification types.
const (
	TypeTaskAssigned       = "task_assigned"
	TypeTaskUpdated        = "task_updated"
	TypeTaskRemoved        = "task_removed"
	TypeJoinResolved       = "join_resolved"
	TypeInvitationSent     = "invitation_sent"
	TypeInvitationAnswered = "invitation_answered"

	// TypeChatMessage is pushed live only; chat keeps its own read state.
	TypeChatMessage = "chat_message"
)

// Notification is an in-app message for one user.
type Notification struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Extra       map[string]any `json:"extra"`
	IsVisited   bool           `json:"is_visited"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Query selects a page of a user's notifications.
type Query struct {
	UserID        string
	UnvisitedOnly bool
	Limit         int
	Cursor        string
}
