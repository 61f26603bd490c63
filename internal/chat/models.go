package chat

import (
	"slices"
	"time"
)

// Room is a conversation between a fixed set of users.
type Room struct {
	ID           string    `json:"id"`
	CreatedBy    *string   `json:"created_by"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasParticipant reports whether userID takes part in the room.
func (r *Room) HasParticipant(userID string) bool {
	return slices.Contains(r.Participants, userID)
}

// Message is one line posted to a room. IsRead flips once a participant
// other than the sender reads the room.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is a room as listed to one of its participants.
type Summary struct {
	Room
	LastMessage *Message `json:"last_message"`
	UnreadCount int      `json:"unread_count"`
}

// CreateRoomInput holds the users to talk to. The creator is always added.
type CreateRoomInput struct {
	ParticipantIDs []string `json:"participant_ids"`
}

// MessageQuery selects a page of a room's messages, newest first.
type MessageQuery struct {
	RoomID string
	Limit  int
	Cursor string
}
