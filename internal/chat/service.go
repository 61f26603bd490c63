// Package chat stores direct and group conversations and pushes new
// messages to the other participants over the notification hub.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/authz"
	"github.com/alecgard/teamhub/internal/db"
	"github.com/alecgard/teamhub/internal/notification"
)

var (
	ErrNotFound           = errors.New("chat room not found")
	ErrNoParticipants     = errors.New("a room needs at least one other participant")
	ErrUnknownParticipant = errors.New("participant does not exist")
	ErrEmptyMessage       = errors.New("message content is required")
	ErrMessageTooLong     = errors.New("message content is too long")
)

// MaxMessageLength is the longest message, in characters.
const MaxMessageLength = 4000

// Repository persists rooms and messages.
type Repository interface {
	CreateRoom(ctx context.Context, creatorID string, participantIDs []string) (*Room, error)
	GetRoom(ctx context.Context, id string) (*Room, error)
	AddMessage(ctx context.Context, roomID, senderID, content string) (*Message, error)
	ListMessages(ctx context.Context, q MessageQuery) ([]*Message, string, error)
	MarkRead(ctx context.Context, roomID, readerID string) (int64, error)
	Summaries(ctx context.Context, userID string, unreadOnly bool) ([]*Summary, error)
}

// Transactor runs fn as one atomic unit.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements chat rooms. Every operation requires an account that
// can act; room contents are visible to participants only.
type Service struct {
	repo  Repository
	tx    Transactor
	pub   notification.Publisher
	authz *authz.Authorizer
}

// NewService creates a chat service. pub may be nil, in which case messages
// are only stored.
func NewService(repo Repository, tx Transactor, pub notification.Publisher, az *authz.Authorizer) *Service {
	return &Service{repo: repo, tx: tx, pub: pub, authz: az}
}

func (s *Service) allow(ctx context.Context, action string, actor *auth.User) error {
	return s.authz.Authorize(ctx, action, authz.IsAnyUser, actor, nil, "")
}

// CreateRoom opens a room between the actor and the given users.
func (s *Service) CreateRoom(ctx context.Context, actor *auth.User, in CreateRoomInput) (*Room, error) {
	if err := s.allow(ctx, "chat.create", actor); err != nil {
		return nil, err
	}
	ids := []string{actor.ID}
	seen := map[string]bool{actor.ID: true}
	for _, id := range in.ParticipantIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) < 2 {
		return nil, ErrNoParticipants
	}

	var room *Room
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		room, err = s.repo.CreateRoom(ctx, actor.ID, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// room loads a room the actor takes part in.
func (s *Service) room(ctx context.Context, actor *auth.User, id string) (*Room, error) {
	room, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(actor.ID) {
		return nil, fmt.Errorf("%w: not a participant of room %s", authz.ErrPermissionDenied, id)
	}
	return room, nil
}

// Send posts a message and, after commit, pushes it to the other
// participants.
func (s *Service) Send(ctx context.Context, actor *auth.User, roomID, content string) (*Message, error) {
	if err := s.allow(ctx, "chat.send", actor); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}
	room, err := s.room(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}

	var msg *Message
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		msg, err = s.repo.AddMessage(ctx, room.ID, actor.ID, content)
		if err != nil {
			return err
		}
		s.deliver(ctx, room, msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Service) deliver(ctx context.Context, room *Room, msg *Message) {
	if s.pub == nil {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		for _, userID := range room.Participants {
			if userID == msg.SenderID {
				continue
			}
			n := &notification.Notification{
				ID:          msg.ID,
				UserID:      userID,
				Type:        notification.TypeChatMessage,
				Title:       "New message",
				Description: msg.Content,
				Extra:       map[string]any{"room_id": room.ID, "sender_id": msg.SenderID},
				CreatedAt:   msg.CreatedAt,
			}
			if err := s.pub.Publish(ctx, n); err != nil {
				slog.Error("failed to publish chat message", "error", err, "room_id", room.ID, "user_id", userID)
			}
		}
	})
}

// Messages returns a page of a room's messages, newest first.
func (s *Service) Messages(ctx context.Context, actor *auth.User, q MessageQuery) ([]*Message, string, error) {
	if err := s.allow(ctx, "chat.read", actor); err != nil {
		return nil, "", err
	}
	if _, err := s.room(ctx, actor, q.RoomID); err != nil {
		return nil, "", err
	}
	return s.repo.ListMessages(ctx, q)
}

// MarkRead flags every message the others sent to the room as read.
func (s *Service) MarkRead(ctx context.Context, actor *auth.User, roomID string) (int64, error) {
	if err := s.allow(ctx, "chat.read", actor); err != nil {
		return 0, err
	}
	if _, err := s.room(ctx, actor, roomID); err != nil {
		return 0, err
	}
	return s.repo.MarkRead(ctx, roomID, actor.ID)
}

// Summaries lists the actor's rooms with their last message and unread
// count, most recently active first.
func (s *Service) Summaries(ctx context.Context, actor *auth.User) ([]*Summary, error) {
	if err := s.allow(ctx, "chat.list", actor); err != nil {
		return nil, err
	}
	return s.repo.Summaries(ctx, actor.ID, false)
}

// Unread lists only the actor's rooms holding messages they have not read.
func (s *Service) Unread(ctx context.Context, actor *auth.User) ([]*Summary, error) {
	if err := s.allow(ctx, "chat.list", actor); err != nil {
		return nil, err
	}
	return s.repo.Summaries(ctx, actor.ID, true)
}
