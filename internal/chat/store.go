package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alecgard/teamhub/internal/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultLimit is the page size when a query sets none.
const DefaultLimit = 50

const participantsOf = `ARRAY(SELECT p.user_id::text FROM chat_participants p
	WHERE p.room_id = r.id ORDER BY p.user_id)`

// Store provides database operations for chat rooms and messages.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new chat store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateRoom inserts a room and its participants. It must run inside a
// transaction so a missing participant leaves no room behind.
func (s *Store) CreateRoom(ctx context.Context, creatorID string, participantIDs []string) (*Room, error) {
	conn := db.Conn(ctx, s.pool)
	room := &Room{CreatedBy: &creatorID}
	err := conn.QueryRow(ctx,
		`INSERT INTO chat_rooms (created_by) VALUES ($1) RETURNING id, created_at`, creatorID,
	).Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating chat room: %w", err)
	}

	_, err = conn.Exec(ctx,
		`INSERT INTO chat_participants (room_id, user_id)
		 SELECT $1, unnest($2::uuid[])`, room.ID, participantIDs)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, ErrUnknownParticipant
		}
		return nil, fmt.Errorf("adding chat participants: %w", err)
	}
	return s.GetRoom(ctx, room.ID)
}

// GetRoom retrieves a room with its participants.
func (s *Store) GetRoom(ctx context.Context, id string) (*Room, error) {
	room := &Room{}
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT r.id, r.created_by, r.created_at, `+participantsOf+`
		 FROM chat_rooms r WHERE r.id = $1`, id,
	).Scan(&room.ID, &room.CreatedBy, &room.CreatedAt, &room.Participants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting chat room: %w", err)
	}
	return room, nil
}

// AddMessage inserts a message.
func (s *Store) AddMessage(ctx context.Context, roomID, senderID, content string) (*Message, error) {
	m := &Message{RoomID: roomID, SenderID: senderID, Content: content}
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO chat_messages (room_id, sender_id, content)
		 VALUES ($1, $2, $3) RETURNING id, created_at`,
		roomID, senderID, content,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("inserting chat message: %w", err)
	}
	return m, nil
}

// ListMessages returns a page of a room's messages ordered by created_at
// DESC, id DESC, and the cursor of the next page.
func (s *Store) ListMessages(ctx context.Context, q MessageQuery) ([]*Message, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT id, room_id, sender_id, content, is_read, created_at
		FROM chat_messages WHERE room_id = $1`
	args := []any{q.RoomID}
	if q.Cursor != "" {
		ts, id, err := db.DecodeCursor(q.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, ts, id)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	rows, err := db.Conn(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing chat messages: %w", err)
	}
	defer rows.Close()

	msgs := []*Message{}
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, "", fmt.Errorf("scanning chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating chat messages: %w", err)
	}

	var next string
	if len(msgs) > limit {
		last := msgs[limit-1]
		next = db.EncodeCursor(last.CreatedAt, last.ID)
		msgs = msgs[:limit]
	}
	return msgs, next, nil
}

// MarkRead flags the unread messages of others in a room as read.
func (s *Store) MarkRead(ctx context.Context, roomID, readerID string) (int64, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE chat_messages SET is_read = TRUE
		 WHERE room_id = $1 AND sender_id <> $2 AND NOT is_read`, roomID, readerID)
	if err != nil {
		return 0, fmt.Errorf("marking chat messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Summaries lists the rooms of a user with their last message and the count
// of unread messages sent by others.
func (s *Store) Summaries(ctx context.Context, userID string, unreadOnly bool) ([]*Summary, error) {
	query := `SELECT r.id, r.created_by, r.created_at, ` + participantsOf + `,
			(SELECT count(*) FROM chat_messages m
			 WHERE m.room_id = r.id AND NOT m.is_read AND m.sender_id <> $1) AS unread,
			lm.id, lm.sender_id, lm.content, lm.is_read, lm.created_at
		FROM chat_rooms r
		JOIN chat_participants me ON me.room_id = r.id AND me.user_id = $1
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, is_read, created_at FROM chat_messages
			WHERE room_id = r.id ORDER BY created_at DESC, id DESC LIMIT 1
		) lm ON TRUE`
	if unreadOnly {
		query += ` WHERE EXISTS (SELECT 1 FROM chat_messages m
			WHERE m.room_id = r.id AND NOT m.is_read AND m.sender_id <> $1)`
	}
	query += ` ORDER BY COALESCE(lm.created_at, r.created_at) DESC, r.id`

	rows, err := db.Conn(ctx, s.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing chat rooms: %w", err)
	}
	defer rows.Close()

	out := []*Summary{}
	for rows.Next() {
		sum := &Summary{}
		var (
			msgID, senderID, content *string
			isRead                   *bool
			sentAt                   *time.Time
		)
		err := rows.Scan(&sum.ID, &sum.CreatedBy, &sum.CreatedAt, &sum.Participants, &sum.UnreadCount,
			&msgID, &senderID, &content, &isRead, &sentAt)
		if err != nil {
			return nil, fmt.Errorf("scanning chat room: %w", err)
		}
		if msgID != nil {
			sum.LastMessage = &Message{
				ID: *msgID, RoomID: sum.ID, SenderID: *senderID, Content: *content,
				IsRead: *isRead, CreatedAt: *sentAt,
			}
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
