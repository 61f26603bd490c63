package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alecgard/teamhub/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultLimit is the page size when a query sets none.
const DefaultLimit = 50

// Store provides database operations for notifications.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new notification store backed by the given connection
// pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert writes a notification and fills its id and timestamp.
func (s *Store) Insert(ctx context.Context, n *Notification) error {
	extra := n.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("marshaling notification extra: %w", err)
	}
	err = db.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO notifications (user_id, type, title, description, extra)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		n.UserID, n.Type, n.Title, n.Description, extraJSON,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

// List returns a page of a user's notifications, newest first, and the
// cursor of the next page.
func (s *Store) List(ctx context.Context, q Query) ([]*Notification, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT id, user_id, type, title, description, extra, is_visited, created_at
		FROM notifications WHERE user_id = $1`
	args := []any{q.UserID}
	if q.UnvisitedOnly {
		query += ` AND NOT is_visited`
	}
	if q.Cursor != "" {
		ts, id, err := db.DecodeCursor(q.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		query += fmt.Sprintf(` AND (created_at, id) < ($%d, $%d)`, len(args)+1, len(args)+2)
		args = append(args, ts, id)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	rows, err := db.Conn(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	out := []*Notification{}
	for rows.Next() {
		n := &Notification{}
		var extra []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Description, &extra, &n.IsVisited, &n.CreatedAt); err != nil {
			return nil, "", fmt.Errorf("scanning notification: %w", err)
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &n.Extra); err != nil {
				return nil, "", fmt.Errorf("unmarshaling notification extra: %w", err)
			}
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating notifications: %w", err)
	}

	var next string
	if len(out) > limit {
		last := out[limit-1]
		next = db.EncodeCursor(last.CreatedAt, last.ID)
		out = out[:limit]
	}
	return out, next, nil
}

// MarkVisited flags one of the user's notifications as seen.
func (s *Store) MarkVisited(ctx context.Context, userID, id string) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE notifications SET is_visited = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("marking notification visited: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllVisited flags every unseen notification of the user.
func (s *Store) MarkAllVisited(ctx context.Context, userID string) (int64, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE notifications SET is_visited = TRUE WHERE user_id = $1 AND NOT is_visited`, userID)
	if err != nil {
		return 0, fmt.Errorf("marking notifications visited: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountUnvisited returns how many notifications the user has not seen.
func (s *Store) CountUnvisited(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT is_visited`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return n, nil
}
