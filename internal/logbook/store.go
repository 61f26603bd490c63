package logbook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alecgard/teamhub/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// DefaultLimit is the page size when a query sets none.
const DefaultLimit = 50

// Store provides database operations for log entries.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new log store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert writes an entry. Membership entries carry a user id as target; the
// user's current name replaces it as representation when available.
func (s *Store) Insert(ctx context.Context, e *Entry) error {
	extra := e.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("marshaling log extra: %w", err)
	}

	err = db.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO log_entries (event, actor_id, team_id, board_id, target_id, target_repr, extra)
		 VALUES ($1, $2, $3, $4, $5,
		   CASE WHEN $1 IN ('team_member_add', 'team_member_drop')
		        THEN COALESCE((SELECT name FROM users WHERE id::text = $5), $6)
		        ELSE $6 END,
		   $7)
		 RETURNING id, created_at`,
		e.Event, e.ActorID, e.TeamID, e.BoardID, e.TargetID, e.TargetRepr, extraJSON,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}
	return nil
}

// List returns a page of a team's entries ordered by created_at DESC, id
// DESC, and the cursor of the next page (empty when there is none).
func (s *Store) List(ctx context.Context, q Query) ([]*Entry, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT id, event, actor_id, team_id, board_id, target_id, target_repr, extra, created_at
		FROM log_entries WHERE team_id = $1`
	args := []any{q.TeamID}
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
		return nil, "", fmt.Errorf("listing log entries: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		e := &Entry{}
		var extra []byte
		if err := rows.Scan(&e.ID, &e.Event, &e.ActorID, &e.TeamID, &e.BoardID, &e.TargetID, &e.TargetRepr, &extra, &e.CreatedAt); err != nil {
			return nil, "", fmt.Errorf("scanning log entry: %w", err)
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &e.Extra); err != nil {
				return nil, "", fmt.Errorf("unmarshaling log extra: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating log entries: %w", err)
	}

	var next string
	if len(entries) > limit {
		last := entries[limit-1]
		next = db.EncodeCursor(last.CreatedAt, last.ID)
		entries = entries[:limit]
	}
	return entries, next, nil
}

// Stats runs the three dashboard aggregations concurrently on the pool.
// Entries without an actor or a board are left out of the matching ranking.
func (s *Store) Stats(ctx context.Context, teamID string) (*Stats, error) {
	st := &Stats{
		ActivityTrend: []DayCount{},
		TopActors:     []ActorCount{},
		PopularBoards: []BoardCount{},
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := s.pool.Query(gctx,
			`SELECT created_at::date AS day, count(*) FROM log_entries
			 WHERE team_id = $1 GROUP BY day ORDER BY day DESC LIMIT $2`,
			teamID, TrendDays)
		if err != nil {
			return fmt.Errorf("counting log entries per day: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var day time.Time
			var c DayCount
			if err := rows.Scan(&day, &c.Count); err != nil {
				return fmt.Errorf("scanning day count: %w", err)
			}
			c.Date = day.Format(time.DateOnly)
			st.ActivityTrend = append(st.ActivityTrend, c)
		}
		return rows.Err()
	})

	g.Go(func() error {
		rows, err := s.pool.Query(gctx,
			`SELECT u.id, u.email, count(*) AS n FROM log_entries l
			 JOIN users u ON u.id = l.actor_id
			 WHERE l.team_id = $1
			 GROUP BY u.id, u.email ORDER BY n DESC, u.email LIMIT $2`,
			teamID, TopActorCount)
		if err != nil {
			return fmt.Errorf("ranking log actors: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c ActorCount
			if err := rows.Scan(&c.UserID, &c.Email, &c.ActivityCount); err != nil {
				return fmt.Errorf("scanning actor count: %w", err)
			}
			st.TopActors = append(st.TopActors, c)
		}
		return rows.Err()
	})

	g.Go(func() error {
		rows, err := s.pool.Query(gctx,
			`SELECT b.id, b.title, b.team_id, count(*) AS n FROM log_entries l
			 JOIN boards b ON b.id = l.board_id
			 WHERE l.team_id = $1
			 GROUP BY b.id, b.title, b.team_id ORDER BY n DESC, b.title LIMIT $2`,
			teamID, TopBoardCount)
		if err != nil {
			return fmt.Errorf("ranking log boards: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c BoardCount
			if err := rows.Scan(&c.BoardID, &c.BoardTitle, &c.TeamID, &c.ActivityCount); err != nil {
				return fmt.Errorf("scanning board count: %w", err)
			}
			st.PopularBoards = append(st.PopularBoards, c)
		}
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return st, nil
}
