package board

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alecgard/teamhub/internal/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const boardColumns = `id, team_id, title, description, is_archived, created_by, created_at`

// Store provides database operations for boards.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new board store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanBoard(row pgx.Row) (*Board, error) {
	b := &Board{}
	if err := row.Scan(&b.ID, &b.TeamID, &b.Title, &b.Description, &b.IsArchived, &b.CreatedBy, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// Create inserts a board.
func (s *Store) Create(ctx context.Context, teamID, creatorID string, in CreateInput) (*Board, error) {
	b, err := scanBoard(db.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO boards (team_id, title, description, created_by)
		 VALUES ($1, $2, $3, $4) RETURNING `+boardColumns,
		teamID, in.Title, in.Description, creatorID))
	if err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return nil, ErrTitleTaken
		case db.IsForeignKeyViolation(err):
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("creating board: %w", err)
	}
	return b, nil
}

// Get retrieves a board by id.
func (s *Store) Get(ctx context.Context, id string) (*Board, error) {
	b, err := scanBoard(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+boardColumns+` FROM boards WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("getting board: %w", err)
	}
	return b, nil
}

// ListByTeam returns a team's boards ordered by title.
func (s *Store) ListByTeam(ctx context.Context, teamID string, filter Filter) ([]*Board, error) {
	query := `SELECT ` + boardColumns + ` FROM boards WHERE team_id = $1`
	switch filter {
	case FilterActive:
		query += ` AND NOT is_archived`
	case FilterArchived:
		query += ` AND is_archived`
	}
	query += ` ORDER BY title`

	rows, err := db.Conn(ctx, s.pool).Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing boards: %w", err)
	}
	defer rows.Close()

	boards := []*Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning board row: %w", err)
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// Update performs a partial update of title and description.
func (s *Store) Update(ctx context.Context, id string, in UpdateInput) (*Board, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	if in.Title != nil {
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argIdx))
		args = append(args, *in.Title)
		argIdx++
	}
	if in.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIdx))
		args = append(args, *in.Description)
		argIdx++
	}
	if len(setClauses) == 0 {
		return s.Get(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE boards SET %s WHERE id = $%d RETURNING `+boardColumns,
		strings.Join(setClauses, ", "), argIdx)
	b, err := scanBoard(db.Conn(ctx, s.pool).QueryRow(ctx, query, args...))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrTitleTaken
		}
		return nil, fmt.Errorf("updating board: %w", err)
	}
	return b, nil
}

// SetArchived archives or restores a board.
func (s *Store) SetArchived(ctx context.Context, id string, archived bool) (*Board, error) {
	b, err := scanBoard(db.Conn(ctx, s.pool).QueryRow(ctx,
		`UPDATE boards SET is_archived = $1 WHERE id = $2 RETURNING `+boardColumns, archived, id))
	if err != nil {
		return nil, fmt.Errorf("archiving board: %w", err)
	}
	return b, nil
}

// Delete removes a board. Lists, tasks and the board's log entries go with
// it by cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM boards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting board: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
