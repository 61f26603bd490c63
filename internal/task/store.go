package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alecgard/teamhub/internal/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const listColumns = `id, board_id, title, description, position, created_at`

const taskColumns = `id, task_list_id, assignee_id, title, description, is_done, priority,
	deadline, completed_at, created_at`

// Store provides database operations for task lists and tasks.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new task store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanList(row pgx.Row) (*List, error) {
	l := &List{}
	if err := row.Scan(&l.ID, &l.BoardID, &l.Title, &l.Description, &l.Position, &l.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListNotFound
		}
		return nil, err
	}
	return l, nil
}

func scanTask(row pgx.Row) (*Task, error) {
	t := &Task{}
	err := row.Scan(&t.ID, &t.TaskListID, &t.AssigneeID, &t.Title, &t.Description, &t.IsDone,
		&t.Priority, &t.Deadline, &t.CompletedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// LocateBoard resolves the team of a board.
func (s *Store) LocateBoard(ctx context.Context, boardID string) (*Location, error) {
	loc := &Location{}
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT b.id, b.title, b.is_archived, t.id, t.name
		 FROM boards b JOIN teams t ON t.id = b.team_id WHERE b.id = $1`, boardID,
	).Scan(&loc.BoardID, &loc.BoardTitle, &loc.BoardArchived, &loc.TeamID, &loc.TeamName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBoardNotFound
		}
		return nil, fmt.Errorf("locating board: %w", err)
	}
	return loc, nil
}

// LocateList resolves the board and team of a task list.
func (s *Store) LocateList(ctx context.Context, listID string) (*Location, error) {
	loc := &Location{}
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT b.id, b.title, b.is_archived, t.id, t.name
		 FROM task_lists l JOIN boards b ON b.id = l.board_id JOIN teams t ON t.id = b.team_id
		 WHERE l.id = $1`, listID,
	).Scan(&loc.BoardID, &loc.BoardTitle, &loc.BoardArchived, &loc.TeamID, &loc.TeamName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListNotFound
		}
		return nil, fmt.Errorf("locating task list: %w", err)
	}
	return loc, nil
}

// CreateList inserts a task list. A nil position appends it.
func (s *Store) CreateList(ctx context.Context, boardID string, in CreateListInput) (*List, error) {
	l, err := scanList(db.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO task_lists (board_id, title, description, position)
		 VALUES ($1, $2, $3, COALESCE($4, (SELECT COALESCE(MAX(position) + 1, 0) FROM task_lists WHERE board_id = $1)))
		 RETURNING `+listColumns,
		boardID, in.Title, in.Description, in.Position))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrPositionTaken
		}
		return nil, fmt.Errorf("creating task list: %w", err)
	}
	return l, nil
}

// GetList retrieves a task list by id.
func (s *Store) GetList(ctx context.Context, id string) (*List, error) {
	l, err := scanList(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+listColumns+` FROM task_lists WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("getting task list: %w", err)
	}
	return l, nil
}

// ListLists returns a board's task lists in position order.
func (s *Store) ListLists(ctx context.Context, boardID string) ([]*List, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT `+listColumns+` FROM task_lists WHERE board_id = $1 ORDER BY position`, boardID)
	if err != nil {
		return nil, fmt.Errorf("listing task lists: %w", err)
	}
	defer rows.Close()

	lists := []*List{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task list: %w", err)
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// DeleteList removes a task list and its tasks.
func (s *Store) DeleteList(ctx context.Context, id string) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM task_lists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting task list: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrListNotFound
	}
	return nil
}

// CreateTask inserts a task.
func (s *Store) CreateTask(ctx context.Context, listID string, in CreateInput) (*Task, error) {
	t, err := scanTask(db.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO tasks (task_list_id, assignee_id, title, description, priority, deadline)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+taskColumns,
		listID, in.AssigneeID, in.Title, in.Description, string(in.Priority), in.Deadline))
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return t, nil
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return t, nil
}

// ListTasks returns the tasks of a list, highest priority first.
func (s *Store) ListTasks(ctx context.Context, listID string) ([]*Task, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE task_list_id = $1
		 ORDER BY is_done,
		   CASE priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END,
		   created_at`, listID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask performs a partial update. An empty AssigneeID clears the
// assignee.
func (s *Store) UpdateTask(ctx context.Context, id string, in UpdateInput) (*Task, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	set := func(column string, v any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, v)
		argIdx++
	}
	if in.Title != nil {
		set("title", *in.Title)
	}
	if in.Description != nil {
		set("description", *in.Description)
	}
	if in.AssigneeID != nil {
		if *in.AssigneeID == "" {
			set("assignee_id", nil)
		} else {
			set("assignee_id", *in.AssigneeID)
		}
	}
	if in.Priority != nil {
		set("priority", string(*in.Priority))
	}
	if in.Deadline != nil {
		set("deadline", *in.Deadline)
	}
	if len(setClauses) == 0 {
		return s.GetTask(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $%d RETURNING `+taskColumns,
		strings.Join(setClauses, ", "), argIdx)
	t, err := scanTask(db.Conn(ctx, s.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("updating task: %w", err)
	}
	return t, nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDone flags a task as done at the given time.
func (s *Store) MarkDone(ctx context.Context, id string, at time.Time) (*Task, error) {
	t, err := scanTask(db.Conn(ctx, s.pool).QueryRow(ctx,
		`UPDATE tasks SET is_done = TRUE, completed_at = $1 WHERE id = $2 RETURNING `+taskColumns, at, id))
	if err != nil {
		return nil, fmt.Errorf("completing task: %w", err)
	}
	return t, nil
}
