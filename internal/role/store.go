package role

import (
	"context"
	"fmt"

	"github.com/alecgard/teamhub/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on PostgreSQL. It joins the transaction carried by
// the context when there is one.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) CurrentRole(ctx context.Context, userID string) (Role, error) {
	var r Role
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT role FROM users WHERE id = $1`, userID,
	).Scan(&r)
	if err != nil {
		return "", fmt.Errorf("getting role: %w", err)
	}
	return r, nil
}

func (s *PGStore) LockRole(ctx context.Context, userID string) (Role, error) {
	var r Role
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT role FROM users WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&r)
	if err != nil {
		return "", fmt.Errorf("locking role: %w", err)
	}
	return r, nil
}

func (s *PGStore) Facts(ctx context.Context, userID string) (Facts, error) {
	var f Facts
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT
			(SELECT count(*) FROM teams WHERE created_by = $1),
			(SELECT count(*) FROM team_memberships WHERE user_id = $1)`,
		userID,
	).Scan(&f.CreatedTeams, &f.Memberships)
	if err != nil {
		return Facts{}, fmt.Errorf("counting role facts: %w", err)
	}
	return f, nil
}

func (s *PGStore) SetRole(ctx context.Context, userID string, r Role) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE users SET role = $1 WHERE id = $2`, string(r), userID,
	)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating role: user %s not found", userID)
	}
	return nil
}
