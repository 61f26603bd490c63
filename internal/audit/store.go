package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store writes audit records to PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// BatchInsert writes recs in a single multi-row INSERT. It is a no-op when
// recs is empty.
func (s *Store) BatchInsert(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	query, args := batchInsertQuery(recs)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("batch inserting audit records: %w", err)
	}
	return nil
}

func batchInsertQuery(recs []Record) (string, []any) {
	const cols = 6
	args := make([]any, 0, len(recs)*cols)
	rows := make([]string, 0, len(recs))

	for i, r := range recs {
		base := i * cols
		rows = append(rows, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, nullable(r.UserID), r.Predicate, r.Action, nullable(r.TeamID), r.Allowed, r.CreatedAt)
	}

	return `INSERT INTO access_audit (user_id, predicate, action, team_id, allowed, created_at) VALUES ` +
		strings.Join(rows, ", "), args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
