package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionDuration is used when the store is given no duration.
const DefaultSessionDuration = 7 * 24 * time.Hour

const userColumns = `u.id, u.email, u.password_hash, u.name, u.role, u.is_active,
	(b.user_id IS NOT NULL) AS blocked, u.created_at`

const userFrom = `FROM users u LEFT JOIN user_blocks b ON b.user_id = u.id`

// Store provides database operations for users and sessions.
type Store struct {
	pool            *pgxpool.Pool
	sessionDuration time.Duration
}

// NewStore creates a new user store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool, sessionDuration time.Duration) *Store {
	if sessionDuration <= 0 {
		sessionDuration = DefaultSessionDuration
	}
	return &Store{pool: pool, sessionDuration: sessionDuration}
}

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Active, &u.Blocked, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a plaintext password against the user's stored hash.
func CheckPassword(u *User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Create inserts a new user with a bcrypt-hashed password. New users start
// as viewers.
func (s *Store) Create(ctx context.Context, in CreateUserInput) (*User, error) {
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u, err := scanUser(db.Conn(ctx, s.pool).QueryRow(ctx,
		`WITH u AS (
			INSERT INTO users (email, password_hash, name, role)
			VALUES ($1, $2, $3, 'viewer')
			RETURNING *
		 )
		 SELECT u.id, u.email, u.password_hash, u.name, u.role, u.is_active, false, u.created_at FROM u`,
		strings.ToLower(in.Email), hash, in.Name,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+userColumns+` `+userFrom+` WHERE u.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email address.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+userColumns+` `+userFrom+` WHERE u.email = $1`, strings.ToLower(email)))
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// List returns all users ordered by created_at DESC.
func (s *Store) List(ctx context.Context) ([]*User, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT `+userColumns+` `+userFrom+` ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update performs a partial update on the user with the given id.
func (s *Store) Update(ctx context.Context, id string, in UpdateUserInput) (*User, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	if in.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argIdx))
		args = append(args, strings.ToLower(*in.Email))
		argIdx++
	}
	if in.Password != nil {
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		setClauses = append(setClauses, fmt.Sprintf("password_hash = $%d", argIdx))
		args = append(args, hash)
		argIdx++
	}
	if in.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *in.Name)
		argIdx++
	}

	if len(setClauses) == 0 {
		return s.GetByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(setClauses, ", "), argIdx)
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, query, args...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// SetActive flips the is_active flag.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `UPDATE users SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("setting user active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Block records a block on the user. Blocking twice replaces the note.
func (s *Store) Block(ctx context.Context, userID, adminID, note string) error {
	var admin *string
	if adminID != "" {
		admin = &adminID
	}
	_, err := db.Conn(ctx, s.pool).Exec(ctx,
		`INSERT INTO user_blocks (user_id, admin_id, note) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET admin_id = EXCLUDED.admin_id, note = EXCLUDED.note`,
		userID, admin, note)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("blocking user: %w", err)
	}
	return nil
}

// Unblock removes a block. Unblocking a user that is not blocked is a no-op.
func (s *Store) Unblock(ctx context.Context, userID string) error {
	if _, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM user_blocks WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("unblocking user: %w", err)
	}
	return nil
}

// GetBlock returns the block record of a user.
func (s *Store) GetBlock(ctx context.Context, userID string) (*Block, error) {
	b := &Block{}
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT user_id, admin_id, note, created_at FROM user_blocks WHERE user_id = $1`, userID,
	).Scan(&b.UserID, &b.AdminID, &b.Note, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting block: %w", err)
	}
	return b, nil
}

// CreateSession creates a new session for the given user. It returns the
// opaque plaintext token (to be sent to the client) and the stored session.
func (s *Store) CreateSession(ctx context.Context, userID string) (string, *Session, error) {
	plaintext, tokenHash, err := auth.GenerateSessionToken()
	if err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(s.sessionDuration)

	sess := &Session{}
	err = db.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING token_hash, user_id, created_at, expires_at`,
		tokenHash, userID, now, expiresAt,
	).Scan(&sess.TokenHash, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("creating session: %w", err)
	}

	return plaintext, sess, nil
}

// GetSessionUser looks up a session by its plaintext token and returns the
// associated user. Expired sessions are treated as missing.
func (s *Store) GetSessionUser(ctx context.Context, plaintext string) (*User, error) {
	u, err := scanUser(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM sessions s JOIN users u ON s.user_id = u.id
		 LEFT JOIN user_blocks b ON b.user_id = u.id
		 WHERE s.token_hash = $1 AND s.expires_at > now()`,
		auth.HashToken(plaintext),
	))
	if err != nil {
		return nil, fmt.Errorf("getting session user: %w", err)
	}
	return u, nil
}

// DeleteSession removes a session by its plaintext token.
func (s *Store) DeleteSession(ctx context.Context, plaintext string) error {
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, auth.HashToken(plaintext))
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteUserSessions removes every session of a user.
func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	return nil
}

// CleanExpiredSessions deletes all sessions that have expired.
func (s *Store) CleanExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("cleaning expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Exists reports whether a user row exists.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("checking user: %w", err)
	}
	return ok, nil
}

// Delete removes a user. Memberships, sessions and notifications go with it;
// teams, boards and log entries keep their rows with the reference nulled.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListViewers returns up to limit active, unblocked viewers in random order.
func (s *Store) ListViewers(ctx context.Context, limit int) ([]*PublicProfile, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT u.name, u.email `+userFrom+`
		 WHERE u.role = 'viewer' AND u.is_active AND b.user_id IS NULL
		 ORDER BY random() LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing viewers: %w", err)
	}
	defer rows.Close()

	profiles := []*PublicProfile{}
	for rows.Next() {
		p := &PublicProfile{}
		if err := rows.Scan(&p.Name, &p.Email); err != nil {
			return nil, fmt.Errorf("scanning viewer: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
