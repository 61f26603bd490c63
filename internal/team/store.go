package team

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alecgard/teamhub/internal/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const teamColumns = `id, name, description, created_by, is_public, is_locked, created_at`

// Store provides database operations for teams, memberships, join requests
// and invitations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new team store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanTeam(row pgx.Row) (*Team, error) {
	t := &Team{}
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedBy, &t.IsPublic, &t.IsLocked, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func collectTeams(rows pgx.Rows) ([]*Team, error) {
	defer rows.Close()
	teams := []*Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// CreateTeam inserts a team row.
func (s *Store) CreateTeam(ctx context.Context, in CreateInput, creatorID string) (*Team, error) {
	public := true
	if in.IsPublic != nil {
		public = *in.IsPublic
	}
	t, err := scanTeam(db.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO teams (name, description, created_by, is_public)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+teamColumns,
		in.Name, in.Description, creatorID, public))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("creating team: %w", err)
	}
	return t, nil
}

// GetTeam retrieves a team by id.
func (s *Store) GetTeam(ctx context.Context, id string) (*Team, error) {
	t, err := scanTeam(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("getting team: %w", err)
	}
	return t, nil
}

// ListPublic returns every public team ordered by name.
func (s *Store) ListPublic(ctx context.Context) ([]*Team, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE is_public ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing public teams: %w", err)
	}
	return collectTeams(rows)
}

// ListForUser returns the teams the user is a member of.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Team, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT t.id, t.name, t.description, t.created_by, t.is_public, t.is_locked, t.created_at
		 FROM teams t JOIN team_memberships m ON m.team_id = t.id
		 WHERE m.user_id = $1 ORDER BY t.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing teams for user: %w", err)
	}
	return collectTeams(rows)
}

// UpdateTeam performs a partial update of name and description.
func (s *Store) UpdateTeam(ctx context.Context, id string, in UpdateInput) (*Team, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	if in.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *in.Name)
		argIdx++
	}
	if in.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIdx))
		args = append(args, *in.Description)
		argIdx++
	}
	if len(setClauses) == 0 {
		return s.GetTeam(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE teams SET %s WHERE id = $%d RETURNING `+teamColumns,
		strings.Join(setClauses, ", "), argIdx)
	t, err := scanTeam(db.Conn(ctx, s.pool).QueryRow(ctx, query, args...))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("updating team: %w", err)
	}
	return t, nil
}

// SetFlags updates is_locked and/or is_public.
func (s *Store) SetFlags(ctx context.Context, id string, locked, public *bool) (*Team, error) {
	t, err := scanTeam(db.Conn(ctx, s.pool).QueryRow(ctx,
		`UPDATE teams SET is_locked = COALESCE($1, is_locked), is_public = COALESCE($2, is_public)
		 WHERE id = $3 RETURNING `+teamColumns, locked, public, id))
	if err != nil {
		return nil, fmt.Errorf("updating team flags: %w", err)
	}
	return t, nil
}

// DeleteTeam deletes a team and, by cascade, its memberships, boards and
// pending requests.
func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMember inserts a membership row.
func (s *Store) AddMember(ctx context.Context, teamID, userID, responsible string) (*Membership, error) {
	m := &Membership{}
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO team_memberships (user_id, team_id, responsible)
		 VALUES ($1, $2, $3)
		 RETURNING id, user_id, team_id, responsible, created_at`,
		userID, teamID, responsible,
	).Scan(&m.ID, &m.UserID, &m.TeamID, &m.Responsible, &m.CreatedAt)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return nil, ErrAlreadyMember
		case db.IsForeignKeyViolation(err):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("adding member: %w", err)
	}
	return m, nil
}

// RemoveMember deletes a membership and returns it.
func (s *Store) RemoveMember(ctx context.Context, teamID, userID string) (*Membership, error) {
	m := &Membership{}
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`DELETE FROM team_memberships WHERE team_id = $1 AND user_id = $2
		 RETURNING id, user_id, team_id, responsible, created_at`,
		teamID, userID,
	).Scan(&m.ID, &m.UserID, &m.TeamID, &m.Responsible, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("removing member: %w", err)
	}
	return m, nil
}

// IsMember reports whether a membership row exists.
func (s *Store) IsMember(ctx context.Context, userID, teamID string) (bool, error) {
	var ok bool
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM team_memberships WHERE user_id = $1 AND team_id = $2)`,
		userID, teamID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return ok, nil
}

// ListMembers returns the members of a team with their user fields.
func (s *Store) ListMembers(ctx context.Context, teamID string) ([]*Member, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT m.id, m.user_id, m.team_id, m.responsible, m.created_at, u.email, u.name, u.role
		 FROM team_memberships m JOIN users u ON u.id = m.user_id
		 WHERE m.team_id = $1 ORDER BY m.created_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.TeamID, &m.Responsible, &m.CreatedAt, &m.Email, &m.Name, &m.Role); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// MemberIDs returns the user ids of every member of a team.
func (s *Store) MemberIDs(ctx context.Context, teamID string) ([]string, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT user_id FROM team_memberships WHERE team_id = $1`, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing member ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning member ids: %w", err)
	}
	return ids, nil
}

const joinRequestColumns = `id, user_id, team_id, resolved_by, status, created_at`

func scanJoinRequest(row pgx.Row) (*JoinRequest, error) {
	jr := &JoinRequest{}
	if err := row.Scan(&jr.ID, &jr.UserID, &jr.TeamID, &jr.ResolvedBy, &jr.Status, &jr.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return jr, nil
}

// CreateJoinRequest inserts a pending request. A previously rejected
// request is reopened.
func (s *Store) CreateJoinRequest(ctx context.Context, teamID, userID string) (*JoinRequest, error) {
	jr, err := scanJoinRequest(db.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO team_join_requests (user_id, team_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, team_id) DO UPDATE
		   SET status = 'pending', resolved_by = NULL, created_at = now()
		   WHERE team_join_requests.status = 'rejected'
		 RETURNING `+joinRequestColumns, userID, teamID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrDuplicateRequest
		}
		return nil, fmt.Errorf("creating join request: %w", err)
	}
	return jr, nil
}

// LockJoinRequest loads a join request and locks it until the transaction
// ends.
func (s *Store) LockJoinRequest(ctx context.Context, id string) (*JoinRequest, error) {
	jr, err := scanJoinRequest(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+joinRequestColumns+` FROM team_join_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("getting join request: %w", err)
	}
	return jr, nil
}

// ListJoinRequests returns a team's requests, optionally filtered by status.
func (s *Store) ListJoinRequests(ctx context.Context, teamID string, status Status) ([]*JoinRequest, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT `+joinRequestColumns+` FROM team_join_requests
		 WHERE team_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at`, teamID, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing join requests: %w", err)
	}
	defer rows.Close()

	out := []*JoinRequest{}
	for rows.Next() {
		jr, err := scanJoinRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning join request: %w", err)
		}
		out = append(out, jr)
	}
	return out, rows.Err()
}

// ResolveJoinRequest records the outcome of a request.
func (s *Store) ResolveJoinRequest(ctx context.Context, id string, status Status, resolverID string) error {
	_, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE team_join_requests SET status = $1, resolved_by = $2 WHERE id = $3`,
		string(status), resolverID, id)
	if err != nil {
		return fmt.Errorf("resolving join request: %w", err)
	}
	return nil
}

const invitationColumns = `id, inviter_id, invitee_id, team_id, status, created_at`

func scanInvitation(row pgx.Row) (*Invitation, error) {
	inv := &Invitation{}
	if err := row.Scan(&inv.ID, &inv.InviterID, &inv.InviteeID, &inv.TeamID, &inv.Status, &inv.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

// CreateInvitation inserts a pending invitation. A previously rejected
// invitation is reopened.
func (s *Store) CreateInvitation(ctx context.Context, teamID, inviterID, inviteeID string) (*Invitation, error) {
	inv, err := scanInvitation(db.Conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO team_invitations (inviter_id, invitee_id, team_id) VALUES ($1, $2, $3)
		 ON CONFLICT (invitee_id, team_id) DO UPDATE
		   SET status = 'pending', inviter_id = EXCLUDED.inviter_id, created_at = now()
		   WHERE team_invitations.status = 'rejected'
		 RETURNING `+invitationColumns, inviterID, inviteeID, teamID))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, ErrDuplicateInvitation
		case db.IsForeignKeyViolation(err):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("creating invitation: %w", err)
	}
	return inv, nil
}

// LockInvitation loads an invitation and locks it until the transaction
// ends.
func (s *Store) LockInvitation(ctx context.Context, id string) (*Invitation, error) {
	inv, err := scanInvitation(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM team_invitations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("getting invitation: %w", err)
	}
	return inv, nil
}

// ListInvitations returns the invitations addressed to a user, optionally
// filtered by status.
func (s *Store) ListInvitations(ctx context.Context, inviteeID string, status Status) ([]*Invitation, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT `+invitationColumns+` FROM team_invitations
		 WHERE invitee_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC`, inviteeID, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	defer rows.Close()

	out := []*Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invitation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// SetInvitationStatus records the invitee's answer.
func (s *Store) SetInvitationStatus(ctx context.Context, id string, status Status) error {
	_, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE team_invitations SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("updating invitation: %w", err)
	}
	return nil
}
