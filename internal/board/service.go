package board

import (
	"context"
	"errors"
	"strings"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/authz"
	"github.com/alecgard/teamhub/internal/events"
)

var (
	ErrNotFound      = errors.New("board not found")
	ErrTeamNotFound  = errors.New("team not found")
	ErrTitleTaken    = errors.New("board title already used in this team")
	ErrInvalidTitle  = errors.New("board title is required")
	ErrInvalidFilter = errors.New("filter must be active, archived or all")
)

// Repository is the persistence the board service needs.
type Repository interface {
	Create(ctx context.Context, teamID, creatorID string, in CreateInput) (*Board, error)
	Get(ctx context.Context, id string) (*Board, error)
	ListByTeam(ctx context.Context, teamID string, filter Filter) ([]*Board, error)
	Update(ctx context.Context, id string, in UpdateInput) (*Board, error)
	SetArchived(ctx context.Context, id string, archived bool) (*Board, error)
	Delete(ctx context.Context, id string) error
}

// Transactor runs fn as one atomic unit.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements board operations.
type Service struct {
	repo  Repository
	tx    Transactor
	bus   *events.Bus
	authz *authz.Authorizer
}

// NewService creates a board service.
func NewService(repo Repository, tx Transactor, bus *events.Bus, az *authz.Authorizer) *Service {
	return &Service{repo: repo, tx: tx, bus: bus, authz: az}
}

// Create adds a board to a team.
func (s *Service) Create(ctx context.Context, actor *auth.User, teamID string, in CreateInput) (*Board, error) {
	if err := s.authz.Authorize(ctx, "board.create", authz.IsAdminOrProjectAdmin, actor, nil, teamID); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, ErrInvalidTitle
	}

	var b *Board
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.Create(ctx, teamID, actor.ID, in)
		if err != nil {
			return err
		}
		return s.publish(ctx, events.KindBoardCreated, b, actor)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Get returns a board to members of its team.
func (s *Service) Get(ctx context.Context, actor *auth.User, id string) (*Board, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, "board.read", authz.IsTeamUser, actor, nil, b.TeamID); err != nil {
		return nil, err
	}
	return b, nil
}

// List returns a team's boards.
func (s *Service) List(ctx context.Context, actor *auth.User, teamID string, filter Filter) ([]*Board, error) {
	if err := s.authz.Authorize(ctx, "board.list", authz.IsTeamUser, actor, nil, teamID); err != nil {
		return nil, err
	}
	return s.repo.ListByTeam(ctx, teamID, filter)
}

// Update changes title and description.
func (s *Service) Update(ctx context.Context, actor *auth.User, id string, in UpdateInput) (*Board, error) {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, ErrInvalidTitle
		}
		in.Title = &title
	}
	return s.mutate(ctx, actor, id, "board.update", events.KindBoardUpdated, func(ctx context.Context, b *Board) (*Board, error) {
		return s.repo.Update(ctx, b.ID, in)
	})
}

// Archive hides a board from the active listing.
func (s *Service) Archive(ctx context.Context, actor *auth.User, id string) (*Board, error) {
	return s.setArchived(ctx, actor, id, true)
}

// Restore brings an archived board back.
func (s *Service) Restore(ctx context.Context, actor *auth.User, id string) (*Board, error) {
	return s.setArchived(ctx, actor, id, false)
}

func (s *Service) setArchived(ctx context.Context, actor *auth.User, id string, archived bool) (*Board, error) {
	kind, action := events.KindBoardArchived, "board.archive"
	if !archived {
		kind, action = events.KindBoardRestored, "board.restore"
	}
	return s.mutate(ctx, actor, id, action, kind, func(ctx context.Context, b *Board) (*Board, error) {
		if b.IsArchived == archived {
			return nil, nil
		}
		return s.repo.SetArchived(ctx, b.ID, archived)
	})
}

// Delete removes a board together with its lists and tasks.
func (s *Service) Delete(ctx context.Context, actor *auth.User, id string) error {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, "board.delete", authz.IsAdminOrProjectAdmin, actor, nil, b.TeamID); err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, b.ID); err != nil {
			return err
		}
		return s.publish(ctx, events.KindBoardDeleted, b, actor)
	})
}

// mutate loads the board, authorizes a manager of its team and applies fn
// in a transaction. fn returning a nil board means nothing changed and no
// event is published.
func (s *Service) mutate(ctx context.Context, actor *auth.User, id, action string, kind events.Kind,
	fn func(ctx context.Context, b *Board) (*Board, error)) (*Board, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, action, authz.IsAdminOrProjectAdmin, actor, nil, current.TeamID); err != nil {
		return nil, err
	}

	result := current
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := fn(ctx, current)
		if err != nil || b == nil {
			return err
		}
		result = b
		return s.publish(ctx, kind, b, actor)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) publish(ctx context.Context, kind events.Kind, b *Board, actor *auth.User) error {
	return s.bus.Publish(ctx, events.BoardChanged{
		K: kind, BoardID: b.ID, TeamID: b.TeamID, Title: b.Title, ActorID: actor.ID,
	})
}
