package task

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/authz"
	"github.com/alecgard/teamhub/internal/events"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrListNotFound      = errors.New("task list not found")
	ErrBoardNotFound     = errors.New("board not found")
	ErrBoardArchived     = errors.New("board is archived")
	ErrPositionTaken     = errors.New("position already used on this board")
	ErrInvalidTitle      = errors.New("title is required")
	ErrInvalidPosition   = errors.New("position must not be negative")
	ErrInvalidPriority   = errors.New("priority must be low, medium, high or critical")
	ErrAssigneeNotInTeam = errors.New("assignee is not a member of the team")
)

// Repository is the persistence the task service needs.
type Repository interface {
	LocateBoard(ctx context.Context, boardID string) (*Location, error)
	LocateList(ctx context.Context, listID string) (*Location, error)

	CreateList(ctx context.Context, boardID string, in CreateListInput) (*List, error)
	GetList(ctx context.Context, id string) (*List, error)
	ListLists(ctx context.Context, boardID string) ([]*List, error)
	DeleteList(ctx context.Context, id string) error

	CreateTask(ctx context.Context, listID string, in CreateInput) (*Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, listID string) ([]*Task, error)
	UpdateTask(ctx context.Context, id string, in UpdateInput) (*Task, error)
	DeleteTask(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id string, at time.Time) (*Task, error)
}

// Transactor runs fn as one atomic unit.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements task list and task operations.
type Service struct {
	repo    Repository
	tx      Transactor
	bus     *events.Bus
	authz   *authz.Authorizer
	members authz.MembershipChecker
	now     func() time.Time
}

// NewService creates a task service. members is used to check that
// assignees belong to the task's team.
func NewService(repo Repository, tx Transactor, bus *events.Bus, az *authz.Authorizer, members authz.MembershipChecker) *Service {
	return &Service{repo: repo, tx: tx, bus: bus, authz: az, members: members, now: time.Now}
}

// CreateList adds a task list to a board.
func (s *Service) CreateList(ctx context.Context, actor *auth.User, boardID string, in CreateListInput) (*List, error) {
	loc, err := s.repo.LocateBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, "task_list.create", authz.IsAdminOrProjectAdmin, actor, nil, loc.TeamID); err != nil {
		return nil, err
	}
	if loc.BoardArchived {
		return nil, ErrBoardArchived
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, ErrInvalidTitle
	}
	if in.Position != nil && *in.Position < 0 {
		return nil, ErrInvalidPosition
	}
	return s.repo.CreateList(ctx, boardID, in)
}

// DeleteList removes a task list and its tasks.
func (s *Service) DeleteList(ctx context.Context, actor *auth.User, listID string) error {
	loc, err := s.repo.LocateList(ctx, listID)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, "task_list.delete", authz.IsAdminOrProjectAdmin, actor, nil, loc.TeamID); err != nil {
		return err
	}
	return s.repo.DeleteList(ctx, listID)
}

// Lists returns a board's task lists.
func (s *Service) Lists(ctx context.Context, actor *auth.User, boardID string) ([]*List, error) {
	loc, err := s.repo.LocateBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, "task_list.list", authz.IsTeamUser, actor, nil, loc.TeamID); err != nil {
		return nil, err
	}
	return s.repo.ListLists(ctx, boardID)
}

// ListDetail returns a task list with its tasks.
func (s *Service) ListDetail(ctx context.Context, actor *auth.User, listID string) (*ListDetail, error) {
	loc, err := s.repo.LocateList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, "task_list.read", authz.IsTeamUser, actor, nil, loc.TeamID); err != nil {
		return nil, err
	}
	l, err := s.repo.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.repo.ListTasks(ctx, listID)
	if err != nil {
		return nil, err
	}
	return &ListDetail{List: *l, Tasks: tasks}, nil
}

// Create adds a task to a list and optionally assigns it.
func (s *Service) Create(ctx context.Context, actor *auth.User, listID string, in CreateInput) (*Task, error) {
	loc, err := s.repo.LocateList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, "task.create", authz.IsAdminOrProjectAdmin, actor, nil, loc.TeamID); err != nil {
		return nil, err
	}
	if loc.BoardArchived {
		return nil, ErrBoardArchived
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, ErrInvalidTitle
	}
	p, ok := ParsePriority(string(in.Priority))
	if !ok {
		return nil, ErrInvalidPriority
	}
	in.Priority = p
	if in.AssigneeID != nil && *in.AssigneeID == "" {
		in.AssigneeID = nil
	}
	if in.AssigneeID != nil {
		if err := s.checkAssignee(ctx, *in.AssigneeID, loc.TeamID); err != nil {
			return nil, err
		}
	}

	var t *Task
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.repo.CreateTask(ctx, listID, in)
		if err != nil {
			return err
		}
		return s.publish(ctx, events.KindTaskCreated, t, loc, actor, t.OwnerID())
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns a task to members of its team.
func (s *Service) Get(ctx context.Context, actor *auth.User, id string) (*Task, error) {
	t, loc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, "task.read", authz.IsTeamUser, actor, nil, loc.TeamID); err != nil {
		return nil, err
	}
	return t, nil
}

// Update changes a task. Reassigning checks the new assignee's membership.
// The previous assignee is notified through the published event.
func (s *Service) Update(ctx context.Context, actor *auth.User, id string, in UpdateInput) (*Task, error) {
	current, loc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, "task.update", authz.IsAdminOrProjectAdmin, actor, nil, loc.TeamID); err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, ErrInvalidTitle
		}
		in.Title = &title
	}
	if in.Priority != nil {
		p, ok := ParsePriority(string(*in.Priority))
		if !ok {
			return nil, ErrInvalidPriority
		}
		in.Priority = &p
	}
	if in.AssigneeID != nil && *in.AssigneeID != "" {
		if err := s.checkAssignee(ctx, *in.AssigneeID, loc.TeamID); err != nil {
			return nil, err
		}
	}

	var t *Task
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.repo.UpdateTask(ctx, id, in)
		if err != nil {
			return err
		}
		return s.publish(ctx, events.KindTaskUpdated, t, loc, actor, current.OwnerID())
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, actor *auth.User, id string) error {
	t, loc, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(ctx, "task.delete", authz.IsAdminOrProjectAdmin, actor, nil, loc.TeamID); err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.DeleteTask(ctx, id); err != nil {
			return err
		}
		return s.publish(ctx, events.KindTaskDeleted, t, loc, actor, t.OwnerID())
	})
}

// MarkDone completes a task. The assignee or a manager of the team may do
// this. Completing a done task is a no-op.
func (s *Service) MarkDone(ctx context.Context, actor *auth.User, id string) (*Task, error) {
	current, loc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, "task.done", authz.IsAssigneeOrManager, actor, current, loc.TeamID); err != nil {
		return nil, err
	}
	if current.IsDone {
		return current, nil
	}

	var t *Task
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.repo.MarkDone(ctx, id, s.now())
		if err != nil {
			return err
		}
		return s.publish(ctx, events.KindTaskCompleted, t, loc, actor, t.OwnerID())
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) load(ctx context.Context, id string) (*Task, *Location, error) {
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	loc, err := s.repo.LocateList(ctx, t.TaskListID)
	if err != nil {
		return nil, nil, err
	}
	return t, loc, nil
}

func (s *Service) checkAssignee(ctx context.Context, userID, teamID string) error {
	ok, err := s.members.IsMember(ctx, userID, teamID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAssigneeNotInTeam
	}
	return nil
}

// publish announces a task change. previous is the assignee before
// the change, which differs from t's when the task was reassigned.
func (s *Service) publish(ctx context.Context, kind events.Kind, t *Task, loc *Location, actor *auth.User, previous string) error {
	return s.bus.Publish(ctx, events.TaskChanged{
		K:                  kind,
		TaskID:             t.ID,
		TaskListID:         t.TaskListID,
		BoardID:            loc.BoardID,
		BoardTitle:         loc.BoardTitle,
		TeamID:             loc.TeamID,
		TeamName:           loc.TeamName,
		Title:              t.Title,
		AssigneeID:         t.OwnerID(),
		PreviousAssigneeID: previous,
		ActorID:            actor.ID,
		ActorName:          actor.Name,
	})
}
