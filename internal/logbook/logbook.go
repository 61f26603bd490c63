// Package logbook keeps the per-team activity log.
package logbook

import (
	"context"
	"time"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/authz"
	"github.com/alecgard/teamhub/internal/events"
)

// Event names stored in log entries.
const (
	EventTaskCreate     = "task_create"
	EventTaskUpdate     = "task_update"
	EventTaskDelete     = "task_delete"
	EventBoardCreate    = "board_create"
	EventBoardUpdate    = "board_update"
	EventBoardArchive   = "board_archive"
	EventBoardRestore   = "board_restore"
	EventBoardDelete    = "board_delete"
	EventTeamMemberAdd  = "team_member_add"
	EventTeamMemberDrop = "team_member_drop"
)

// Entry is one line of a team's activity log.
type Entry struct {
	ID         string         `json:"id"`
	Event      string         `json:"event"`
	ActorID    *string        `json:"actor_id"`
	TeamID     string         `json:"team_id"`
	BoardID    *string        `json:"board_id"`
	TargetID   string         `json:"target_id"`
	TargetRepr string         `json:"target_repr"`
	Extra      map[string]any `json:"extra"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Query selects a page of a team's log.
type Query struct {
	TeamID string
	Limit  int
	Cursor string
}

// DayCount is the number of entries logged on one day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// ActorCount is the activity of one user.
type ActorCount struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	ActivityCount int    `json:"activity_count"`
}

// BoardCount is the activity recorded against one board.
type BoardCount struct {
	BoardID       string `json:"board_id"`
	BoardTitle    string `json:"board_title"`
	TeamID        string `json:"team_id"`
	ActivityCount int    `json:"activity_count"`
}

// Stats summarizes a team's log for the activity dashboard.
type Stats struct {
	ActivityTrend []DayCount   `json:"activity_trend"`
	TopActors     []ActorCount `json:"top_actors"`
	PopularBoards []BoardCount `json:"popular_boards"`
}

// Dashboard sizes.
const (
	TrendDays     = 10
	TopActorCount = 5
	TopBoardCount = 5
)

// Repository persists log entries.
type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	List(ctx context.Context, q Query) ([]*Entry, string, error)
	Stats(ctx context.Context, teamID string) (*Stats, error)
}

// Recorder turns bus events into log entries. It writes through the
// publisher's context so entries commit or roll back with the change they
// describe.
type Recorder struct {
	repo Repository
}

// NewRecorder creates a Recorder.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Register subscribes the recorder to the events it logs.
func (r *Recorder) Register(bus *events.Bus) {
	bus.Subscribe(r.Handle,
		events.KindMembershipCreated,
		events.KindMembershipDeleted,
		events.KindBoardCreated,
		events.KindBoardUpdated,
		events.KindBoardArchived,
		events.KindBoardRestored,
		events.KindBoardDeleted,
		events.KindTaskCreated,
		events.KindTaskUpdated,
		events.KindTaskCompleted,
		events.KindTaskDeleted,
	)
}

// Handle writes the entry for e, if any.
func (r *Recorder) Handle(ctx context.Context, e events.Event) error {
	entry := entryFor(e)
	if entry == nil {
		return nil
	}
	return r.repo.Insert(ctx, entry)
}

func entryFor(e events.Event) *Entry {
	switch ev := e.(type) {
	case events.MembershipCreated:
		return &Entry{
			Event: EventTeamMemberAdd, ActorID: optional(ev.ActorID), TeamID: ev.TeamID,
			TargetID: ev.UserID, TargetRepr: ev.UserID,
			Extra: map[string]any{"responsible": ev.Responsible},
		}
	case events.MembershipDeleted:
		return &Entry{
			Event: EventTeamMemberDrop, ActorID: optional(ev.ActorID), TeamID: ev.TeamID,
			TargetID: ev.UserID, TargetRepr: ev.UserID,
		}
	case events.BoardChanged:
		name := map[events.Kind]string{
			events.KindBoardCreated:  EventBoardCreate,
			events.KindBoardUpdated:  EventBoardUpdate,
			events.KindBoardArchived: EventBoardArchive,
			events.KindBoardRestored: EventBoardRestore,
		}[ev.K]
		if ev.K == events.KindBoardDeleted {
			// The board row is gone, so the entry cannot reference it.
			return &Entry{
				Event: EventBoardDelete, ActorID: optional(ev.ActorID), TeamID: ev.TeamID,
				TargetID: ev.BoardID, TargetRepr: ev.Title,
			}
		}
		if name == "" {
			return nil
		}
		return &Entry{
			Event: name, ActorID: optional(ev.ActorID), TeamID: ev.TeamID, BoardID: optional(ev.BoardID),
			TargetID: ev.BoardID, TargetRepr: ev.Title,
		}
	case events.TaskChanged:
		var name string
		extra := map[string]any{}
		switch ev.K {
		case events.KindTaskCreated:
			name = EventTaskCreate
		case events.KindTaskUpdated:
			name = EventTaskUpdate
			if ev.Reassigned() {
				extra["previous_assignee_id"] = ev.PreviousAssigneeID
			}
		case events.KindTaskCompleted:
			name = EventTaskUpdate
			extra["is_done"] = true
		case events.KindTaskDeleted:
			name = EventTaskDelete
		default:
			return nil
		}
		if ev.AssigneeID != "" {
			extra["assignee_id"] = ev.AssigneeID
		}
		return &Entry{
			Event: name, ActorID: optional(ev.ActorID), TeamID: ev.TeamID, BoardID: optional(ev.BoardID),
			TargetID: ev.TaskID, TargetRepr: ev.Title, Extra: extra,
		}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Service reads a team's log.
type Service struct {
	repo  Repository
	authz *authz.Authorizer
}

// NewService creates a logbook reader.
func NewService(repo Repository, az *authz.Authorizer) *Service {
	return &Service{repo: repo, authz: az}
}

// List returns a page of the team's log, newest first.
func (s *Service) List(ctx context.Context, actor *auth.User, q Query) ([]*Entry, string, error) {
	if err := s.authz.Authorize(ctx, "logbook.list", authz.IsTeamUser, actor, nil, q.TeamID); err != nil {
		return nil, "", err
	}
	return s.repo.List(ctx, q)
}

// Stats returns the activity dashboard of a team: entries per day for the
// most recent active days, the busiest users and the busiest boards.
func (s *Service) Stats(ctx context.Context, actor *auth.User, teamID string) (*Stats, error) {
	if err := s.authz.Authorize(ctx, "logbook.stats", authz.IsTeamUser, actor, nil, teamID); err != nil {
		return nil, err
	}
	return s.repo.Stats(ctx, teamID)
}
