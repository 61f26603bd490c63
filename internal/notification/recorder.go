package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alecgard/teamhub/internal/db"
	"github.com/alecgard/teamhub/internal/events"
)

// Publisher pushes a stored notification to live clients.
type Publisher interface {
	Publish(ctx context.Context, n *Notification) error
}

// Recorder turns bus events into notifications. Rows are written inside the
// publisher's transaction; live delivery waits for the commit.
type Recorder struct {
	repo Repository
	pub  Publisher
}

// NewRecorder creates a Recorder. pub may be nil, in which case
// notifications are only stored.
func NewRecorder(repo Repository, pub Publisher) *Recorder {
	return &Recorder{repo: repo, pub: pub}
}

// Register subscribes the recorder to the events that notify someone.
func (r *Recorder) Register(bus *events.Bus) {
	bus.Subscribe(r.Handle,
		events.KindTaskCreated,
		events.KindTaskUpdated,
		events.KindTaskCompleted,
		events.KindTaskDeleted,
		events.KindJoinResolved,
		events.KindInvitationSent,
		events.KindInvitationAnswered,
	)
}

// Handle stores the notifications produced by e.
func (r *Recorder) Handle(ctx context.Context, e events.Event) error {
	for _, n := range notificationsFor(e) {
		if err := r.repo.Insert(ctx, n); err != nil {
			return fmt.Errorf("recording %s notification: %w", n.Type, err)
		}
		r.deliver(ctx, n)
	}
	return nil
}

func (r *Recorder) deliver(ctx context.Context, n *Notification) {
	if r.pub == nil {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := r.pub.Publish(ctx, n); err != nil {
			slog.Error("failed to publish notification", "error", err, "user_id", n.UserID, "type", n.Type)
		}
	})
}

func notificationsFor(e events.Event) []*Notification {
	var out []*Notification
	add := func(userID, actorID, typ, title, desc string, extra map[string]any) {
		if userID == "" || userID == actorID {
			return
		}
		out = append(out, &Notification{UserID: userID, Type: typ, Title: title, Description: desc, Extra: extra})
	}

	switch ev := e.(type) {
	case events.TaskChanged:
		extra := map[string]any{"task_id": ev.TaskID, "board_id": ev.BoardID, "team_id": ev.TeamID}
		switch ev.K {
		case events.KindTaskCreated:
			add(ev.AssigneeID, ev.ActorID, TypeTaskAssigned, "New task assigned",
				fmt.Sprintf("%s assigned you %q on %s", actorName(ev), ev.Title, ev.BoardTitle), extra)
		case events.KindTaskUpdated:
			if ev.Reassigned() {
				add(ev.PreviousAssigneeID, ev.ActorID, TypeTaskRemoved, "Task reassigned",
					fmt.Sprintf("%s moved %q on %s to someone else", actorName(ev), ev.Title, ev.BoardTitle), extra)
				add(ev.AssigneeID, ev.ActorID, TypeTaskAssigned, "New task assigned",
					fmt.Sprintf("%s assigned you %q on %s", actorName(ev), ev.Title, ev.BoardTitle), extra)
				break
			}
			add(ev.AssigneeID, ev.ActorID, TypeTaskUpdated, "Task updated",
				fmt.Sprintf("%s updated %q on %s", actorName(ev), ev.Title, ev.BoardTitle), extra)
		case events.KindTaskCompleted:
			add(ev.AssigneeID, ev.ActorID, TypeTaskUpdated, "Task completed",
				fmt.Sprintf("%s marked %q on %s as done", actorName(ev), ev.Title, ev.BoardTitle), extra)
		case events.KindTaskDeleted:
			add(ev.AssigneeID, ev.ActorID, TypeTaskRemoved, "Task removed",
				fmt.Sprintf("%s deleted %q on %s", actorName(ev), ev.Title, ev.BoardTitle), extra)
		}
	case events.JoinResolved:
		add(ev.UserID, ev.ResolverID, TypeJoinResolved, "Join request "+ev.Status,
			fmt.Sprintf("Your request to join %s was %s", ev.TeamName, ev.Status),
			map[string]any{"team_id": ev.TeamID, "request_id": ev.RequestID, "status": ev.Status})
	case events.InvitationSent:
		add(ev.InviteeID, ev.InviterID, TypeInvitationSent, "Team invitation",
			fmt.Sprintf("You were invited to join %s", ev.TeamName),
			map[string]any{"team_id": ev.TeamID, "invitation_id": ev.InvitationID})
	case events.InvitationAnswered:
		add(ev.InviterID, ev.InviteeID, TypeInvitationAnswered, "Invitation "+ev.Status,
			fmt.Sprintf("Your invitation was %s", ev.Status),
			map[string]any{"team_id": ev.TeamID, "invitation_id": ev.InvitationID, "status": ev.Status})
	}
	return out
}

func actorName(ev events.TaskChanged) string {
	if ev.ActorName != "" {
		return ev.ActorName
	}
	return "Someone"
}
