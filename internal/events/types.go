package events

// TeamCreated is published after a team row and its owner membership exist.
type TeamCreated struct {
	TeamID    string
	Name      string
	CreatorID string
}

func (TeamCreated) Kind() Kind { return KindTeamCreated }

// TeamDeleted is published after a team and, by cascade, its memberships are
// gone. CreatorID is empty when the creator account no longer exists.
type TeamDeleted struct {
	TeamID    string
	Name      string
	CreatorID string
	MemberIDs []string
	ActorID   string
}

func (TeamDeleted) Kind() Kind { return KindTeamDeleted }

// Affected returns the creator and former members without duplicates.
func (e TeamDeleted) Affected() []string {
	seen := make(map[string]bool, len(e.MemberIDs)+1)
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	add(e.CreatorID)
	for _, id := range e.MemberIDs {
		add(id)
	}
	return out
}

type MembershipCreated struct {
	MembershipID string
	UserID       string
	TeamID       string
	Responsible  string
	ActorID      string
}

func (MembershipCreated) Kind() Kind { return KindMembershipCreated }

type MembershipDeleted struct {
	MembershipID string
	UserID       string
	TeamID       string
	ActorID      string
}

func (MembershipDeleted) Kind() Kind { return KindMembershipDeleted }

type JoinRequested struct {
	RequestID string
	UserID    string
	TeamID    string
}

func (JoinRequested) Kind() Kind { return KindJoinRequested }

type JoinResolved struct {
	RequestID  string
	UserID     string
	TeamID     string
	TeamName   string
	Status     string
	ResolverID string
}

func (JoinResolved) Kind() Kind { return KindJoinResolved }

type InvitationSent struct {
	InvitationID string
	InviterID    string
	InviteeID    string
	TeamID       string
	TeamName     string
}

func (InvitationSent) Kind() Kind { return KindInvitationSent }

type InvitationAnswered struct {
	InvitationID string
	InviterID    string
	InviteeID    string
	TeamID       string
	Status       string
}

func (InvitationAnswered) Kind() Kind { return KindInvitationAnswered }

// BoardChanged covers board creation, update, archive, restore and deletion;
// K selects which.
type BoardChanged struct {
	K       Kind
	BoardID string
	TeamID  string
	Title   string
	ActorID string
}

func (e BoardChanged) Kind() Kind { return e.K }

// TaskChanged covers task creation, update, deletion and completion.
// PreviousAssigneeID differs from AssigneeID only when an update reassigned
// the task.
type TaskChanged struct {
	K                  Kind
	TaskID             string
	TaskListID         string
	BoardID            string
	BoardTitle         string
	TeamID             string
	TeamName           string
	Title              string
	AssigneeID         string
	PreviousAssigneeID string
	ActorID            string
	ActorName          string
}

// Reassigned reports whether the change moved the task to another assignee.
func (e TaskChanged) Reassigned() bool {
	return e.PreviousAssigneeID != e.AssigneeID
}

func (e TaskChanged) Kind() Kind { return e.K }
