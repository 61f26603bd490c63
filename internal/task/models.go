package task

import "time"

// Priority ranks a task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority maps s to a Priority. Empty means medium.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(s); p {
	case "":
		return PriorityMedium, true
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p, true
	}
	return "", false
}

// List is an ordered column of tasks on a board.
type List struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"board_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListDetail is a task list with its tasks.
type ListDetail struct {
	List
	Tasks []*Task `json:"tasks"`
}

// Task is a unit of work, optionally assigned to a team member.
type Task struct {
	ID          string     `json:"id"`
	TaskListID  string     `json:"task_list_id"`
	AssigneeID  *string    `json:"assignee_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	IsDone      bool       `json:"is_done"`
	Priority    Priority   `json:"priority"`
	Deadline    *time.Time `json:"deadline"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// OwnerID returns the assignee, making a task the target of ownership
// predicates.
func (t *Task) OwnerID() string {
	if t.AssigneeID == nil {
		return ""
	}
	return *t.AssigneeID
}

// Overdue reports whether the deadline has passed on an open task.
func (t *Task) Overdue(now time.Time) bool {
	return !t.IsDone && t.Deadline != nil && now.After(*t.Deadline)
}

// Location places a board or task list inside its team.
type Location struct {
	BoardID       string
	BoardTitle    string
	BoardArchived bool
	TeamID        string
	TeamName      string
}

// CreateListInput holds the fields for a new task list. A nil Position
// appends the list after the last one.
type CreateListInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Position    *int   `json:"position,omitempty"`
}

// CreateInput holds the fields for a new task.
type CreateInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssigneeID  *string    `json:"assignee_id,omitempty"`
	Priority    Priority   `json:"priority"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// UpdateInput holds optional fields for a partial task update. An empty
// AssigneeID unassigns the task.
type UpdateInput struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	AssigneeID  *string    `json:"assignee_id,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}
