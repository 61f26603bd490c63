package board

import "time"

// Board groups task lists inside a team.
type Board struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsArchived  bool      `json:"is_archived"`
	CreatedBy   *string   `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter selects boards by archive state.
type Filter string

const (
	FilterActive   Filter = "active"
	FilterArchived Filter = "archived"
	FilterAll      Filter = "all"
)

// ParseFilter maps a query value to a Filter. Empty means active.
func ParseFilter(s string) (Filter, bool) {
	switch Filter(s) {
	case "", FilterActive:
		return FilterActive, true
	case FilterArchived, FilterAll:
		return Filter(s), true
	}
	return "", false
}

// CreateInput holds the fields for a new board.
type CreateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateInput holds optional fields for a partial board update.
type UpdateInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}
