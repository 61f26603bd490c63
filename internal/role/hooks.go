package role

import (
	"context"

	"github.com/alecgard/teamhub/internal/events"
)

// Hooks keeps the denormalized role in step with membership and team
// mutations.
type Hooks struct {
	svc *Service
}

// NewHooks creates recompute hooks backed by svc.
func NewHooks(svc *Service) *Hooks {
	return &Hooks{svc: svc}
}

// Register subscribes the hooks to every event that can change a derived
// role.
func (h *Hooks) Register(bus *events.Bus) {
	bus.Subscribe(h.Handle,
		events.KindMembershipCreated,
		events.KindMembershipDeleted,
		events.KindTeamDeleted,
	)
}

// Handle recomputes the role of every user affected by e.
func (h *Hooks) Handle(ctx context.Context, e events.Event) error {
	var affected []string
	switch ev := e.(type) {
	case events.MembershipCreated:
		affected = []string{ev.UserID}
	case events.MembershipDeleted:
		affected = []string{ev.UserID}
	case events.TeamDeleted:
		affected = ev.Affected()
	}

	for _, userID := range affected {
		if _, err := h.svc.Recompute(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}
