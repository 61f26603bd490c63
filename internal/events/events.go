// Package events is a small in-process event bus. Subscribers run
// synchronously on the publisher's goroutine and inside its context, so a
// subscriber that writes through db.Conn joins the publisher's transaction.
package events

import (
	"context"
	"fmt"
	"sync"
)

// Kind identifies an event type.
type Kind string

const (
	KindTeamCreated        Kind = "team.created"
	KindTeamDeleted        Kind = "team.deleted"
	KindMembershipCreated  Kind = "membership.created"
	KindMembershipDeleted  Kind = "membership.deleted"
	KindJoinRequested      Kind = "join_request.created"
	KindJoinResolved       Kind = "join_request.resolved"
	KindInvitationSent     Kind = "invitation.sent"
	KindInvitationAnswered Kind = "invitation.answered"
	KindBoardCreated       Kind = "board.created"
	KindBoardUpdated       Kind = "board.updated"
	KindBoardArchived      Kind = "board.archived"
	KindBoardRestored      Kind = "board.restored"
	KindBoardDeleted       Kind = "board.deleted"
	KindTaskCreated        Kind = "task.created"
	KindTaskUpdated        Kind = "task.updated"
	KindTaskDeleted        Kind = "task.deleted"
	KindTaskCompleted      Kind = "task.completed"
)

// Event is anything that can be published on a Bus.
type Event interface {
	Kind() Kind
}

// Handler reacts to an event. A non-nil error aborts the publish.
type Handler func(ctx context.Context, e Event) error

// Bus dispatches events to subscribers in registration order.
type Bus struct {
	mu   sync.RWMutex
	subs map[Kind][]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]Handler)}
}

// Subscribe registers h for every kind listed.
func (b *Bus) Subscribe(h Handler, kinds ...Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range kinds {
		b.subs[k] = append(b.subs[k], h)
	}
}

// Publish calls every subscriber of e.Kind() and returns the first error.
// Remaining subscribers are skipped once one fails.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subs[e.Kind()]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			return fmt.Errorf("handling %s: %w", e.Kind(), err)
		}
	}
	return nil
}
