// Package notification stores per-user notifications and pushes them to
// connected clients over Redis pub/sub.
package notification

import (
	"context"
	"errors"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/authz"
)

var ErrNotFound = errors.New("notification not found")

// Repository persists notifications. Every read and write is limited to one
// user's rows.
type Repository interface {
	Insert(ctx context.Context, n *Notification) error
	List(ctx context.Context, q Query) ([]*Notification, string, error)
	MarkVisited(ctx context.Context, userID, id string) error
	MarkAllVisited(ctx context.Context, userID string) (int64, error)
	CountUnvisited(ctx context.Context, userID string) (int, error)
}

// Service exposes a user's own notifications.
type Service struct {
	repo  Repository
	authz *authz.Authorizer
}

// NewService creates a notification service.
func NewService(repo Repository, az *authz.Authorizer) *Service {
	return &Service{repo: repo, authz: az}
}

func (s *Service) allow(ctx context.Context, action string, actor *auth.User) error {
	return s.authz.Authorize(ctx, action, authz.IsAnyUser, actor, nil, "")
}

// List returns a page of the actor's notifications. The query's UserID is
// always the actor.
func (s *Service) List(ctx context.Context, actor *auth.User, q Query) ([]*Notification, string, error) {
	if err := s.allow(ctx, "notification.list", actor); err != nil {
		return nil, "", err
	}
	q.UserID = actor.ID
	return s.repo.List(ctx, q)
}

// MarkVisited flags one of the actor's notifications as seen. Another user's
// notification is reported as not found.
func (s *Service) MarkVisited(ctx context.Context, actor *auth.User, id string) error {
	if err := s.allow(ctx, "notification.visit", actor); err != nil {
		return err
	}
	return s.repo.MarkVisited(ctx, actor.ID, id)
}

// MarkAllVisited flags all of the actor's notifications as seen.
func (s *Service) MarkAllVisited(ctx context.Context, actor *auth.User) (int64, error) {
	if err := s.allow(ctx, "notification.visit_all", actor); err != nil {
		return 0, err
	}
	return s.repo.MarkAllVisited(ctx, actor.ID)
}

// Unvisited returns the actor's unseen count.
func (s *Service) Unvisited(ctx context.Context, actor *auth.User) (int, error) {
	if err := s.allow(ctx, "notification.count", actor); err != nil {
		return 0, err
	}
	return s.repo.CountUnvisited(ctx, actor.ID)
}
