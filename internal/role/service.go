package role

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrInconsistentRoleState means a membership or team mutation succeeded but
// the derived role could not be persisted. The surrounding transaction must
// be rolled back.
var ErrInconsistentRoleState = errors.New("derived role could not be persisted")

// Store is the persistence the derivation service reads facts from and
// writes roles to.
type Store interface {
	// CurrentRole returns the stored role of a user.
	CurrentRole(ctx context.Context, userID string) (Role, error)
	// LockRole returns the stored role and locks the user row until the
	// enclosing transaction ends.
	LockRole(ctx context.Context, userID string) (Role, error)
	Facts(ctx context.Context, userID string) (Facts, error)
	// SetRole updates only the role column.
	SetRole(ctx context.Context, userID string, r Role) error
}

// Transactor runs fn as one atomic unit.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ObserveFunc is notified after every recompute attempt.
type ObserveFunc func(userID string, from, to Role, err error)

// Service derives and persists user roles. It is the only writer of the
// role column.
type Service struct {
	store     Store
	tx        Transactor
	observers []ObserveFunc
}

// NewService creates a Service.
func NewService(store Store, tx Transactor) *Service {
	return &Service{store: store, tx: tx}
}

// Observe registers fn to be called after each recompute.
func (s *Service) Observe(fn ObserveFunc) {
	s.observers = append(s.observers, fn)
}

func (s *Service) notify(userID string, from, to Role, err error) {
	for _, fn := range s.observers {
		fn(userID, from, to, err)
	}
}

// Inspect returns the role the user would hold right now without writing
// anything.
func (s *Service) Inspect(ctx context.Context, userID string) (Role, error) {
	current, err := s.store.CurrentRole(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("reading role of user %s: %w", userID, err)
	}
	if current == Admin {
		return Admin, nil
	}
	facts, err := s.store.Facts(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("reading role facts of user %s: %w", userID, err)
	}
	return Derive(facts), nil
}

// Recompute derives the user's role from current state and persists it when
// it changed. Admins are left untouched. It must run inside the transaction
// of the mutation that triggered it.
func (s *Service) Recompute(ctx context.Context, userID string) (Role, error) {
	current, err := s.store.LockRole(ctx, userID)
	if err != nil {
		err = fmt.Errorf("%w: locking user %s: %w", ErrInconsistentRoleState, userID, err)
		s.notify(userID, "", "", err)
		return "", err
	}
	if current == Admin {
		s.notify(userID, current, current, nil)
		return Admin, nil
	}

	facts, err := s.store.Facts(ctx, userID)
	if err != nil {
		err = fmt.Errorf("%w: reading facts of user %s: %w", ErrInconsistentRoleState, userID, err)
		s.notify(userID, current, "", err)
		return "", err
	}

	next := Derive(facts)
	if next != current {
		if err := s.store.SetRole(ctx, userID, next); err != nil {
			err = fmt.Errorf("%w: writing role of user %s: %w", ErrInconsistentRoleState, userID, err)
			s.notify(userID, current, next, err)
			return "", err
		}
		slog.Debug("role recomputed", "user_id", userID, "from", current, "to", next)
	}

	s.notify(userID, current, next, nil)
	return next, nil
}

// Elevate assigns the admin role out-of-band.
func (s *Service) Elevate(ctx context.Context, userID string) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.LockRole(ctx, userID)
		if err != nil {
			return fmt.Errorf("locking user %s: %w", userID, err)
		}
		if current == Admin {
			return nil
		}
		if err := s.store.SetRole(ctx, userID, Admin); err != nil {
			return fmt.Errorf("elevating user %s: %w", userID, err)
		}
		s.notify(userID, current, Admin, nil)
		return nil
	})
}

// Demote removes the admin role and falls back to the derived role.
func (s *Service) Demote(ctx context.Context, userID string) (Role, error) {
	var result Role
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.LockRole(ctx, userID)
		if err != nil {
			return fmt.Errorf("locking user %s: %w", userID, err)
		}
		facts, err := s.store.Facts(ctx, userID)
		if err != nil {
			return fmt.Errorf("reading role facts of user %s: %w", userID, err)
		}
		result = Derive(facts)
		if result == current {
			return nil
		}
		if err := s.store.SetRole(ctx, userID, result); err != nil {
			return fmt.Errorf("%w: demoting user %s: %w", ErrInconsistentRoleState, userID, err)
		}
		s.notify(userID, current, result, nil)
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// Resync runs Recompute in its own transaction. It repairs a stored role
// that drifted from the facts, for example after manual data fixes.
func (s *Service) Resync(ctx context.Context, userID string) (Role, error) {
	var result Role
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.Recompute(ctx, userID)
		result = r
		return err
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
