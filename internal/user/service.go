package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is blocked or inactive")
	ErrSelfAction         = errors.New("cannot apply this action to your own account")
)

// ValidationError reports invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// PublicViewerLimit caps the anonymous viewer listing.
const PublicViewerLimit = 10

// Repository is the persistence the account service needs.
type Repository interface {
	Create(ctx context.Context, in CreateUserInput) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, id string, in UpdateUserInput) (*User, error)
	SetActive(ctx context.Context, id string, active bool) error
	Block(ctx context.Context, userID, adminID, note string) error
	Unblock(ctx context.Context, userID string) error
	CreateSession(ctx context.Context, userID string) (string, *Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, userID string) error
	Delete(ctx context.Context, id string) error
	ListViewers(ctx context.Context, limit int) ([]*PublicProfile, error)
}

// Transactor runs fn as one atomic unit.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements account registration, login and moderation.
type Service struct {
	repo Repository
	tx   Transactor
}

// NewService creates an account service.
func NewService(repo Repository, tx Transactor) *Service {
	return &Service{repo: repo, tx: tx}
}

// ValidateCreate checks registration input.
func ValidateCreate(in CreateUserInput) error {
	if _, err := mail.ParseAddress(in.Email); err != nil || !strings.Contains(in.Email, "@") {
		return &ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	if len(in.Password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	return nil
}

// Register creates a viewer account.
func (s *Service) Register(ctx context.Context, in CreateUserInput) (*User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := ValidateCreate(in); err != nil {
		return nil, err
	}
	u, err := s.repo.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	slog.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login verifies credentials and opens a session. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !CheckPassword(u, password) {
		return "", nil, ErrInvalidCredentials
	}
	if !u.Active || u.Blocked {
		return "", nil, ErrAccountDisabled
	}

	token, _, err := s.repo.CreateSession(ctx, u.ID)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// Logout ends the session identified by token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.repo.DeleteSession(ctx, token)
}

// Block blocks a user and ends all their sessions.
func (s *Service) Block(ctx context.Context, adminID, userID, note string) error {
	if adminID == userID {
		return ErrSelfAction
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByID(ctx, userID); err != nil {
			return err
		}
		if err := s.repo.Block(ctx, userID, adminID, note); err != nil {
			return err
		}
		return s.repo.DeleteUserSessions(ctx, userID)
	})
}

// Unblock lifts a block.
func (s *Service) Unblock(ctx context.Context, userID string) error {
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return err
	}
	return s.repo.Unblock(ctx, userID)
}

// Deactivate marks a user inactive and ends all their sessions.
func (s *Service) Deactivate(ctx context.Context, adminID, userID string) error {
	if adminID == userID {
		return ErrSelfAction
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.SetActive(ctx, userID, false); err != nil {
			return err
		}
		return s.repo.DeleteUserSessions(ctx, userID)
	})
}

// Delete removes a user account. Derived roles of other users depend only on
// their own teams and memberships, so nothing needs recomputing.
func (s *Service) Delete(ctx context.Context, adminID, userID string) error {
	if adminID == userID {
		return ErrSelfAction
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByID(ctx, userID); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, userID); err != nil {
			return err
		}
		slog.Info("user deleted", "user_id", userID, "admin_id", adminID)
		return nil
	})
}

// PublicViewers returns a random sample of viewer profiles.
func (s *Service) PublicViewers(ctx context.Context) ([]*PublicProfile, error) {
	return s.repo.ListViewers(ctx, PublicViewerLimit)
}

// Activate marks a user active again.
func (s *Service) Activate(ctx context.Context, userID string) error {
	return s.repo.SetActive(ctx, userID, true)
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns every user, newest first.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*User{}
	}
	return users, nil
}

// UpdateProfile changes a user's own name, email or password.
func (s *Service) UpdateProfile(ctx context.Context, id string, in UpdateUserInput) (*User, error) {
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
			return nil, &ValidationError{Field: "email", Message: "must be a valid email address"}
		}
		in.Email = &email
	}
	if in.Password != nil && len(*in.Password) < MinPasswordLength {
		return nil, &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	return s.repo.Update(ctx, id, in)
}
