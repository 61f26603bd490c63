package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecgard/teamhub/internal/auth"
)

// ErrPermissionDenied is returned when a principal fails a predicate or a
// team-scope check.
var ErrPermissionDenied = errors.New("permission denied")

// MembershipChecker answers whether a membership row exists.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID, teamID string) (bool, error)
}

// AssertTeamMember returns nil when principal may act inside teamID. Admins
// always may, whatever their account state; everyone else must be able to
// act and needs a membership. Errors from members are returned unchanged.
func AssertTeamMember(ctx context.Context, members MembershipChecker, principal *auth.User, teamID string) error {
	if principal == nil {
		return fmt.Errorf("%w: not authenticated", ErrPermissionDenied)
	}
	if principal.IsAdmin() {
		return nil
	}
	if !principal.CanAct() {
		return fmt.Errorf("%w: account cannot act", ErrPermissionDenied)
	}
	ok, err := members.IsMember(ctx, principal.ID, teamID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not a member of team %s", ErrPermissionDenied, teamID)
	}
	return nil
}

// Decision describes one authorization outcome.
type Decision struct {
	UserID    string
	Predicate string
	Action    string
	TeamID    string
	Allowed   bool
}

// DecisionFunc receives every decision an Authorizer makes.
type DecisionFunc func(ctx context.Context, d Decision)

// Authorizer combines a predicate with the team-scope check and reports
// each decision to its observers.
type Authorizer struct {
	members   MembershipChecker
	observers []DecisionFunc
}

// NewAuthorizer creates an Authorizer that checks team scope with members.
func NewAuthorizer(members MembershipChecker) *Authorizer {
	return &Authorizer{members: members}
}

// Observe registers fn to receive decisions.
func (a *Authorizer) Observe(fn DecisionFunc) {
	a.observers = append(a.observers, fn)
}

// Authorize evaluates p against principal and target, then, when teamID is
// not empty, asserts team membership. Persistence errors are returned
// unchanged and produce no decision.
func (a *Authorizer) Authorize(ctx context.Context, action string, p Predicate, principal *auth.User, target Owned, teamID string) error {
	d := Decision{Predicate: Label(p), Action: action, TeamID: teamID}
	if principal != nil {
		d.UserID = principal.ID
	}

	if !Evaluate(p, principal, target) {
		a.notify(ctx, d)
		return fmt.Errorf("%w: %s requires %s", ErrPermissionDenied, action, d.Predicate)
	}
	if teamID != "" {
		if err := AssertTeamMember(ctx, a.members, principal, teamID); err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				a.notify(ctx, d)
			}
			return err
		}
	}

	d.Allowed = true
	a.notify(ctx, d)
	return nil
}

// Scope asserts team membership only, reporting the decision.
func (a *Authorizer) Scope(ctx context.Context, action string, principal *auth.User, teamID string) error {
	d := Decision{Predicate: "TeamMember", Action: action, TeamID: teamID}
	if principal != nil {
		d.UserID = principal.ID
	}
	if err := AssertTeamMember(ctx, a.members, principal, teamID); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			a.notify(ctx, d)
		}
		return err
	}
	d.Allowed = true
	a.notify(ctx, d)
	return nil
}

func (a *Authorizer) notify(ctx context.Context, d Decision) {
	for _, fn := range a.observers {
		fn(ctx, d)
	}
}
