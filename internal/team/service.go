package team

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/authz"
	"github.com/alecgard/teamhub/internal/events"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrNameTaken           = errors.New("team name already taken")
	ErrAlreadyMember       = errors.New("user is already a member of the team")
	ErrNotMember           = errors.New("user is not a member of the team")
	ErrUserNotFound        = errors.New("user not found")
	ErrTeamLocked          = errors.New("team is locked")
	ErrDuplicateRequest    = errors.New("join request already exists")
	ErrDuplicateInvitation = errors.New("invitation already exists")
	ErrAlreadyResolved     = errors.New("already resolved")
	ErrNotInvitee          = errors.New("invitation is addressed to another user")
	ErrInvalidName         = errors.New("team name is required")
)

// Repository is the persistence the team service needs.
type Repository interface {
	authz.MembershipChecker

	CreateTeam(ctx context.Context, in CreateInput, creatorID string) (*Team, error)
	GetTeam(ctx context.Context, id string) (*Team, error)
	ListPublic(ctx context.Context) ([]*Team, error)
	ListForUser(ctx context.Context, userID string) ([]*Team, error)
	UpdateTeam(ctx context.Context, id string, in UpdateInput) (*Team, error)
	SetFlags(ctx context.Context, id string, locked, public *bool) (*Team, error)
	DeleteTeam(ctx context.Context, id string) error

	AddMember(ctx context.Context, teamID, userID, responsible string) (*Membership, error)
	RemoveMember(ctx context.Context, teamID, userID string) (*Membership, error)
	ListMembers(ctx context.Context, teamID string) ([]*Member, error)
	MemberIDs(ctx context.Context, teamID string) ([]string, error)

	CreateJoinRequest(ctx context.Context, teamID, userID string) (*JoinRequest, error)
	LockJoinRequest(ctx context.Context, id string) (*JoinRequest, error)
	ListJoinRequests(ctx context.Context, teamID string, status Status) ([]*JoinRequest, error)
	ResolveJoinRequest(ctx context.Context, id string, status Status, resolverID string) error

	CreateInvitation(ctx context.Context, teamID, inviterID, inviteeID string) (*Invitation, error)
	LockInvitation(ctx context.Context, id string) (*Invitation, error)
	ListInvitations(ctx context.Context, inviteeID string, status Status) ([]*Invitation, error)
	SetInvitationStatus(ctx context.Context, id string, status Status) error
}

// Transactor runs fn as one atomic unit.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements team, membership, join request and invitation
// operations. Every mutation runs in one transaction together with the
// subscribers of the events it publishes.
type Service struct {
	repo  Repository
	tx    Transactor
	bus   *events.Bus
	authz *authz.Authorizer
}

// NewService creates a team service.
func NewService(repo Repository, tx Transactor, bus *events.Bus, az *authz.Authorizer) *Service {
	return &Service{repo: repo, tx: tx, bus: bus, authz: az}
}

// Create makes a new team owned by actor, who becomes its first member.
func (s *Service) Create(ctx context.Context, actor *auth.User, in CreateInput) (*Team, error) {
	if err := s.authz.Authorize(ctx, "team.create", authz.IsAnyUser, actor, nil, ""); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, ErrInvalidName
	}

	var t *Team
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.repo.CreateTeam(ctx, in, actor.ID)
		if err != nil {
			return err
		}
		m, err := s.repo.AddMember(ctx, t.ID, actor.ID, ResponsibleOwner)
		if err != nil {
			return err
		}
		if err := s.bus.Publish(ctx, events.TeamCreated{TeamID: t.ID, Name: t.Name, CreatorID: actor.ID}); err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.MembershipCreated{
			MembershipID: m.ID, UserID: actor.ID, TeamID: t.ID, Responsible: m.Responsible, ActorID: actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns a team. Private teams are only visible to their members.
func (s *Service) Get(ctx context.Context, actor *auth.User, id string) (*Team, error) {
	t, err := s.repo.GetTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsPublic {
		err = s.authz.Authorize(ctx, "team.read", authz.IsAnyUser, actor, nil, "")
	} else {
		err = s.authz.Authorize(ctx, "team.read", authz.IsAnyUser, actor, nil, t.ID)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListPublic returns every public team.
func (s *Service) ListPublic(ctx context.Context) ([]*Team, error) {
	return s.repo.ListPublic(ctx)
}

// ListMine returns the teams actor belongs to.
func (s *Service) ListMine(ctx context.Context, actor *auth.User) ([]*Team, error) {
	if err := s.authz.Authorize(ctx, "team.list_mine", authz.IsAnyUser, actor, nil, ""); err != nil {
		return nil, err
	}
	return s.repo.ListForUser(ctx, actor.ID)
}

// Update changes name and description.
func (s *Service) Update(ctx context.Context, actor *auth.User, id string, in UpdateInput) (*Team, error) {
	if err := s.authz.Authorize(ctx, "team.update", authz.IsAdminOrProjectAdmin, actor, nil, id); err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, ErrInvalidName
		}
		in.Name = &name
	}
	return s.repo.UpdateTeam(ctx, id, in)
}

// SetLocked locks or unlocks a team. Locked teams accept no join requests.
func (s *Service) SetLocked(ctx context.Context, actor *auth.User, id string, locked bool) (*Team, error) {
	if err := s.authz.Authorize(ctx, "team.lock", authz.IsAdminOrProjectAdmin, actor, nil, id); err != nil {
		return nil, err
	}
	return s.repo.SetFlags(ctx, id, &locked, nil)
}

// SetPublic changes the team's visibility.
func (s *Service) SetPublic(ctx context.Context, actor *auth.User, id string, public bool) (*Team, error) {
	if err := s.authz.Authorize(ctx, "team.visibility", authz.IsAdminOrProjectAdmin, actor, nil, id); err != nil {
		return nil, err
	}
	return s.repo.SetFlags(ctx, id, nil, &public)
}

// Delete removes a team. The creator and every former member have their
// roles recomputed in the same transaction.
func (s *Service) Delete(ctx context.Context, actor *auth.User, id string) error {
	if err := s.authz.Authorize(ctx, "team.delete", authz.IsAdminOrProjectAdmin, actor, nil, id); err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetTeam(ctx, id)
		if err != nil {
			return err
		}
		memberIDs, err := s.repo.MemberIDs(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteTeam(ctx, id); err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.TeamDeleted{
			TeamID:    t.ID,
			Name:      t.Name,
			CreatorID: t.CreatorID(),
			MemberIDs: memberIDs,
			ActorID:   actor.ID,
		})
	})
}

// Members lists the members of a team.
func (s *Service) Members(ctx context.Context, actor *auth.User, teamID string) ([]*Member, error) {
	if err := s.authz.Authorize(ctx, "team.members", authz.IsAnyUser, actor, nil, teamID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, teamID)
}

// AddMember enrolls userID directly.
func (s *Service) AddMember(ctx context.Context, actor *auth.User, teamID, userID, responsible string) (*Membership, error) {
	if err := s.authz.Authorize(ctx, "team.member_add", authz.IsAdminOrProjectAdmin, actor, nil, teamID); err != nil {
		return nil, err
	}
	if responsible == "" {
		responsible = ResponsibleMember
	}
	var m *Membership
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetTeam(ctx, teamID); err != nil {
			return err
		}
		var err error
		m, err = s.enroll(ctx, teamID, userID, responsible, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember drops userID from the team. Managers may remove anyone and
// members may remove themselves.
func (s *Service) RemoveMember(ctx context.Context, actor *auth.User, teamID, userID string) error {
	var err error
	if actor != nil && actor.ID == userID {
		err = s.authz.Authorize(ctx, "team.leave", authz.IsAnyUser, actor, nil, teamID)
	} else {
		err = s.authz.Authorize(ctx, "team.member_drop", authz.IsAdminOrProjectAdmin, actor, nil, teamID)
	}
	if err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		m, err := s.repo.RemoveMember(ctx, teamID, userID)
		if err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.MembershipDeleted{
			MembershipID: m.ID, UserID: userID, TeamID: teamID, ActorID: actor.ID,
		})
	})
}

// RequestJoin files a join request from actor.
func (s *Service) RequestJoin(ctx context.Context, actor *auth.User, teamID string) (*JoinRequest, error) {
	if err := s.authz.Authorize(ctx, "team.join_request", authz.IsAnyUser, actor, nil, ""); err != nil {
		return nil, err
	}
	var jr *JoinRequest
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if t.IsLocked {
			return ErrTeamLocked
		}
		member, err := s.repo.IsMember(ctx, actor.ID, teamID)
		if err != nil {
			return err
		}
		if member {
			return ErrAlreadyMember
		}
		jr, err = s.repo.CreateJoinRequest(ctx, teamID, actor.ID)
		if err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.JoinRequested{RequestID: jr.ID, UserID: actor.ID, TeamID: teamID})
	})
	if err != nil {
		return nil, err
	}
	return jr, nil
}

// JoinRequests lists a team's join requests.
func (s *Service) JoinRequests(ctx context.Context, actor *auth.User, teamID string, status Status) ([]*JoinRequest, error) {
	if err := s.authz.Authorize(ctx, "team.join_requests", authz.IsAdminOrProjectAdmin, actor, nil, teamID); err != nil {
		return nil, err
	}
	return s.repo.ListJoinRequests(ctx, teamID, status)
}

// ResolveJoinRequest accepts or rejects a pending request. Accepting
// enrolls the requester.
func (s *Service) ResolveJoinRequest(ctx context.Context, actor *auth.User, requestID string, accept bool) (*JoinRequest, error) {
	var jr *JoinRequest
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		jr, err = s.repo.LockJoinRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(ctx, "team.join_resolve", authz.IsAdminOrProjectAdmin, actor, nil, jr.TeamID); err != nil {
			return err
		}
		if jr.Status != StatusPending {
			return fmt.Errorf("join request %s: %w", jr.ID, ErrAlreadyResolved)
		}
		t, err := s.repo.GetTeam(ctx, jr.TeamID)
		if err != nil {
			return err
		}

		status := StatusRejected
		if accept {
			status = StatusAccepted
		}
		if err := s.repo.ResolveJoinRequest(ctx, jr.ID, status, actor.ID); err != nil {
			return err
		}
		jr.Status = status
		jr.ResolvedBy = &actor.ID

		if accept {
			if err := s.enrollIfAbsent(ctx, jr.TeamID, jr.UserID, actor.ID); err != nil {
				return err
			}
		}
		return s.bus.Publish(ctx, events.JoinResolved{
			RequestID: jr.ID, UserID: jr.UserID, TeamID: jr.TeamID, TeamName: t.Name,
			Status: string(status), ResolverID: actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return jr, nil
}

// Invite invites inviteeID to the team.
func (s *Service) Invite(ctx context.Context, actor *auth.User, teamID, inviteeID string) (*Invitation, error) {
	if err := s.authz.Authorize(ctx, "team.invite", authz.IsAdminOrProjectAdmin, actor, nil, teamID); err != nil {
		return nil, err
	}
	var inv *Invitation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		member, err := s.repo.IsMember(ctx, inviteeID, teamID)
		if err != nil {
			return err
		}
		if member {
			return ErrAlreadyMember
		}
		inv, err = s.repo.CreateInvitation(ctx, teamID, actor.ID, inviteeID)
		if err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.InvitationSent{
			InvitationID: inv.ID, InviterID: actor.ID, InviteeID: inviteeID, TeamID: teamID, TeamName: t.Name,
		})
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Invitations lists the invitations addressed to actor.
func (s *Service) Invitations(ctx context.Context, actor *auth.User, status Status) ([]*Invitation, error) {
	if err := s.authz.Authorize(ctx, "team.invitations", authz.IsAnyUser, actor, nil, ""); err != nil {
		return nil, err
	}
	return s.repo.ListInvitations(ctx, actor.ID, status)
}

// RespondInvitation records the invitee's answer. Accepting enrolls them.
func (s *Service) RespondInvitation(ctx context.Context, actor *auth.User, invitationID string, accept bool) (*Invitation, error) {
	if err := s.authz.Authorize(ctx, "team.invitation_respond", authz.IsAnyUser, actor, nil, ""); err != nil {
		return nil, err
	}
	var inv *Invitation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.LockInvitation(ctx, invitationID)
		if err != nil {
			return err
		}
		if inv.InviteeID != actor.ID {
			return ErrNotInvitee
		}
		if inv.Status != StatusPending {
			return fmt.Errorf("invitation %s: %w", inv.ID, ErrAlreadyResolved)
		}

		status := StatusRejected
		if accept {
			status = StatusAccepted
		}
		if err := s.repo.SetInvitationStatus(ctx, inv.ID, status); err != nil {
			return err
		}
		inv.Status = status

		if accept {
			if err := s.enrollIfAbsent(ctx, inv.TeamID, actor.ID, actor.ID); err != nil {
				return err
			}
		}
		inviter := ""
		if inv.InviterID != nil {
			inviter = *inv.InviterID
		}
		return s.bus.Publish(ctx, events.InvitationAnswered{
			InvitationID: inv.ID, InviterID: inviter, InviteeID: actor.ID, TeamID: inv.TeamID, Status: string(status),
		})
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// IsMember reports whether userID belongs to teamID.
func (s *Service) IsMember(ctx context.Context, userID, teamID string) (bool, error) {
	return s.repo.IsMember(ctx, userID, teamID)
}

// enroll inserts a membership and publishes MembershipCreated. It must run
// inside a transaction.
func (s *Service) enroll(ctx context.Context, teamID, userID, responsible, actorID string) (*Membership, error) {
	m, err := s.repo.AddMember(ctx, teamID, userID, responsible)
	if err != nil {
		return nil, err
	}
	err = s.bus.Publish(ctx, events.MembershipCreated{
		MembershipID: m.ID, UserID: userID, TeamID: teamID, Responsible: responsible, ActorID: actorID,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// enrollIfAbsent enrolls userID as a plain member unless a membership
// already exists. A failed insert would abort the transaction, so the
// existence check comes first.
func (s *Service) enrollIfAbsent(ctx context.Context, teamID, userID, actorID string) error {
	member, err := s.repo.IsMember(ctx, userID, teamID)
	if err != nil || member {
		return err
	}
	_, err = s.enroll(ctx, teamID, userID, ResponsibleMember, actorID)
	return err
}
