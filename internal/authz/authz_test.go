package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/role"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type owned string

func (o owned) OwnerID() string { return string(o) }

type fakeMembers struct {
	members map[string]bool // "user|team"
	err     error
	calls   int
}

func (f *fakeMembers) IsMember(_ context.Context, userID, teamID string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.members[userID+"|"+teamID], nil
}

func user(id string, r role.Role) *auth.User {
	return &auth.User{ID: id, Role: r, Active: true}
}

func TestEvaluateSingleRole(t *testing.T) {
	for _, r := range role.All {
		for _, held := range role.All {
			got := Evaluate(SingleRole{Role: r}, user("u", held), nil)
			assert.Equal(t, r == held, got, "predicate %s, held %s", r, held)
		}
	}
}

func TestEvaluateAnyOfMatchesUnion(t *testing.T) {
	assert.True(t, Evaluate(IsAdminOrProjectAdmin, user("u", role.Admin), nil))
	assert.True(t, Evaluate(IsAdminOrProjectAdmin, user("u", role.ProjectAdmin), nil))
	assert.False(t, Evaluate(IsAdminOrProjectAdmin, user("u", role.ProjectMember), nil))
	assert.False(t, Evaluate(IsAdminOrProjectAdmin, user("u", role.Viewer), nil))

	assert.True(t, Evaluate(IsTeamUser, user("u", role.ProjectMember), nil))
	assert.False(t, Evaluate(IsTeamUser, user("u", role.Viewer), nil))

	for _, r := range role.All {
		assert.True(t, Evaluate(IsAnyUser, user("u", r), nil))
	}

	assert.False(t, Evaluate(AnyOf{}, user("u", role.Admin), nil), "empty union grants nothing")
}

func TestEvaluateBaseCheck(t *testing.T) {
	predicates := []Predicate{IsAdmin, IsAnyUser, IsOwnerOrAdmin, IsAssigneeOrManager}

	blocked := user("u", role.Admin)
	blocked.Blocked = true
	inactive := user("u", role.Admin)
	inactive.Active = false

	for _, p := range predicates {
		assert.False(t, Evaluate(p, nil, owned("u")), "%s: anonymous", Label(p))
		assert.False(t, Evaluate(p, blocked, owned("u")), "%s: blocked", Label(p))
		assert.False(t, Evaluate(p, inactive, owned("u")), "%s: inactive", Label(p))
	}
}

func TestEvaluateObjectOwner(t *testing.T) {
	assignee := user("u1", role.ProjectMember)
	other := user("u2", role.ProjectMember)
	manager := user("u3", role.ProjectAdmin)

	assert.True(t, Evaluate(IsAssigneeOrManager, assignee, owned("u1")))
	assert.False(t, Evaluate(IsAssigneeOrManager, other, owned("u1")))
	assert.True(t, Evaluate(IsAssigneeOrManager, manager, owned("u1")))
	assert.False(t, Evaluate(IsAssigneeOrManager, assignee, nil))
	assert.False(t, Evaluate(IsAssigneeOrManager, user("", role.Viewer), owned("")), "empty owner never matches")

	assert.True(t, Evaluate(IsOwnerOrAdmin, user("a", role.Admin), owned("u1")))
	assert.False(t, Evaluate(IsOwnerOrAdmin, manager, owned("u1")))
}

func TestLabelAndRoles(t *testing.T) {
	assert.Equal(t, "IsAdmin", Label(IsAdmin))
	assert.Equal(t, "IsProjectMember", Label(IsProjectMember))
	assert.Equal(t, "IsProjectAdmin", Label(IsProjectAdmin))
	assert.Equal(t, "IsViewer", Label(IsViewer))
	assert.Equal(t, "IsProjectMember", Label(SingleRole{Role: role.ProjectMember}), "unnamed roles are camel-cased per word")
	assert.Equal(t, "IsProjectAdmin", Label(SingleRole{Role: role.ProjectAdmin}))
	assert.Equal(t, "IsAdminOrProjectAdmin", Label(IsAdminOrProjectAdmin))
	assert.Equal(t, "AnyOf(IsAdmin, IsViewer)", Label(AnyOf{Members: []SingleRole{IsAdmin, IsViewer}}))
	assert.Equal(t, "OwnerOr(IsTeamUser)", Label(ObjectOwner{Base: IsTeamUser}))

	assert.Equal(t, []role.Role{role.Admin, role.ProjectAdmin}, Roles(IsAdminOrProjectAdmin))
	assert.Equal(t, []role.Role{role.Admin, role.ProjectAdmin}, Roles(IsAssigneeOrManager))
	assert.Equal(t, []role.Role{role.Viewer}, Roles(IsViewer))
	assert.Equal(t, []role.Role{role.Admin}, Roles(AnyOf{Members: []SingleRole{IsAdmin, IsAdmin}}))
}

func TestAssertTeamMember(t *testing.T) {
	members := &fakeMembers{members: map[string]bool{"m|t1": true}}
	ctx := context.Background()

	require.NoError(t, AssertTeamMember(ctx, members, user("m", role.ProjectMember), "t1"))

	err := AssertTeamMember(ctx, members, user("m", role.ProjectMember), "t2")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = AssertTeamMember(ctx, members, nil, "t1")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAssertTeamMemberAdminBypass(t *testing.T) {
	members := &fakeMembers{}
	require.NoError(t, AssertTeamMember(context.Background(), members, user("a", role.Admin), "any"))
	assert.Equal(t, 0, members.calls)
}

func TestAssertTeamMemberAdminBypassIgnoresAccountState(t *testing.T) {
	members := &fakeMembers{}
	blocked := user("a", role.Admin)
	blocked.Blocked = true
	inactive := user("a", role.Admin)
	inactive.Active = false

	for _, team := range []string{"t1", "t2", "any"} {
		require.NoError(t, AssertTeamMember(context.Background(), members, blocked, team))
		require.NoError(t, AssertTeamMember(context.Background(), members, inactive, team))
	}
	assert.Equal(t, 0, members.calls)
}

func TestAssertTeamMemberBlockedMemberDenied(t *testing.T) {
	members := &fakeMembers{members: map[string]bool{"m|t1": true}}
	blocked := user("m", role.ProjectMember)
	blocked.Blocked = true

	err := AssertTeamMember(context.Background(), members, blocked, "t1")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 0, members.calls)
}

func TestAssertTeamMemberPropagatesStoreError(t *testing.T) {
	boom := errors.New("connection refused")
	members := &fakeMembers{err: boom}

	err := AssertTeamMember(context.Background(), members, user("m", role.ProjectAdmin), "t1")
	assert.Equal(t, boom, err)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
}

func TestAuthorizer(t *testing.T) {
	members := &fakeMembers{members: map[string]bool{"pa|t1": true}}
	a := NewAuthorizer(members)
	var got []Decision
	a.Observe(func(_ context.Context, d Decision) { got = append(got, d) })
	ctx := context.Background()

	require.NoError(t, a.Authorize(ctx, "board.create", IsAdminOrProjectAdmin, user("pa", role.ProjectAdmin), nil, "t1"))

	err := a.Authorize(ctx, "board.create", IsAdminOrProjectAdmin, user("pa", role.ProjectAdmin), nil, "t2")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = a.Authorize(ctx, "board.create", IsAdminOrProjectAdmin, user("v", role.Viewer), nil, "t1")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, err.Error(), "IsAdminOrProjectAdmin")

	require.Len(t, got, 3)
	assert.True(t, got[0].Allowed)
	assert.False(t, got[1].Allowed)
	assert.Equal(t, "t2", got[1].TeamID)
	assert.False(t, got[2].Allowed)
	assert.Equal(t, "v", got[2].UserID)
	assert.Equal(t, "board.create", got[2].Action)
}

func TestAuthorizerStoreErrorRecordsNothing(t *testing.T) {
	boom := errors.New("timeout")
	a := NewAuthorizer(&fakeMembers{err: boom})
	var n int
	a.Observe(func(context.Context, Decision) { n++ })

	err := a.Scope(context.Background(), "team.read", user("m", role.ProjectMember), "t1")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, n)
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	var denials int
	h := Require(IsAdmin, func(_ *http.Request, _ Predicate, allowed bool) {
		if !allowed {
			denials++
		}
	})(ok)

	tests := []struct {
		name string
		user *auth.User
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"viewer", user("v", role.Viewer), http.StatusForbidden},
		{"admin", user("a", role.Admin), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != nil {
				req = req.WithContext(auth.ContextWithUser(req.Context(), tt.user))
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
	assert.Equal(t, 2, denials)
}
