package role

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alecgard/teamhub/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store. teams maps team id to creator id and
// members maps team id to member ids.
type memStore struct {
	mu      sync.Mutex
	roles   map[string]Role
	teams   map[string]string
	members map[string]map[string]bool
	writes  int
	setErr  error
}

func newMemStore() *memStore {
	return &memStore{
		roles:   map[string]Role{},
		teams:   map[string]string{},
		members: map[string]map[string]bool{},
	}
}

func (m *memStore) addUser(id string, r Role) { m.roles[id] = r }

func (m *memStore) createTeam(teamID, creator string) {
	m.teams[teamID] = creator
	m.members[teamID] = map[string]bool{}
}

func (m *memStore) join(teamID, userID string) { m.members[teamID][userID] = true }

func (m *memStore) leave(teamID, userID string) { delete(m.members[teamID], userID) }

func (m *memStore) deleteTeam(teamID string) (creator string, members []string) {
	creator = m.teams[teamID]
	for id := range m.members[teamID] {
		members = append(members, id)
	}
	delete(m.teams, teamID)
	delete(m.members, teamID)
	return creator, members
}

func (m *memStore) CurrentRole(_ context.Context, userID string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[userID]
	if !ok {
		return "", errors.New("no such user")
	}
	return r, nil
}

func (m *memStore) LockRole(ctx context.Context, userID string) (Role, error) {
	return m.CurrentRole(ctx, userID)
}

func (m *memStore) Facts(_ context.Context, userID string) (Facts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var f Facts
	for teamID, creator := range m.teams {
		if creator == userID {
			f.CreatedTeams++
		}
		if m.members[teamID][userID] {
			f.Memberships++
		}
	}
	return f, nil
}

func (m *memStore) SetRole(_ context.Context, userID string, r Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.writes++
	m.roles[userID] = r
	return nil
}

type inlineTx struct{}

func (inlineTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestParse(t *testing.T) {
	for _, r := range All {
		got, err := Parse(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := Parse("super_user")
	assert.Error(t, err)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Project admin", ProjectAdmin.Label())
	assert.Equal(t, "weird", Role("weird").Label())
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name  string
		facts Facts
		want  Role
	}{
		{"nothing", Facts{}, Viewer},
		{"member only", Facts{Memberships: 3}, ProjectMember},
		{"creator without memberships", Facts{CreatedTeams: 1}, ProjectAdmin},
		{"creator with memberships", Facts{CreatedTeams: 2, Memberships: 5}, ProjectAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.facts))
		})
	}
}

func TestDeriveNeverProducesAdmin(t *testing.T) {
	for c := 0; c < 3; c++ {
		for m := 0; m < 3; m++ {
			assert.NotEqual(t, Admin, Derive(Facts{CreatedTeams: c, Memberships: m}))
		}
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", Viewer)
	store.createTeam("t1", "other")
	store.join("t1", "u1")
	svc := NewService(store, inlineTx{})

	first, err := svc.Recompute(context.Background(), "u1")
	require.NoError(t, err)
	second, err := svc.Recompute(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, ProjectMember, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.writes, "unchanged role must not be rewritten")
}

func TestRecomputeLeavesAdminAlone(t *testing.T) {
	store := newMemStore()
	store.addUser("a1", Admin)
	svc := NewService(store, inlineTx{})

	got, err := svc.Recompute(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, Admin, got)
	assert.Equal(t, 0, store.writes)
}

func TestRecomputeWriteFailureIsInconsistentState(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", Viewer)
	store.createTeam("t1", "u1")
	store.setErr = errors.New("connection reset")
	svc := NewService(store, inlineTx{})

	var observed error
	svc.Observe(func(_ string, _, _ Role, err error) { observed = err })

	_, err := svc.Recompute(context.Background(), "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInconsistentRoleState)
	assert.ErrorIs(t, err, store.setErr)
	assert.ErrorIs(t, observed, ErrInconsistentRoleState)
}

func TestInspectDoesNotWrite(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", Viewer)
	store.createTeam("t1", "u1")
	svc := NewService(store, inlineTx{})

	got, err := svc.Inspect(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, ProjectAdmin, got)
	assert.Equal(t, Viewer, store.roles["u1"])
	assert.Equal(t, 0, store.writes)
}

func TestElevateAndDemote(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", ProjectMember)
	store.createTeam("t1", "x")
	store.join("t1", "u1")
	svc := NewService(store, inlineTx{})
	ctx := context.Background()

	require.NoError(t, svc.Elevate(ctx, "u1"))
	assert.Equal(t, Admin, store.roles["u1"])

	// Admin survives recompute even though facts say member.
	got, err := svc.Recompute(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Admin, got)

	got, err = svc.Demote(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ProjectMember, got)
	assert.Equal(t, ProjectMember, store.roles["u1"])
}

func TestHooksScenario(t *testing.T) {
	store := newMemStore()
	store.addUser("U", Viewer)
	store.addUser("A", Admin)
	svc := NewService(store, inlineTx{})
	bus := events.NewBus()
	NewHooks(svc).Register(bus)
	ctx := context.Background()

	// U creates T and is auto-enrolled.
	store.createTeam("T", "U")
	store.join("T", "U")
	require.NoError(t, bus.Publish(ctx, events.MembershipCreated{UserID: "U", TeamID: "T"}))
	assert.Equal(t, ProjectAdmin, store.roles["U"])

	// U is also a member of S, created by A.
	store.createTeam("S", "A")
	store.join("S", "U")
	require.NoError(t, bus.Publish(ctx, events.MembershipCreated{UserID: "U", TeamID: "S"}))
	assert.Equal(t, ProjectAdmin, store.roles["U"])

	// A removes U from S: U still created T.
	store.leave("S", "U")
	require.NoError(t, bus.Publish(ctx, events.MembershipDeleted{UserID: "U", TeamID: "S", ActorID: "A"}))
	assert.Equal(t, ProjectAdmin, store.roles["U"])

	// T is deleted: nothing left.
	creator, members := store.deleteTeam("T")
	require.NoError(t, bus.Publish(ctx, events.TeamDeleted{TeamID: "T", CreatorID: creator, MemberIDs: members}))
	assert.Equal(t, Viewer, store.roles["U"])
	assert.Equal(t, Admin, store.roles["A"])
}

func TestHooksDeletingOnlyMembershipReturnsToViewer(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", Viewer)
	store.createTeam("t1", "owner")
	store.join("t1", "u1")
	svc := NewService(store, inlineTx{})
	bus := events.NewBus()
	NewHooks(svc).Register(bus)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, events.MembershipCreated{UserID: "u1", TeamID: "t1"}))
	assert.Equal(t, ProjectMember, store.roles["u1"])

	store.leave("t1", "u1")
	require.NoError(t, bus.Publish(ctx, events.MembershipDeleted{UserID: "u1", TeamID: "t1"}))
	assert.Equal(t, Viewer, store.roles["u1"])
}

func TestHooksPropagateFailure(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", Viewer)
	store.createTeam("t1", "owner")
	store.join("t1", "u1")
	store.setErr = errors.New("disk full")
	bus := events.NewBus()
	NewHooks(NewService(store, inlineTx{})).Register(bus)

	err := bus.Publish(context.Background(), events.MembershipCreated{UserID: "u1", TeamID: "t1"})
	assert.ErrorIs(t, err, ErrInconsistentRoleState)
}

func TestResyncRepairsDrift(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", Viewer)
	store.createTeam("t1", "u1")
	svc := NewService(store, inlineTx{})

	got, err := svc.Resync(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, ProjectAdmin, got)
	assert.Equal(t, ProjectAdmin, store.roles["u1"])

	_, err = svc.Resync(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrInconsistentRoleState)
}
