package grantkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignRole(t *testing.T) {
	env := newTestEnv(t, "alice")
	ctx := WithAuditContext(env.ctx, AuditContext{IPAddress: "10.0.0.7", RequestID: "req-9"})

	a, err := env.service.AssignRole(ctx, AssignRequest{
		PrincipalID: "alice",
		RoleID:      env.role("Advisor").ID,
		Reason:      "new hire",
		Context:     map[string]any{"ticket": "HR-12"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.True(t, a.IsActive)
	assert.Equal(t, testEpoch, a.EffectiveDate)
	assert.Nil(t, a.ExpirationDate)
	assert.Nil(t, a.DepartmentContext)
	assert.Equal(t, "registrar-1", a.AssignedBy)
	assert.Equal(t, "new hire", a.AssignmentReason)

	logs, err := env.service.GetAuditLog(env.ctx, NewAuditLogFilter().WithAssignment(a.ID))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, string(AuditActionAssigned), logs[0].Action)
	assert.Equal(t, "10.0.0.7", logs[0].IPAddress)
	assert.Equal(t, "req-9", logs[0].RequestID)
}

func TestAssignRoleRequiresActor(t *testing.T) {
	env := newTestEnv(t, "alice")
	_, err := env.service.AssignRole(context.Background(), AssignRequest{
		PrincipalID: "alice",
		RoleID:      env.role("Advisor").ID,
	})
	assert.ErrorIs(t, err, ErrNoActorID)
}

func TestAssignRoleRejections(t *testing.T) {
	env := newTestEnv(t, "alice", "frozen")
	env.dir.Set("frozen", false)
	_, err := env.service.CreateRole(env.ctx, RoleSpec{
		Name: "Chem Lab Tech", RoleType: RoleTypeStaff, Priority: 6, DepartmentScope: "CHEM",
	})
	require.NoError(t, err)
	catalog, err := env.service.Catalog(env.ctx)
	require.NoError(t, err)
	labTech, _ := catalog.ByName("Chem Lab Tech")

	_, err = env.service.DeactivateRole(env.ctx, env.role("Guest").ID)
	require.NoError(t, err)

	start := testEpoch.Add(24 * time.Hour)
	tests := []struct {
		name string
		req  AssignRequest
		want error
	}{
		{"expiration equals effective", AssignRequest{PrincipalID: "alice", RoleID: env.role("Staff").ID,
			EffectiveDate: &start, ExpirationDate: &start}, ErrInvalidWindow},
		{"expiration before effective", AssignRequest{PrincipalID: "alice", RoleID: env.role("Staff").ID,
			EffectiveDate: &start, ExpirationDate: ptr(start.Add(-time.Hour))}, ErrInvalidWindow},
		{"inactive principal", AssignRequest{PrincipalID: "frozen", RoleID: env.role("Staff").ID}, ErrPrincipalInactive},
		{"unknown principal", AssignRequest{PrincipalID: "ghost", RoleID: env.role("Staff").ID}, ErrNotFound},
		{"unknown role", AssignRequest{PrincipalID: "alice", RoleID: "no-such-role"}, ErrNotFound},
		{"inactive role", AssignRequest{PrincipalID: "alice", RoleID: env.role("Guest").ID}, ErrRoleInactive},
		{"scope mismatch", AssignRequest{PrincipalID: "alice", RoleID: labTech.ID, DepartmentContext: ptr("PHYS")}, ErrInvalidScope},
		{"missing principal", AssignRequest{RoleID: env.role("Staff").ID}, ErrInvalidRequest},
		{"department too long", AssignRequest{PrincipalID: "alice", RoleID: env.role("Staff").ID,
			DepartmentContext: ptr("DEPARTMENT-OF-EXTREMELY-LONG-NAMES-AND-MORE-CHARACTERS")}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.AssignRole(env.ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// A department-restricted role still accepts its own department.
	_, err = env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: labTech.ID, DepartmentContext: ptr("CHEM")})
	assert.NoError(t, err)

	list, err := env.service.ListAssignmentsForPrincipal(env.ctx, "alice", true)
	require.NoError(t, err)
	assert.Len(t, list, 1, "rejected requests store nothing")
}

func TestAssignmentUniqueness(t *testing.T) {
	env := newTestEnv(t, "alice")
	head := env.role("Department Head").ID

	env.assign("alice", "Department Head")
	_, err := env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: head})
	assert.ErrorIs(t, err, ErrDuplicateAssignment)
	assert.True(t, IsConflict(err))

	// Global and scoped grants coexist, and distinct departments coexist.
	env.assignIn("alice", "Department Head", "CS")
	env.assignIn("alice", "Department Head", "MATH")
	_, err = env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: head, DepartmentContext: ptr(" CS ")})
	assert.ErrorIs(t, err, ErrDuplicateAssignment)

	// A pending grant occupies the slot too.
	future := testEpoch.Add(30 * 24 * time.Hour)
	_, err = env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: env.role("Advisor").ID, EffectiveDate: &future})
	require.NoError(t, err)
	_, err = env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: env.role("Advisor").ID})
	assert.ErrorIs(t, err, ErrDuplicateAssignment)
}

func TestAssignAfterRevokeAndAfterExpiry(t *testing.T) {
	env := newTestEnv(t, "alice")
	staff := env.role("Staff").ID

	first := env.assign("alice", "Staff")
	_, err := env.service.RevokeRole(env.ctx, first.ID, "moved")
	require.NoError(t, err)
	second := env.assign("alice", "Staff")
	assert.NotEqual(t, first.ID, second.ID)

	// Expired but never lapsed: the new grant lapses the old one in the same unit.
	_, err = env.service.RevokeRole(env.ctx, second.ID, "")
	require.NoError(t, err)
	exp := testEpoch.Add(time.Hour)
	short, err := env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: staff, ExpirationDate: &exp})
	require.NoError(t, err)

	env.clock.Advance(2 * time.Hour)
	third, err := env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: staff})
	require.NoError(t, err)

	old, err := env.service.GetAssignment(env.ctx, short.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	require.NotNil(t, old.LapsedAt)
	assert.Equal(t, StateExpired, StateOf(old, env.clock.Now()))

	all, err := env.service.ListAssignmentsForPrincipal(env.ctx, "alice", true)
	require.NoError(t, err)
	assert.Len(t, all, 4, "history is kept")
	live, err := env.service.ListAssignmentsForPrincipal(env.ctx, "alice", false)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, third.ID, live[0].ID)
}

func TestRevokeRoleIsIdempotent(t *testing.T) {
	env := newTestEnv(t, "alice")
	a := env.assign("alice", "Advisor")

	res, err := env.service.RevokeRole(env.ctx, a.ID, "left department")
	require.NoError(t, err)
	assert.False(t, res.AlreadyRevoked)
	assert.Equal(t, StateRevoked, res.State)
	assert.False(t, res.Assignment.IsActive)
	assert.Equal(t, "registrar-1", res.Assignment.RevokedBy)
	assert.Equal(t, "left department", res.Assignment.RevocationReason)
	require.NotNil(t, res.Assignment.RevokedAt)
	revokedAt := *res.Assignment.RevokedAt

	env.clock.Advance(time.Hour)
	other := WithActorID(context.Background(), "someone-else")
	res, err = env.service.RevokeRole(other, a.ID, "again")
	require.NoError(t, err)
	assert.True(t, res.AlreadyRevoked)
	assert.Equal(t, StateRevoked, res.State)
	assert.Equal(t, "registrar-1", res.Assignment.RevokedBy)
	assert.Equal(t, "left department", res.Assignment.RevocationReason)
	assert.Equal(t, revokedAt, *res.Assignment.RevokedAt)

	logs, err := env.service.GetAuditLog(env.ctx, NewAuditLogFilter().WithAction(AuditActionRevoked))
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = env.service.RevokeRole(env.ctx, "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.service.RevokeRole(context.Background(), a.ID, "")
	assert.ErrorIs(t, err, ErrNoActorID)
}

func TestRevokeExpiredAssignmentIsNoop(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	exp := testEpoch.Add(time.Hour)
	var ids []string
	for _, p := range []string{"alice", "bob"} {
		a, err := env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: p, RoleID: env.role("Guest").ID, ExpirationDate: &exp})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	env.clock.Set(exp.Add(time.Minute))

	// Past its expiration but not yet lapsed.
	res, err := env.service.RevokeRole(env.ctx, ids[0], "too late")
	require.NoError(t, err)
	assert.False(t, res.AlreadyRevoked)
	assert.Equal(t, StateExpired, res.State)
	assert.True(t, res.Assignment.IsActive)
	assert.Nil(t, res.Assignment.RevokedAt)
	assert.Empty(t, res.Assignment.RevocationReason)

	stored, err := env.service.GetAssignment(env.ctx, ids[0])
	require.NoError(t, err)
	assert.Nil(t, stored.RevokedAt)
	assert.Equal(t, StateExpired, StateOf(stored, env.clock.Now()))

	n, err := env.service.LapseExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err = env.service.RevokeRole(env.ctx, ids[1], "too late")
	require.NoError(t, err)
	assert.False(t, res.AlreadyRevoked)
	assert.Equal(t, StateExpired, res.State)
	assert.NotNil(t, res.Assignment.LapsedAt)
	assert.Nil(t, res.Assignment.RevokedAt)
	assert.Empty(t, res.Assignment.RevokedBy)

	logs, err := env.service.GetAuditLog(env.ctx, NewAuditLogFilter().WithAction(AuditActionRevoked))
	require.NoError(t, err)
	assert.Empty(t, logs)
}

// A registrar grants a future-dated role, it takes effect on schedule, and
// revocation removes it immediately.
func TestAssignmentTimeline(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.clock.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	a, err := env.service.AssignRole(env.ctx, AssignRequest{
		PrincipalID:   "alice",
		RoleID:        env.role("Instructor").ID,
		EffectiveDate: &start,
	})
	require.NoError(t, err)

	roles, err := env.service.EffectiveRoles(env.ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, roles, "pending before the effective date")

	env.clock.Set(start)
	roles, err = env.service.EffectiveRoles(env.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Instructor", roles[0].Name)

	_, err = env.service.RevokeRole(env.ctx, a.ID, "contract ended")
	require.NoError(t, err)

	env.clock.Set(time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	roles, err = env.service.EffectiveRoles(env.ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestExpirationIsExclusive(t *testing.T) {
	env := newTestEnv(t, "alice")
	exp := testEpoch.Add(time.Hour)
	_, err := env.service.AssignRole(env.ctx, AssignRequest{
		PrincipalID:    "alice",
		RoleID:         env.role("Guest").ID,
		ExpirationDate: &exp,
	})
	require.NoError(t, err)

	env.clock.Set(exp.Add(-time.Nanosecond))
	roles, err := env.service.EffectiveRoles(env.ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, roles, 1)

	env.clock.Set(exp)
	roles, err = env.service.EffectiveRoles(env.ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestPrimaryAssignmentDemotion(t *testing.T) {
	env := newTestEnv(t, "alice")

	first, err := env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: env.role("Student").ID, IsPrimary: true})
	require.NoError(t, err)
	second, err := env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: env.role("Staff").ID, IsPrimary: true})
	require.NoError(t, err)

	old, err := env.service.GetAssignment(env.ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsPrimary)
	assert.True(t, old.IsActive)

	primary, ok, err := env.service.PrimaryRole(env.ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Staff", primary.Name)

	logs, err := env.service.GetAuditLog(env.ctx, NewAuditLogFilter().WithAction(AuditActionPrimaryDemoted))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, first.ID, logs[0].AssignmentID)
	assert.Equal(t, second.ID, logs[0].Metadata["replaced_by"])
}

func TestLapseExpired(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	exp := testEpoch.Add(time.Hour)
	for _, p := range []string{"alice", "bob"} {
		_, err := env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: p, RoleID: env.role("Guest").ID, ExpirationDate: &exp})
		require.NoError(t, err)
	}
	env.assign("alice", "Student")

	n, err := env.service.LapseExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	env.clock.Set(exp)
	n, err = env.service.LapseExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = env.service.LapseExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	logs, err := env.service.GetAuditLog(env.ctx, NewAuditLogFilter().WithAction(AuditActionLapsed))
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, SystemActor, logs[0].ActorID)
}

func TestListAssignmentsForRole(t *testing.T) {
	env := newTestEnv(t, "alice", "bob", "carol")
	env.assign("alice", "Advisor")
	env.assign("bob", "Advisor")
	revoked := env.assign("carol", "Advisor")
	_, err := env.service.RevokeRole(env.ctx, revoked.ID, "")
	require.NoError(t, err)
	env.dir.Set("bob", false)

	list, err := env.service.ListAssignmentsForRole(env.ctx, env.role("Advisor").ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].PrincipalID)

	list, err = env.service.ListAssignmentsForRole(env.ctx, env.role("Advisor").ID, true)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = env.service.ListAssignmentsForRole(env.ctx, "missing", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAssignmentsForPrincipalOrder(t *testing.T) {
	env := newTestEnv(t, "alice")
	later := testEpoch.Add(48 * time.Hour)
	sooner := testEpoch.Add(24 * time.Hour)
	_, err := env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: env.role("Staff").ID, EffectiveDate: &later})
	require.NoError(t, err)
	_, err = env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: env.role("Guest").ID, EffectiveDate: &sooner})
	require.NoError(t, err)
	env.assign("alice", "Student")

	list, err := env.service.ListAssignmentsForPrincipal(env.ctx, "alice", false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, env.role("Student").ID, list[0].RoleID)
	assert.Equal(t, env.role("Guest").ID, list[1].RoleID)
	assert.Equal(t, env.role("Staff").ID, list[2].RoleID)
}

func TestConcurrentAssignOneWinner(t *testing.T) {
	env := newTestEnv(t, "alice")
	roleID := env.role("Advisor").ID

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: roleID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case IsConflict(err):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
}

func TestAuditFailureAbortsMutation(t *testing.T) {
	env := newTestEnv(t, "alice")
	service := NewService(failingAuditStore{env.store}, env.dir, WithClock(env.clock))

	_, err := service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: env.role("Advisor").ID})
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	list, err := env.service.ListAssignmentsForPrincipal(env.ctx, "alice", true)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// failingAuditStore rejects every audit write.
type failingAuditStore struct {
	*MemoryStore
}

func (s failingAuditStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.MemoryStore.Atomic(ctx, func(ctx context.Context, tx Store) error {
		return fn(ctx, failingAuditTx{tx})
	})
}

type failingAuditTx struct {
	Store
}

func (failingAuditTx) InsertAudit(context.Context, *AuditLog) error {
	return assert.AnError
}
