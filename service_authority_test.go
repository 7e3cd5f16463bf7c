package grantkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roleNames(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.Name
	}
	return out
}

func TestEffectiveRolesAcrossDepartments(t *testing.T) {
	env := newTestEnv(t, "bob")
	env.assignIn("bob", "Department Head", "MATH")
	env.assignIn("bob", "Department Head", "CS")

	roles, err := env.service.EffectiveRoles(env.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"Department Head"}, roleNames(roles))

	grants, err := env.service.EffectiveGrants(env.ctx, "bob")
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "CS", grants[0].Department())
	assert.Equal(t, "MATH", grants[1].Department())

	c, err := env.service.GetChecker(env.ctx, "bob")
	require.NoError(t, err)
	assert.True(t, c.HasRoleInDepartment(env.role("Department Head").ID, "CS"))
	assert.False(t, c.HasRoleInDepartment(env.role("Department Head").ID, "PHYS"))
}

func TestEffectiveRolesOrderAndFiltering(t *testing.T) {
	env := newTestEnv(t, "alice", "carol")
	env.assign("alice", "Student")
	env.assign("alice", "Advisor")
	env.assign("alice", "Instructor")

	roles, err := env.service.EffectiveRoles(env.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Advisor", "Instructor", "Student"}, roleNames(roles))

	_, err = env.service.DeactivateRole(env.ctx, env.role("Advisor").ID)
	require.NoError(t, err)
	roles, err = env.service.EffectiveRoles(env.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Instructor", "Student"}, roleNames(roles))

	env.dir.Set("alice", false)
	roles, err = env.service.EffectiveRoles(env.ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, roles)

	roles, err = env.service.EffectiveRoles(env.ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, roles)

	_, err = env.service.EffectiveRoles(env.ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrimaryAndHighestRole(t *testing.T) {
	env := newTestEnv(t, "alice")

	_, ok, err := env.service.PrimaryRole(env.ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = env.service.HighestAuthorityRole(env.ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.service.AssignRole(env.ctx, AssignRequest{PrincipalID: "alice", RoleID: env.role("Student").ID, IsPrimary: true})
	require.NoError(t, err)
	env.assign("alice", "Instructor")

	primary, ok, err := env.service.PrimaryRole(env.ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Student", primary.Name)

	top, ok, err := env.service.HighestAuthorityRole(env.ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Instructor", top.Name)
}

func TestCanManage(t *testing.T) {
	env := newTestEnv(t, "admin", "registrar", "dean", "head", "alice", "nobody")
	env.assign("admin", "System Administrator")
	env.assign("registrar", "Registrar")
	env.assign("dean", "Dean")
	env.assignIn("head", "Department Head", "CS")
	env.assign("alice", "Student")

	tests := []struct {
		manager, subject string
		want             bool
	}{
		{"admin", "registrar", true},
		{"admin", "alice", true},
		{"registrar", "head", true},
		{"head", "alice", true},
		{"registrar", "admin", false},
		{"alice", "head", false},
		{"registrar", "dean", false},
		{"dean", "registrar", false},
		{"admin", "admin", false},
		{"nobody", "alice", false},
		{"admin", "nobody", false},
		{"admin", "ghost", false},
	}
	for _, tt := range tests {
		t.Run(tt.manager+"->"+tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, env.service.CanManage(env.ctx, tt.manager, tt.subject))
		})
	}

	_, err := env.service.CheckCanManage(env.ctx, "admin", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCanManageFailsClosed(t *testing.T) {
	env := newTestEnv(t, "admin", "alice")
	env.assign("admin", "System Administrator")
	env.assign("alice", "Student")

	ctx, cancel := context.WithCancel(env.ctx)
	cancel()

	assert.False(t, env.service.CanManage(ctx, "admin", "alice"))
	_, err := env.service.CheckCanManage(ctx, "admin", "alice")
	assert.True(t, IsStorageUnavailable(err))
}

func TestCanManageTracksTime(t *testing.T) {
	env := newTestEnv(t, "head", "alice")
	env.assign("alice", "Student")
	exp := testEpoch.Add(time.Hour)
	_, err := env.service.AssignRole(env.ctx, AssignRequest{
		PrincipalID:    "head",
		RoleID:         env.role("Department Head").ID,
		ExpirationDate: &exp,
	})
	require.NoError(t, err)

	assert.True(t, env.service.CanManage(env.ctx, "head", "alice"))
	env.clock.Set(exp)
	assert.False(t, env.service.CanManage(env.ctx, "head", "alice"))
}

func TestManageableAndSubordinateRoles(t *testing.T) {
	env := newTestEnv(t, "head", "alice")
	env.assign("head", "Department Head")

	roles, err := env.service.ManageableRoles(env.ctx, "head")
	require.NoError(t, err)
	assert.Equal(t, []string{"Advisor", "Instructor", "Staff", "Student", "Guest"}, roleNames(roles))

	_, err = env.service.DeactivateRole(env.ctx, env.role("Guest").ID)
	require.NoError(t, err)
	roles, err = env.service.ManageableRoles(env.ctx, "head")
	require.NoError(t, err)
	assert.NotContains(t, roleNames(roles), "Guest")

	roles, err = env.service.ManageableRoles(env.ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, roles)

	subs, err := env.service.SubordinateRoles(env.ctx, env.role("Dean").ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Department Head", "Advisor", "Instructor", "Staff", "Student", "Guest"}, roleNames(subs))
	assert.NotContains(t, roleNames(subs), "Registrar", "peers are not subordinates")

	subs, err = env.service.SubordinateRoles(env.ctx, env.role("Guest").ID)
	require.NoError(t, err)
	assert.Empty(t, subs)

	_, err = env.service.SubordinateRoles(env.ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthorizeGrantChange(t *testing.T) {
	env := newTestEnv(t, "admin", "registrar", "alice", "carol")
	env.assign("admin", "System Administrator")
	env.assign("registrar", "Registrar")
	env.assign("alice", "Student")

	tests := []struct {
		name             string
		actor, principal string
		role             string
		want             error
	}{
		{"below actor, new principal", "registrar", "carol", "Advisor", nil},
		{"below actor, subordinate principal", "registrar", "alice", "Staff", nil},
		{"peer role", "registrar", "carol", "Dean", ErrForbidden},
		{"higher role", "registrar", "carol", "System Administrator", ErrForbidden},
		{"principal above actor", "registrar", "admin", "Guest", ErrForbidden},
		{"self", "registrar", "registrar", "Guest", ErrForbidden},
		{"actor without roles", "carol", "alice", "Guest", ErrForbidden},
		{"no actor", "", "alice", "Guest", ErrNoActorID},
		{"admin grants anything below", "admin", "registrar", "Dean", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.service.AuthorizeGrantChange(env.ctx, tt.actor, tt.principal, env.role(tt.role).ID)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	err := env.service.AuthorizeGrantChange(env.ctx, "admin", "alice", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	err = env.service.AuthorizeGrantChange(env.ctx, "admin", "ghost", env.role("Guest").ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServicePermissions(t *testing.T) {
	env := newTestEnv(t, "admin", "registrar", "alice")
	env.assign("admin", "System Administrator")
	env.assign("registrar", "Registrar")
	student := env.assign("alice", "Student")

	assert.True(t, env.service.HasPermission(env.ctx, "admin", "anything.at_all"))
	assert.True(t, env.service.HasPermission(env.ctx, "registrar", "records.write"))
	assert.False(t, env.service.HasPermission(env.ctx, "registrar", "grades.write"))
	assert.True(t, env.service.HasPermission(env.ctx, "alice", "transcripts.read"))
	assert.False(t, env.service.HasPermission(env.ctx, "ghost", "courses.read"))

	assert.True(t, env.service.HasAnyPermission(env.ctx, "alice", "grades.write", "courses.read"))
	assert.False(t, env.service.HasAnyPermission(env.ctx, "alice", "grades.write", "records.read"))

	assert.True(t, env.service.HasRole(env.ctx, "alice", env.role("Student").ID))
	assert.False(t, env.service.HasRole(env.ctx, "alice", env.role("Staff").ID))

	perms, err := env.service.EffectivePermissions(env.ctx, "registrar")
	require.NoError(t, err)
	assert.Equal(t, []PermissionTag{"enrollment.*", "records.*", "roles.assign", "roles.view"}, perms)

	_, err = env.service.RevokeRole(env.ctx, student.ID, "graduated")
	require.NoError(t, err)
	assert.False(t, env.service.HasPermission(env.ctx, "alice", "transcripts.read"))
	assert.False(t, env.service.HasRole(env.ctx, "alice", env.role("Student").ID))
}

func TestGetCheckerFromContext(t *testing.T) {
	env := newTestEnv(t, "alice")
	env.assign("alice", "Student")

	_, err := env.service.GetCheckerFromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoPrincipalID)

	c, err := env.service.GetCheckerFromContext(WithPrincipalID(context.Background(), "alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice", c.PrincipalID())
	assert.Equal(t, testEpoch, c.Now())

	stored := NewChecker("stored", true, nil, NewCatalog(nil), testEpoch)
	got, err := env.service.GetCheckerFromContext(WithChecker(context.Background(), stored))
	require.NoError(t, err)
	assert.Same(t, stored, got)
}
