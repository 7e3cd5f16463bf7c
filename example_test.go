package grantkit_test

import (
	"context"
	"fmt"
	"time"

	"github.com/fernandezvara/grantkit"
)

func Example() {
	clock := grantkit.NewFixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	service := grantkit.NewService(
		grantkit.NewMemoryStore(),
		grantkit.NewMemoryDirectory("registrar", "u-42"),
		grantkit.WithClock(clock),
	)

	ctx := grantkit.WithActorID(context.Background(), "registrar")
	roles, _ := service.EnsureRoles(ctx, grantkit.DefaultRoleSet())
	byName := make(map[string]grantkit.Role)
	for _, r := range roles {
		byName[r.Name] = r
	}

	service.AssignRole(ctx, grantkit.AssignRequest{PrincipalID: "registrar", RoleID: byName["Registrar"].ID})

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	a, _ := service.AssignRole(ctx, grantkit.AssignRequest{
		PrincipalID:   "u-42",
		RoleID:        byName["Instructor"].ID,
		EffectiveDate: &start,
	})

	effective, _ := service.EffectiveRoles(ctx, "u-42")
	fmt.Println("before start:", len(effective))

	clock.Set(start)
	effective, _ = service.EffectiveRoles(ctx, "u-42")
	fmt.Println("on start:", effective[0].Name)
	fmt.Println("registrar manages u-42:", service.CanManage(ctx, "registrar", "u-42"))

	service.RevokeRole(ctx, a.ID, "contract ended")
	effective, _ = service.EffectiveRoles(ctx, "u-42")
	fmt.Println("after revoke:", len(effective))

	// Output:
	// before start: 0
	// on start: Instructor
	// registrar manages u-42: true
	// after revoke: 0
}

func ExampleService_ValidateRoleDeletion() {
	service := grantkit.NewService(grantkit.NewMemoryStore(), grantkit.NewMemoryDirectory("u-1"))
	ctx := grantkit.WithActorID(context.Background(), "admin")
	roles, _ := service.EnsureRoles(ctx, grantkit.DefaultRoleSet())
	admin := roles[0]

	service.AssignRole(ctx, grantkit.AssignRequest{PrincipalID: "u-1", RoleID: admin.ID})

	report, _ := service.ValidateRoleDeletion(ctx, admin.ID)
	fmt.Println(report.CanDelete)
	for _, issue := range report.Issues {
		fmt.Println(issue)
	}

	// Output:
	// false
	// system roles cannot be deleted
	// role has 1 live assignment(s)
}

func ExamplePermissionMatcher_Match() {
	m := grantkit.NewPermissionMatcher()
	fmt.Println(m.Match("*", "records.read"))
	fmt.Println(m.Match("records.*", "records.read"))
	fmt.Println(m.Match("*.read", "transcripts.read"))
	fmt.Println(m.Match("records.read", "records.write"))

	// Output:
	// true
	// true
	// true
	// false
}

func ExampleRoleSet() {
	set := grantkit.NewRoleSet()
	set.Role("Lab Manager").
		Describe("Runs the chemistry labs").
		Type(grantkit.RoleTypeStaff).
		Priority(4).
		Department("CHEM").
		Permissions("labs.*")

	spec := set.Get("lab manager").Spec()
	fmt.Println(spec.Name, spec.Priority, spec.DepartmentScope, spec.AdditionalPermissions)

	// Output:
	// Lab Manager 4 CHEM [labs.*]
}
