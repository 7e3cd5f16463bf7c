// Package grantkit provides time-bounded, hierarchy-aware role authorization
// for multi-department institutions.
//
// Principals (people or service accounts owned by an external identity
// system) receive roles through assignments. An assignment may be global or
// narrowed to one department, starts at an effective date, may expire, and
// can be revoked. Roles carry a priority: a lower number means more
// authority, so priority 1 sits at the top of the hierarchy.
//
// # Core Concepts
//
// Role: a named, prioritized bundle of permission tags with a category
// (administrative, faculty, staff, student, external). System roles cannot
// be deleted.
//
// Assignment: (principal, role, department?) plus an effective window. At
// most one live assignment exists per (principal, role) globally and per
// (principal, role, department). Assignments are never deleted; revocation
// and expiry only deactivate them.
//
// Effective: an assignment grants its role at an instant when it is active,
// the instant lies in [effectiveDate, expirationDate), and both the role and
// the principal are active.
//
// Checker: a snapshot of one principal's effective grants at one instant,
// answering every authority question consistently.
//
// # Basic Usage
//
//	// 1. Open storage and run migrations
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	store := grantkit.NewBunStore(db)
//	store.Migrate(ctx)
//
//	// 2. Create the service
//	service := grantkit.NewService(store, grantkit.NewBunDirectory(db))
//
//	// 3. Seed the catalog
//	service.EnsureRoles(ctx, grantkit.DefaultRoleSet())
//
//	// 4. Assign roles (the actor is recorded as AssignedBy)
//	ctx = grantkit.WithActorID(ctx, adminID)
//	cs := "CS"
//	service.AssignRole(ctx, grantkit.AssignRequest{
//	    PrincipalID:       "u-42",
//	    RoleID:            advisor.ID,
//	    DepartmentContext: &cs,
//	    ExpirationDate:    &endOfTerm,
//	})
//
//	// 5. Ask authority questions
//	roles, _ := service.EffectiveRoles(ctx, "u-42")
//	if service.CanManage(ctx, adminID, "u-42") {
//	    // admin sits above u-42
//	}
//	if service.HasPermission(ctx, "u-42", "transcripts.read") {
//	    // ...
//	}
//
// # Wildcard Permissions
//
//   - "*" matches all permissions
//   - "resource.*" matches all actions on a resource
//   - "*.action" matches an action on all resources
//
// # Audit Log
//
// Every catalog and assignment mutation writes an audit row inside the same
// atomic unit: actor, action, principal, role, assignment, department,
// reason, timestamp and request metadata (IP, user agent, request ID).
package grantkit
