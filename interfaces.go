package grantkit

import (
	"context"
)

// RoleCatalogManager defines the role catalog interface.
type RoleCatalogManager interface {
	CreateRole(ctx context.Context, spec RoleSpec) (Role, error)
	UpdateRole(ctx context.Context, id string, update RoleUpdate) (Role, error)
	DeactivateRole(ctx context.Context, id string) (Role, error)
	ActivateRole(ctx context.Context, id string) (Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	Catalog(ctx context.Context) (*Catalog, error)
	ListRolesByHierarchy(ctx context.Context) ([]Role, error)
	ListRolesByType(ctx context.Context, t RoleType) ([]Role, error)
	ListRolesByPriority(ctx context.Context, p int) ([]Role, error)
	SearchRoles(ctx context.Context, term string, activeOnly bool) ([]Role, error)
	EnsureRoles(ctx context.Context, set *RoleSet) ([]Role, error)
}

// AssignmentManager defines the assignment lifecycle interface.
type AssignmentManager interface {
	AssignRole(ctx context.Context, req AssignRequest) (Assignment, error)
	RevokeRole(ctx context.Context, assignmentID, reason string) (RevokeResult, error)
	GetAssignment(ctx context.Context, id string) (Assignment, error)
	ListAssignmentsForPrincipal(ctx context.Context, principalID string, includeInactive bool) ([]Assignment, error)
	ListAssignmentsForRole(ctx context.Context, roleID string, includeInactivePrincipals bool) ([]Assignment, error)
	LapseExpired(ctx context.Context) (int, error)
}

// AuthorityResolver defines the authority query interface.
type AuthorityResolver interface {
	GetChecker(ctx context.Context, principalID string) (*Checker, error)
	EffectiveRoles(ctx context.Context, principalID string) ([]Role, error)
	EffectiveGrants(ctx context.Context, principalID string) ([]Grant, error)
	PrimaryRole(ctx context.Context, principalID string) (Role, bool, error)
	HighestAuthorityRole(ctx context.Context, principalID string) (Role, bool, error)
	SubordinateRoles(ctx context.Context, roleID string) ([]Role, error)
	ManageableRoles(ctx context.Context, principalID string) ([]Role, error)
	CanManage(ctx context.Context, managerID, subjectID string) bool
	CheckCanManage(ctx context.Context, managerID, subjectID string) (bool, error)
	EffectivePermissions(ctx context.Context, principalID string) ([]PermissionTag, error)
	HasPermission(ctx context.Context, principalID string, permission PermissionTag) bool
}

// DeletionGuard defines the role deletion interface.
type DeletionGuard interface {
	ValidateRoleDeletion(ctx context.Context, roleID string) (DeletionReport, error)
	DeleteRole(ctx context.Context, roleID string) error
}

// TransactionMonitor defines the transaction monitoring interface.
type TransactionMonitor interface {
	GetTransactionMetrics() TransactionMetrics
	ResetTransactionMetrics()
	IsTransactionHealthy() bool
}

var (
	_ RoleCatalogManager = (*Service)(nil)
	_ AssignmentManager  = (*Service)(nil)
	_ AuthorityResolver  = (*Service)(nil)
	_ DeletionGuard      = (*Service)(nil)
	_ TransactionMonitor = (*Service)(nil)

	_ Store              = (*MemoryStore)(nil)
	_ Store              = (*BunStore)(nil)
	_ HealthMonitor      = (*BunStore)(nil)
	_ PrincipalDirectory = (*MemoryDirectory)(nil)
	_ PrincipalDirectory = (*BunDirectory)(nil)
	_ Clock              = SystemClock{}
	_ Clock              = (*FixedClock)(nil)
)
