package grantkit

import (
	"context"
	"sync"
)

// Store is the storage boundary for roles, assignments and the audit trail.
//
// Implementations report missing rows with ErrNotFound, uniqueness
// violations with ErrDuplicateName or ErrDuplicateAssignment, and every
// other failure, including context cancellation, with ErrStorageUnavailable.
type Store interface {
	FindRoles(ctx context.Context, filter RoleFilter) ([]Role, error)
	InsertRole(ctx context.Context, role *Role) error
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id string) error

	FindAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error)
	InsertAssignment(ctx context.Context, a *Assignment) error
	UpdateAssignment(ctx context.Context, a *Assignment) error

	InsertAudit(ctx context.Context, entry *AuditLog) error
	FindAudit(ctx context.Context, filter AuditLogFilter) ([]AuditLog, error)

	// Atomic runs fn against a transactional view of the store. Writes made
	// through tx are visible to later reads through tx and are discarded if
	// fn returns an error. Calling Atomic on tx joins the outer unit.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// ReadOnly runs fn against a consistent snapshot.
	ReadOnly(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// PrincipalDirectory answers whether a principal is currently active.
// Principals are owned by an external identity system.
type PrincipalDirectory interface {
	IsPrincipalActive(ctx context.Context, principalID string) (bool, error)
}

// MemoryDirectory is an in-process PrincipalDirectory.
type MemoryDirectory struct {
	mu         sync.RWMutex
	principals map[string]bool
}

// NewMemoryDirectory creates a directory with the given principals marked active.
func NewMemoryDirectory(active ...string) *MemoryDirectory {
	d := &MemoryDirectory{principals: make(map[string]bool, len(active))}
	for _, id := range active {
		d.principals[id] = true
	}
	return d
}

// Set registers a principal or changes its active flag.
func (d *MemoryDirectory) Set(principalID string, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.principals[principalID] = active
}

// IsPrincipalActive implements PrincipalDirectory.
func (d *MemoryDirectory) IsPrincipalActive(ctx context.Context, principalID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storageError("IsPrincipalActive", err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	active, ok := d.principals[principalID]
	if !ok {
		return false, NewError(ErrNotFound, "principal not found").WithPrincipal(principalID)
	}
	return active, nil
}
