package grantkit

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store. Atomic units hold the store's write
// lock for their whole duration and commit a private copy of the state
// only when the unit succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

type memoryState struct {
	roles       map[string]Role
	assignments map[string]Assignment
	audit       []AuditLog
}

func newMemoryState() *memoryState {
	return &memoryState{
		roles:       make(map[string]Role),
		assignments: make(map[string]Assignment),
	}
}

func (st *memoryState) clone() *memoryState {
	return &memoryState{
		roles:       maps.Clone(st.roles),
		assignments: maps.Clone(st.assignments),
		// full slice expression forces appends on the copy to reallocate
		audit: st.audit[:len(st.audit):len(st.audit)],
	}
}

func (s *MemoryStore) read(ctx context.Context, fn func(tx *memoryTx) error) error {
	if err := ctx.Err(); err != nil {
		return storageError("memory read", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memoryTx{state: s.state, readOnly: true})
}

func (s *MemoryStore) write(ctx context.Context, fn func(tx *memoryTx) error) error {
	if err := ctx.Err(); err != nil {
		return storageError("memory write", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	if err := fn(&memoryTx{state: next}); err != nil {
		return err
	}
	s.state = next
	return nil
}

// FindRoles implements Store.
func (s *MemoryStore) FindRoles(ctx context.Context, filter RoleFilter) (roles []Role, err error) {
	err = s.read(ctx, func(tx *memoryTx) error {
		roles, err = tx.FindRoles(ctx, filter)
		return err
	})
	return roles, err
}

// InsertRole implements Store.
func (s *MemoryStore) InsertRole(ctx context.Context, role *Role) error {
	return s.write(ctx, func(tx *memoryTx) error { return tx.InsertRole(ctx, role) })
}

// UpdateRole implements Store.
func (s *MemoryStore) UpdateRole(ctx context.Context, role *Role) error {
	return s.write(ctx, func(tx *memoryTx) error { return tx.UpdateRole(ctx, role) })
}

// DeleteRole implements Store.
func (s *MemoryStore) DeleteRole(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *memoryTx) error { return tx.DeleteRole(ctx, id) })
}

// FindAssignments implements Store.
func (s *MemoryStore) FindAssignments(ctx context.Context, filter AssignmentFilter) (out []Assignment, err error) {
	err = s.read(ctx, func(tx *memoryTx) error {
		out, err = tx.FindAssignments(ctx, filter)
		return err
	})
	return out, err
}

// InsertAssignment implements Store.
func (s *MemoryStore) InsertAssignment(ctx context.Context, a *Assignment) error {
	return s.write(ctx, func(tx *memoryTx) error { return tx.InsertAssignment(ctx, a) })
}

// UpdateAssignment implements Store.
func (s *MemoryStore) UpdateAssignment(ctx context.Context, a *Assignment) error {
	return s.write(ctx, func(tx *memoryTx) error { return tx.UpdateAssignment(ctx, a) })
}

// InsertAudit implements Store.
func (s *MemoryStore) InsertAudit(ctx context.Context, entry *AuditLog) error {
	return s.write(ctx, func(tx *memoryTx) error { return tx.InsertAudit(ctx, entry) })
}

// FindAudit implements Store. Rows come back newest first.
func (s *MemoryStore) FindAudit(ctx context.Context, filter AuditLogFilter) (out []AuditLog, err error) {
	err = s.read(ctx, func(tx *memoryTx) error {
		out, err = tx.FindAudit(ctx, filter)
		return err
	})
	return out, err
}

// Atomic implements Store.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.write(ctx, func(tx *memoryTx) error { return fn(ctx, tx) })
}

// ReadOnly implements Store.
func (s *MemoryStore) ReadOnly(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.read(ctx, func(tx *memoryTx) error { return fn(ctx, tx) })
}

// memoryTx operates on a state the caller has already locked.
type memoryTx struct {
	state    *memoryState
	readOnly bool
}

func (tx *memoryTx) check(ctx context.Context, op string, write bool) error {
	if err := ctx.Err(); err != nil {
		return storageError(op, err)
	}
	if write && tx.readOnly {
		return NewError(ErrStorageUnavailable, op+": read-only transaction")
	}
	return nil
}

func (tx *memoryTx) FindRoles(ctx context.Context, filter RoleFilter) ([]Role, error) {
	if err := tx.check(ctx, "FindRoles", false); err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(tx.state.roles))
	for _, r := range tx.state.roles {
		if filter.matches(r) {
			r.AdditionalPermissions = slices.Clone(r.AdditionalPermissions)
			out = append(out, r)
		}
	}
	SortByHierarchy(out)
	return out, nil
}

func (tx *memoryTx) InsertRole(ctx context.Context, role *Role) error {
	if err := tx.check(ctx, "InsertRole", true); err != nil {
		return err
	}
	if _, ok := tx.state.roles[role.ID]; ok {
		return NewError(ErrDuplicateName, "role id already exists").WithRole(role.ID)
	}
	if err := tx.nameTaken(role); err != nil {
		return err
	}
	r := *role
	r.AdditionalPermissions = slices.Clone(role.AdditionalPermissions)
	tx.state.roles[r.ID] = r
	return nil
}

func (tx *memoryTx) nameTaken(role *Role) error {
	for _, existing := range tx.state.roles {
		if existing.ID != role.ID && existing.NormalizedName == role.NormalizedName {
			return NewError(ErrDuplicateName, role.Name).WithRole(existing.ID)
		}
	}
	return nil
}

func (tx *memoryTx) UpdateRole(ctx context.Context, role *Role) error {
	if err := tx.check(ctx, "UpdateRole", true); err != nil {
		return err
	}
	if _, ok := tx.state.roles[role.ID]; !ok {
		return NewError(ErrNotFound, "role not found").WithRole(role.ID)
	}
	if err := tx.nameTaken(role); err != nil {
		return err
	}
	r := *role
	r.AdditionalPermissions = slices.Clone(role.AdditionalPermissions)
	tx.state.roles[r.ID] = r
	return nil
}

func (tx *memoryTx) DeleteRole(ctx context.Context, id string) error {
	if err := tx.check(ctx, "DeleteRole", true); err != nil {
		return err
	}
	if _, ok := tx.state.roles[id]; !ok {
		return NewError(ErrNotFound, "role not found").WithRole(id)
	}
	delete(tx.state.roles, id)
	return nil
}

func (tx *memoryTx) FindAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error) {
	if err := tx.check(ctx, "FindAssignments", false); err != nil {
		return nil, err
	}
	out := make([]Assignment, 0)
	for _, a := range tx.state.assignments {
		if filter.matches(a) {
			out = append(out, detachAssignment(a))
		}
	}
	slices.SortFunc(out, func(a, b Assignment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// InsertAssignment enforces uniqueness among records that are still
// flagged active, the same rule the SQL partial indexes apply.
func (tx *memoryTx) InsertAssignment(ctx context.Context, a *Assignment) error {
	if err := tx.check(ctx, "InsertAssignment", true); err != nil {
		return err
	}
	if _, ok := tx.state.assignments[a.ID]; ok {
		return NewError(ErrDuplicateAssignment, "assignment id already exists").WithAssignment(a.ID)
	}
	if a.IsActive {
		key := a.uniquenessKey()
		for _, existing := range tx.state.assignments {
			if existing.IsActive && existing.uniquenessKey() == key {
				return NewError(ErrDuplicateAssignment, "principal already holds this role in this scope").
					WithPrincipal(a.PrincipalID).
					WithRole(a.RoleID).
					WithAssignment(existing.ID)
			}
		}
	}
	tx.state.assignments[a.ID] = detachAssignment(*a)
	return nil
}

func (tx *memoryTx) UpdateAssignment(ctx context.Context, a *Assignment) error {
	if err := tx.check(ctx, "UpdateAssignment", true); err != nil {
		return err
	}
	if _, ok := tx.state.assignments[a.ID]; !ok {
		return NewError(ErrNotFound, "assignment not found").WithAssignment(a.ID)
	}
	tx.state.assignments[a.ID] = detachAssignment(*a)
	return nil
}

func (tx *memoryTx) InsertAudit(ctx context.Context, entry *AuditLog) error {
	if err := tx.check(ctx, "InsertAudit", true); err != nil {
		return err
	}
	tx.state.audit = append(tx.state.audit, detachAudit(*entry))
	return nil
}

// FindAudit returns matching rows newest first.
func (tx *memoryTx) FindAudit(ctx context.Context, filter AuditLogFilter) ([]AuditLog, error) {
	if err := tx.check(ctx, "FindAudit", false); err != nil {
		return nil, err
	}
	out := make([]AuditLog, 0)
	for i := len(tx.state.audit) - 1; i >= 0; i-- {
		if filter.matches(tx.state.audit[i]) {
			out = append(out, detachAudit(tx.state.audit[i]))
		}
	}
	slices.SortStableFunc(out, func(a, b AuditLog) int { return b.Timestamp.Compare(a.Timestamp) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []AuditLog{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (tx *memoryTx) Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if tx.readOnly {
		return NewError(ErrStorageUnavailable, "Atomic: read-only transaction")
	}
	return fn(ctx, tx)
}

func (tx *memoryTx) ReadOnly(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, tx)
}

// detachAssignment copies the pointer and map fields of a so the stored
// record shares nothing with callers.
func detachAssignment(a Assignment) Assignment {
	a.DepartmentContext = clonePtr(a.DepartmentContext)
	a.ExpirationDate = clonePtr(a.ExpirationDate)
	a.RevokedAt = clonePtr(a.RevokedAt)
	a.LapsedAt = clonePtr(a.LapsedAt)
	a.AssignmentContext = maps.Clone(a.AssignmentContext)
	return a
}

func detachAudit(row AuditLog) AuditLog {
	row.Metadata = maps.Clone(row.Metadata)
	return row
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
