package grantkit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// ============================================================================
// ROLE CATALOG
// ============================================================================

// CreateRole adds a new role to the catalog.
//
// Errors: ErrInvalidRequest, ErrInvalidPriority, ErrInvalidPermission,
// ErrDuplicateName, ErrStorageUnavailable.
func (s *Service) CreateRole(ctx context.Context, spec RoleSpec) (Role, error) {
	now := s.clock.Now()
	role, err := s.buildRole(spec, now)
	if err != nil {
		return Role{}, err
	}

	err = s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		return s.insertRole(ctx, tx, &role, now)
	})
	if err != nil {
		return Role{}, err
	}

	s.logger.Info("role created",
		slog.String("role_id", role.ID),
		slog.String("name", role.Name),
		slog.Int("priority", role.Priority))
	return role, nil
}

func (s *Service) buildRole(spec RoleSpec, now time.Time) (Role, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.DepartmentScope = strings.TrimSpace(spec.DepartmentScope)
	if err := s.validateStruct(spec); err != nil {
		return Role{}, err
	}
	perms, err := normalizePermissions(s.vocabulary, spec.AdditionalPermissions)
	if err != nil {
		return Role{}, err
	}
	return Role{
		ID:                    s.newID(),
		Name:                  spec.Name,
		NormalizedName:        NormalizeName(spec.Name),
		Description:           spec.Description,
		RoleType:              spec.RoleType,
		Priority:              spec.Priority,
		IsActive:              true,
		IsSystemRole:          spec.IsSystemRole,
		DepartmentScope:       spec.DepartmentScope,
		AdditionalPermissions: perms,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

func (s *Service) insertRole(ctx context.Context, tx Store, role *Role, now time.Time) error {
	existing, err := tx.FindRoles(ctx, RoleFilter{NormalizedName: role.NormalizedName})
	if err != nil {
		return storageError("FindRoles", err)
	}
	if len(existing) > 0 {
		return NewError(ErrDuplicateName, role.Name).WithRole(existing[0].ID)
	}
	if err := tx.InsertRole(ctx, role); err != nil {
		return storageError("InsertRole", err)
	}
	return s.logAudit(ctx, tx, now, &AuditEntry{
		Action: AuditActionRoleCreated,
		RoleID: role.ID,
		Metadata: map[string]any{
			"name":     role.Name,
			"priority": role.Priority,
		},
	})
}

// UpdateRole applies the non-nil fields of update to a role.
//
// System roles cannot be renamed or deactivated (ErrProtectedRole).
func (s *Service) UpdateRole(ctx context.Context, id string, update RoleUpdate) (Role, error) {
	now := s.clock.Now()
	var updated Role

	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		role, err := findRole(ctx, tx, id)
		if err != nil {
			return err
		}

		spec := RoleSpec{
			Name:                  role.Name,
			Description:           role.Description,
			RoleType:              role.RoleType,
			Priority:              role.Priority,
			IsSystemRole:          role.IsSystemRole,
			DepartmentScope:       role.DepartmentScope,
			AdditionalPermissions: role.AdditionalPermissions,
		}
		changed := map[string]any{}
		if update.Name != nil {
			name := strings.TrimSpace(*update.Name)
			if role.IsSystemRole && NormalizeName(name) != role.NormalizedName {
				return NewError(ErrProtectedRole, "system roles cannot be renamed").WithRole(id)
			}
			spec.Name = name
			changed["name"] = name
		}
		if update.Description != nil {
			spec.Description = *update.Description
			changed["description"] = *update.Description
		}
		if update.RoleType != nil {
			spec.RoleType = *update.RoleType
			changed["role_type"] = string(*update.RoleType)
		}
		if update.Priority != nil {
			spec.Priority = *update.Priority
			changed["priority"] = *update.Priority
		}
		if update.DepartmentScope != nil {
			spec.DepartmentScope = strings.TrimSpace(*update.DepartmentScope)
			changed["department_scope"] = spec.DepartmentScope
		}
		if update.AdditionalPermissions != nil {
			spec.AdditionalPermissions = *update.AdditionalPermissions
			changed["additional_permissions"] = len(*update.AdditionalPermissions)
		}
		if update.IsActive != nil {
			if role.IsSystemRole && !*update.IsActive {
				return NewError(ErrProtectedRole, "system roles cannot be deactivated").WithRole(id)
			}
			changed["is_active"] = *update.IsActive
		}

		if err := s.validateStruct(spec); err != nil {
			return err
		}
		perms, err := normalizePermissions(s.vocabulary, spec.AdditionalPermissions)
		if err != nil {
			return err
		}

		role.Name = spec.Name
		role.NormalizedName = NormalizeName(spec.Name)
		role.Description = spec.Description
		role.RoleType = spec.RoleType
		role.Priority = spec.Priority
		role.DepartmentScope = spec.DepartmentScope
		role.AdditionalPermissions = perms
		if update.IsActive != nil {
			role.IsActive = *update.IsActive
		}
		role.UpdatedAt = now

		if update.Name != nil {
			clash, err := tx.FindRoles(ctx, RoleFilter{NormalizedName: role.NormalizedName})
			if err != nil {
				return storageError("FindRoles", err)
			}
			for _, other := range clash {
				if other.ID != role.ID {
					return NewError(ErrDuplicateName, role.Name).WithRole(other.ID)
				}
			}
		}
		if err := tx.UpdateRole(ctx, &role); err != nil {
			return storageError("UpdateRole", err)
		}
		updated = role
		return s.logAudit(ctx, tx, now, &AuditEntry{
			Action:   AuditActionRoleUpdated,
			RoleID:   role.ID,
			Metadata: changed,
		})
	})
	if err != nil {
		return Role{}, err
	}

	s.logger.Info("role updated", slog.String("role_id", id))
	return updated, nil
}

// DeactivateRole stops a role from granting anything without touching its assignments.
func (s *Service) DeactivateRole(ctx context.Context, id string) (Role, error) {
	active := false
	return s.UpdateRole(ctx, id, RoleUpdate{IsActive: &active})
}

// ActivateRole re-enables a deactivated role.
func (s *Service) ActivateRole(ctx context.Context, id string) (Role, error) {
	active := true
	return s.UpdateRole(ctx, id, RoleUpdate{IsActive: &active})
}

// GetRole returns a single role.
func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	return findRole(ctx, s.store, id)
}

// Catalog loads every role into an immutable Catalog value.
func (s *Service) Catalog(ctx context.Context) (*Catalog, error) {
	roles, err := s.store.FindRoles(ctx, RoleFilter{})
	if err != nil {
		return nil, storageError("Catalog", err)
	}
	return NewCatalog(roles), nil
}

// ListRolesByHierarchy returns every role, top of the hierarchy first.
func (s *Service) ListRolesByHierarchy(ctx context.Context) ([]Role, error) {
	c, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return c.Hierarchy(), nil
}

// ListRolesByType returns the roles of one category in hierarchy order.
func (s *Service) ListRolesByType(ctx context.Context, t RoleType) ([]Role, error) {
	if !t.Valid() {
		return nil, NewError(ErrInvalidRequest, "unknown role type: "+string(t))
	}
	c, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return c.ByType(t), nil
}

// ListRolesByPriority returns the roles at exactly priority p.
func (s *Service) ListRolesByPriority(ctx context.Context, p int) ([]Role, error) {
	if p < MinPriority || p > MaxPriority {
		return nil, NewError(ErrInvalidPriority, "priority out of range")
	}
	c, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return c.ByPriority(p), nil
}

// SearchRoles matches term case-insensitively against role names and descriptions.
func (s *Service) SearchRoles(ctx context.Context, term string, activeOnly bool) ([]Role, error) {
	c, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return c.Search(term, activeOnly), nil
}

// EnsureRoles creates every role in set that does not already exist by
// normalized name, in one atomic unit. Existing roles are left as they are.
// It returns the catalog roles matching set, in declaration order.
func (s *Service) EnsureRoles(ctx context.Context, set *RoleSet) ([]Role, error) {
	now := s.clock.Now()
	specs := set.Specs()
	out := make([]Role, 0, len(specs))
	created := 0

	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		out = out[:0]
		created = 0
		for _, spec := range specs {
			existing, err := tx.FindRoles(ctx, RoleFilter{NormalizedName: NormalizeName(spec.Name)})
			if err != nil {
				return storageError("FindRoles", err)
			}
			if len(existing) > 0 {
				out = append(out, existing[0])
				continue
			}
			role, err := s.buildRole(spec, now)
			if err != nil {
				return err
			}
			if err := s.insertRole(ctx, tx, &role, now); err != nil {
				return err
			}
			out = append(out, role)
			created++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("role set ensured", slog.Int("defined", len(specs)), slog.Int("created", created))
	return out, nil
}

func findRole(ctx context.Context, tx Store, id string) (Role, error) {
	roles, err := tx.FindRoles(ctx, RoleFilter{IDs: []string{id}})
	if err != nil {
		return Role{}, storageError("FindRoles", err)
	}
	if len(roles) == 0 {
		return Role{}, NewError(ErrNotFound, "role not found").WithRole(id)
	}
	return roles[0], nil
}
