package grantkit

import (
	"context"
	"log/slog"
)

// ============================================================================
// AUTHORITY RESOLUTION
// ============================================================================

// snapshot builds one Checker per principal from a single clock read and a
// single read-only unit of the store.
func (s *Service) snapshot(ctx context.Context, principalIDs ...string) ([]*Checker, error) {
	now := s.clock.Now()

	active := make([]bool, len(principalIDs))
	for i, id := range principalIDs {
		ok, err := s.principals.IsPrincipalActive(ctx, id)
		if err != nil {
			return nil, storageError("IsPrincipalActive", err)
		}
		active[i] = ok
	}

	var (
		catalog     *Catalog
		assignments []Assignment
	)
	err := s.ReadOnlyTransaction(ctx, func(ctx context.Context, tx Store) error {
		roles, err := tx.FindRoles(ctx, RoleFilter{})
		if err != nil {
			return storageError("FindRoles", err)
		}
		catalog = NewCatalog(roles)
		assignments, err = tx.FindAssignments(ctx, AssignmentFilter{
			PrincipalIDs: principalIDs,
			ActiveOnly:   true,
		})
		return storageError("FindAssignments", err)
	})
	if err != nil {
		return nil, err
	}

	checkers := make([]*Checker, len(principalIDs))
	for i, id := range principalIDs {
		checkers[i] = NewChecker(id, active[i], assignments, catalog, now)
	}
	return checkers, nil
}

// GetChecker evaluates a principal's grants once and returns the resulting
// Checker. Use it when several questions must be answered consistently.
func (s *Service) GetChecker(ctx context.Context, principalID string) (*Checker, error) {
	checkers, err := s.snapshot(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return checkers[0], nil
}

// GetCheckerFromContext returns the Checker stored by middleware, or builds
// one for the principal in ctx.
func (s *Service) GetCheckerFromContext(ctx context.Context) (*Checker, error) {
	if c := GetChecker(ctx); c != nil {
		return c, nil
	}
	principalID := GetPrincipalID(ctx)
	if principalID == "" {
		return nil, ErrNoPrincipalID
	}
	return s.GetChecker(ctx, principalID)
}

// EffectiveRoles returns the distinct roles the principal currently holds,
// top of the hierarchy first.
func (s *Service) EffectiveRoles(ctx context.Context, principalID string) ([]Role, error) {
	c, err := s.GetChecker(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return c.EffectiveRoles(), nil
}

// EffectiveGrants returns one entry per effective assignment, keeping the
// department context of each.
func (s *Service) EffectiveGrants(ctx context.Context, principalID string) ([]Grant, error) {
	c, err := s.GetChecker(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return c.Grants(), nil
}

// PrimaryRole returns the role of the principal's effective primary
// assignment. The boolean is false when there is none.
func (s *Service) PrimaryRole(ctx context.Context, principalID string) (Role, bool, error) {
	c, err := s.GetChecker(ctx, principalID)
	if err != nil {
		return Role{}, false, err
	}
	role, ok := c.PrimaryRole()
	return role, ok, nil
}

// HighestAuthorityRole returns the principal's effective role with the most
// authority. The boolean is false when the principal holds no role.
func (s *Service) HighestAuthorityRole(ctx context.Context, principalID string) (Role, bool, error) {
	c, err := s.GetChecker(ctx, principalID)
	if err != nil {
		return Role{}, false, err
	}
	role, ok := c.HighestAuthorityRole()
	return role, ok, nil
}

// SubordinateRoles returns every catalog role positioned strictly below roleID.
func (s *Service) SubordinateRoles(ctx context.Context, roleID string) ([]Role, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	role, ok := catalog.Get(roleID)
	if !ok {
		return nil, NewError(ErrNotFound, "role not found").WithRole(roleID)
	}
	return catalog.Subordinates(role), nil
}

// ManageableRoles returns the active roles strictly below the principal's
// highest role. A principal without roles can manage nothing.
func (s *Service) ManageableRoles(ctx context.Context, principalID string) ([]Role, error) {
	c, err := s.GetChecker(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return c.ManageableRoles(), nil
}

// CheckCanManage reports whether manager sits strictly above subject in
// the hierarchy, evaluated over one snapshot of both principals.
func (s *Service) CheckCanManage(ctx context.Context, managerID, subjectID string) (bool, error) {
	if managerID == subjectID {
		return false, nil
	}
	checkers, err := s.snapshot(ctx, managerID, subjectID)
	if err != nil {
		return false, err
	}
	return checkers[0].CanManage(checkers[1]), nil
}

// CanManage is CheckCanManage that fails closed: any error means false.
func (s *Service) CanManage(ctx context.Context, managerID, subjectID string) bool {
	ok, err := s.CheckCanManage(ctx, managerID, subjectID)
	if err != nil {
		s.logger.Warn("authority check failed",
			slog.String("manager_id", managerID),
			slog.String("subject_id", subjectID),
			slog.Any("error", err))
		return false
	}
	return ok
}

// AuthorizeGrantChange decides whether actor may grant or revoke roleID for
// principalID. The actor's highest role must outrank the role, and must
// also outrank the principal whenever the principal already holds roles.
// Acting on oneself is never allowed.
func (s *Service) AuthorizeGrantChange(ctx context.Context, actorID, principalID, roleID string) error {
	if actorID == "" {
		return ErrNoActorID
	}
	if actorID == principalID {
		return NewError(ErrForbidden, "principals cannot change their own grants").WithActor(actorID)
	}
	checkers, err := s.snapshot(ctx, actorID, principalID)
	if err != nil {
		return err
	}
	actor, subject := checkers[0], checkers[1]

	role, ok := actor.catalog.Get(roleID)
	if !ok {
		return NewError(ErrNotFound, "role not found").WithRole(roleID)
	}
	if !actor.CanAssignRole(role) {
		return NewError(ErrForbidden, "role is not below the actor's authority").
			WithActor(actorID).
			WithRole(roleID)
	}
	if !subject.IsEmpty() && !actor.CanManage(subject) {
		return NewError(ErrForbidden, "principal is not below the actor's authority").
			WithActor(actorID).
			WithPrincipal(principalID)
	}
	return nil
}
