package grantkit

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// AssignRequest describes a grant of a role to a principal.
type AssignRequest struct {
	PrincipalID string `json:"principal_id" validate:"required,max=128"`
	RoleID      string `json:"role_id" validate:"required"`

	// DepartmentContext narrows the grant to one department. Nil means global.
	DepartmentContext *string `json:"department_context,omitempty"`

	// EffectiveDate defaults to now.
	EffectiveDate  *time.Time `json:"effective_date,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`

	Reason    string         `json:"reason" validate:"max=500"`
	IsPrimary bool           `json:"is_primary"`
	Context   map[string]any `json:"context,omitempty"`
}

// RevokeResult reports the outcome of RevokeRole.
type RevokeResult struct {
	Assignment Assignment `json:"assignment"`

	// AlreadyRevoked is set when the assignment was revoked before the call.
	// The stored record is returned unchanged in that case.
	AlreadyRevoked bool `json:"already_revoked"`

	// State is the assignment state after the call.
	State AssignmentState `json:"state"`
}

const maxDepartmentLength = 50

func normalizeDepartment(dept *string) (*string, error) {
	if dept == nil {
		return nil, nil
	}
	d := strings.TrimSpace(*dept)
	if d == "" {
		return nil, nil
	}
	if len(d) > maxDepartmentLength {
		return nil, NewError(ErrInvalidRequest, "department context too long")
	}
	return &d, nil
}

// AssignRole creates an assignment. The actor recorded as AssignedBy is
// taken from ctx (see WithActorID).
//
// A principal may hold the same role globally and in any number of
// departments, but only once per (role, department) among live assignments.
// An older assignment that has expired but not been lapsed yet is lapsed
// here so it releases its slot. With IsPrimary set, any other live primary
// assignment of the principal is demoted in the same unit.
//
// Errors: ErrNoActorID, ErrInvalidRequest, ErrInvalidWindow, ErrNotFound,
// ErrPrincipalInactive, ErrRoleInactive, ErrInvalidScope,
// ErrDuplicateAssignment, ErrStorageUnavailable.
func (s *Service) AssignRole(ctx context.Context, req AssignRequest) (Assignment, error) {
	actorID := GetActorID(ctx)
	if actorID == "" {
		return Assignment{}, NewError(ErrNoActorID, "actor ID required for role assignment")
	}
	req.PrincipalID = strings.TrimSpace(req.PrincipalID)
	if err := s.validateStruct(req); err != nil {
		return Assignment{}, err
	}
	dept, err := normalizeDepartment(req.DepartmentContext)
	if err != nil {
		return Assignment{}, err
	}

	now := s.clock.Now()
	effective := now
	if req.EffectiveDate != nil {
		effective = req.EffectiveDate.UTC()
	}
	var expiration *time.Time
	if req.ExpirationDate != nil {
		exp := req.ExpirationDate.UTC()
		expiration = &exp
	}
	if err := ValidateWindow(effective, expiration); err != nil {
		return Assignment{}, err
	}

	active, err := s.principals.IsPrincipalActive(ctx, req.PrincipalID)
	if err != nil {
		return Assignment{}, storageError("IsPrincipalActive", err)
	}
	if !active {
		return Assignment{}, NewError(ErrPrincipalInactive, "cannot assign roles to an inactive principal").
			WithPrincipal(req.PrincipalID)
	}

	assignment := Assignment{
		ID:                s.newID(),
		PrincipalID:       req.PrincipalID,
		RoleID:            req.RoleID,
		DepartmentContext: dept,
		EffectiveDate:     effective,
		ExpirationDate:    expiration,
		IsActive:          true,
		IsPrimary:         req.IsPrimary,
		AssignmentReason:  req.Reason,
		AssignedBy:        actorID,
		AssignmentContext: req.Context,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		role, err := findRole(ctx, tx, req.RoleID)
		if err != nil {
			return err
		}
		if !role.IsActive {
			return NewError(ErrRoleInactive, "cannot assign an inactive role").WithRole(role.ID)
		}
		if role.DepartmentScope != "" && dept != nil && *dept != role.DepartmentScope {
			return NewError(ErrInvalidScope, "role is restricted to department "+role.DepartmentScope).
				WithRole(role.ID).
				WithPrincipal(req.PrincipalID)
		}

		held, err := tx.FindAssignments(ctx, AssignmentFilter{
			PrincipalIDs: []string{req.PrincipalID},
			ActiveOnly:   true,
		})
		if err != nil {
			return storageError("FindAssignments", err)
		}

		key := assignment.uniquenessKey()
		for i := range held {
			a := &held[i]
			if a.uniquenessKey() != key {
				continue
			}
			if IsLive(*a, now) {
				return NewError(ErrDuplicateAssignment, "principal already holds this role in this scope").
					WithPrincipal(req.PrincipalID).
					WithRole(req.RoleID).
					WithAssignment(a.ID)
			}
			if err := s.lapse(ctx, tx, a, now); err != nil {
				return err
			}
		}

		if assignment.IsPrimary {
			for i := range held {
				a := &held[i]
				if !a.IsPrimary || !IsLive(*a, now) {
					continue
				}
				a.IsPrimary = false
				a.UpdatedAt = now
				if err := tx.UpdateAssignment(ctx, a); err != nil {
					return storageError("UpdateAssignment", err)
				}
				if err := s.logAudit(ctx, tx, now, &AuditEntry{
					Action:       AuditActionPrimaryDemoted,
					PrincipalID:  a.PrincipalID,
					RoleID:       a.RoleID,
					AssignmentID: a.ID,
					Department:   a.Scope(),
					Metadata:     map[string]any{"replaced_by": assignment.ID},
				}); err != nil {
					return err
				}
			}
		}

		if err := tx.InsertAssignment(ctx, &assignment); err != nil {
			return storageError("InsertAssignment", err)
		}
		return s.logAudit(ctx, tx, now, &AuditEntry{
			Action:       AuditActionAssigned,
			PrincipalID:  assignment.PrincipalID,
			RoleID:       assignment.RoleID,
			AssignmentID: assignment.ID,
			Department:   assignment.Scope(),
			Reason:       assignment.AssignmentReason,
		})
	})
	if err != nil {
		s.logger.Warn("role assignment rejected",
			slog.String("principal_id", req.PrincipalID),
			slog.String("role_id", req.RoleID),
			slog.Any("error", err))
		return Assignment{}, err
	}

	s.logger.Info("role assigned",
		slog.String("assignment_id", assignment.ID),
		slog.String("principal_id", assignment.PrincipalID),
		slog.String("role_id", assignment.RoleID),
		slog.String("department", assignment.Scope()),
		slog.String("actor_id", actorID))
	return assignment, nil
}

// RevokeRole deactivates an assignment. It never deletes the record.
//
// Only live assignments are changed. Revoking an assignment that is already
// revoked succeeds with AlreadyRevoked set, so retries are safe. An expired
// assignment, lapsed or not, is returned unchanged with State expired and no
// audit row, so its history never claims a revocation that did not happen.
func (s *Service) RevokeRole(ctx context.Context, assignmentID, reason string) (RevokeResult, error) {
	actorID := GetActorID(ctx)
	if actorID == "" {
		return RevokeResult{}, NewError(ErrNoActorID, "actor ID required for role revocation")
	}

	now := s.clock.Now()
	var result RevokeResult

	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		a, err := findAssignment(ctx, tx, assignmentID)
		if err != nil {
			return err
		}
		if !IsLive(a, now) {
			state := StateOf(a, now)
			result = RevokeResult{Assignment: a, AlreadyRevoked: state == StateRevoked, State: state}
			return nil
		}

		a.IsActive = false
		a.RevokedAt = &now
		a.RevokedBy = actorID
		a.RevocationReason = reason
		a.UpdatedAt = now
		if err := tx.UpdateAssignment(ctx, &a); err != nil {
			return storageError("UpdateAssignment", err)
		}
		result = RevokeResult{Assignment: a, State: StateRevoked}
		return s.logAudit(ctx, tx, now, &AuditEntry{
			Action:       AuditActionRevoked,
			PrincipalID:  a.PrincipalID,
			RoleID:       a.RoleID,
			AssignmentID: a.ID,
			Department:   a.Scope(),
			Reason:       reason,
		})
	})
	if err != nil {
		return RevokeResult{}, err
	}

	if result.AlreadyRevoked || result.State == StateExpired {
		s.logger.Debug("revoke on non-live assignment",
			slog.String("assignment_id", assignmentID),
			slog.String("state", string(result.State)))
	} else {
		s.logger.Info("role revoked",
			slog.String("assignment_id", assignmentID),
			slog.String("principal_id", result.Assignment.PrincipalID),
			slog.String("actor_id", actorID))
	}
	return result, nil
}

// GetAssignment returns a single assignment.
func (s *Service) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	return findAssignment(ctx, s.store, id)
}

// ListAssignmentsForPrincipal returns the principal's assignments ordered by
// effective date. Without includeInactive only live assignments are returned:
// effective ones and pending ones.
func (s *Service) ListAssignmentsForPrincipal(ctx context.Context, principalID string, includeInactive bool) ([]Assignment, error) {
	now := s.clock.Now()
	all, err := s.store.FindAssignments(ctx, AssignmentFilter{
		PrincipalIDs: []string{principalID},
		ActiveOnly:   !includeInactive,
	})
	if err != nil {
		return nil, storageError("ListAssignmentsForPrincipal", err)
	}
	out := make([]Assignment, 0, len(all))
	for _, a := range all {
		if includeInactive || IsLive(a, now) {
			out = append(out, a)
		}
	}
	sortByEffectiveDate(out)
	return out, nil
}

// ListAssignmentsForRole returns the live assignments of a role. Assignments
// held by inactive or unknown principals are left out unless
// includeInactivePrincipals is set.
func (s *Service) ListAssignmentsForRole(ctx context.Context, roleID string, includeInactivePrincipals bool) ([]Assignment, error) {
	now := s.clock.Now()
	var all []Assignment
	err := s.ReadOnlyTransaction(ctx, func(ctx context.Context, tx Store) error {
		if _, err := findRole(ctx, tx, roleID); err != nil {
			return err
		}
		var err error
		all, err = tx.FindAssignments(ctx, AssignmentFilter{RoleID: roleID, ActiveOnly: true})
		return storageError("FindAssignments", err)
	})
	if err != nil {
		return nil, err
	}

	activeByPrincipal := make(map[string]bool)
	out := make([]Assignment, 0, len(all))
	for _, a := range all {
		if !IsLive(a, now) {
			continue
		}
		if !includeInactivePrincipals {
			active, seen := activeByPrincipal[a.PrincipalID]
			if !seen {
				active, err = s.principals.IsPrincipalActive(ctx, a.PrincipalID)
				if err != nil && !IsNotFound(err) {
					return nil, storageError("IsPrincipalActive", err)
				}
				activeByPrincipal[a.PrincipalID] = active
			}
			if !active {
				continue
			}
		}
		out = append(out, a)
	}
	sortByEffectiveDate(out)
	return out, nil
}

// LapseExpired marks every assignment whose expiration has passed but which
// is still flagged active. It returns the number of assignments lapsed.
func (s *Service) LapseExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	count := 0
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		count = 0
		expired, err := tx.FindAssignments(ctx, AssignmentFilter{ActiveOnly: true, ExpiresBefore: &now})
		if err != nil {
			return storageError("FindAssignments", err)
		}
		for i := range expired {
			if err := s.lapse(ctx, tx, &expired[i], now); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("expired assignments lapsed", slog.Int("count", count))
	}
	return count, nil
}

func (s *Service) lapse(ctx context.Context, tx Store, a *Assignment, now time.Time) error {
	a.IsActive = false
	a.LapsedAt = &now
	a.UpdatedAt = now
	if err := tx.UpdateAssignment(ctx, a); err != nil {
		return storageError("UpdateAssignment", err)
	}
	return s.logAudit(ctx, tx, now, &AuditEntry{
		Action:       AuditActionLapsed,
		PrincipalID:  a.PrincipalID,
		RoleID:       a.RoleID,
		AssignmentID: a.ID,
		Department:   a.Scope(),
	})
}

func findAssignment(ctx context.Context, tx Store, id string) (Assignment, error) {
	found, err := tx.FindAssignments(ctx, AssignmentFilter{ID: id})
	if err != nil {
		return Assignment{}, storageError("FindAssignments", err)
	}
	if len(found) == 0 {
		return Assignment{}, NewError(ErrNotFound, "assignment not found").WithAssignment(id)
	}
	return found[0], nil
}

func sortByEffectiveDate(list []Assignment) {
	slices.SortStableFunc(list, func(a, b Assignment) int {
		if c := a.EffectiveDate.Compare(b.EffectiveDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
