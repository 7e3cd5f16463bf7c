package grantkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DeletionReport lists every reason a role cannot be deleted.
type DeletionReport struct {
	RoleID          string   `json:"role_id"`
	CanDelete       bool     `json:"can_delete"`
	Issues          []string `json:"issues"`
	Reasons         []error  `json:"-"`
	LiveAssignments int      `json:"live_assignments"`
}

// Err joins every blocking reason, or returns nil when the role can be deleted.
func (r DeletionReport) Err() error {
	return errors.Join(r.Reasons...)
}

// EvaluateDeletion inspects role and the assignments referencing it at now.
// System roles and roles with live assignments (effective or pending) are
// blocked. Revoked and lapsed assignments do not block.
func EvaluateDeletion(role Role, assignments []Assignment, now time.Time) DeletionReport {
	report := DeletionReport{RoleID: role.ID, Issues: []string{}}

	if role.IsSystemRole {
		report.Issues = append(report.Issues, "system roles cannot be deleted")
		report.Reasons = append(report.Reasons,
			NewError(ErrProtectedRole, "system roles cannot be deleted").WithRole(role.ID))
	}

	for _, a := range assignments {
		if a.RoleID == role.ID && IsLive(a, now) {
			report.LiveAssignments++
		}
	}
	if report.LiveAssignments > 0 {
		msg := fmt.Sprintf("role has %d live assignment(s)", report.LiveAssignments)
		report.Issues = append(report.Issues, msg)
		report.Reasons = append(report.Reasons, NewError(ErrRoleInUse, msg).WithRole(role.ID))
	}

	report.CanDelete = len(report.Reasons) == 0
	return report
}

func (s *Service) evaluateDeletion(ctx context.Context, tx Store, roleID string, now time.Time) (Role, DeletionReport, error) {
	role, err := findRole(ctx, tx, roleID)
	if err != nil {
		return Role{}, DeletionReport{}, err
	}
	assignments, err := tx.FindAssignments(ctx, AssignmentFilter{RoleID: roleID, ActiveOnly: true})
	if err != nil {
		return Role{}, DeletionReport{}, storageError("FindAssignments", err)
	}
	return role, EvaluateDeletion(role, assignments, now), nil
}

// ValidateRoleDeletion reports whether roleID can be deleted right now and,
// if not, every reason why.
func (s *Service) ValidateRoleDeletion(ctx context.Context, roleID string) (DeletionReport, error) {
	now := s.clock.Now()
	var report DeletionReport
	err := s.ReadOnlyTransaction(ctx, func(ctx context.Context, tx Store) error {
		var err error
		_, report, err = s.evaluateDeletion(ctx, tx, roleID, now)
		return err
	})
	return report, err
}

// DeleteRole removes a role from the catalog. The checks of
// ValidateRoleDeletion are repeated inside the same atomic unit as the
// delete; when blocked, the returned error joins every reason.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	now := s.clock.Now()
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		role, report, err := s.evaluateDeletion(ctx, tx, roleID, now)
		if err != nil {
			return err
		}
		if !report.CanDelete {
			return report.Err()
		}
		if err := tx.DeleteRole(ctx, roleID); err != nil {
			return storageError("DeleteRole", err)
		}
		return s.logAudit(ctx, tx, now, &AuditEntry{
			Action:   AuditActionRoleDeleted,
			RoleID:   roleID,
			Metadata: map[string]any{"name": role.Name},
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("role deleted", slog.String("role_id", roleID))
	return nil
}
