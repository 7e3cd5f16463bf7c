package grantkit

import (
	"context"
	"log/slog"
)

// EffectivePermissions returns the union of the permissions of the
// principal's effective roles, deduplicated and sorted.
func (s *Service) EffectivePermissions(ctx context.Context, principalID string) ([]PermissionTag, error) {
	c, err := s.GetChecker(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return c.EffectivePermissions(), nil
}

// HasPermission checks if a principal currently holds permission, with
// wildcard matching. Any error is logged and answered with false.
//
// Example:
//
//	if service.HasPermission(ctx, principalID, "transcripts.read") {
//	    // show transcript
//	}
func (s *Service) HasPermission(ctx context.Context, principalID string, permission PermissionTag) bool {
	c, err := s.GetChecker(ctx, principalID)
	if err != nil {
		s.logger.Warn("permission check failed",
			slog.String("principal_id", principalID),
			slog.String("permission", string(permission)),
			slog.Any("error", err))
		return false
	}
	return c.HasPermission(permission)
}

// HasAnyPermission checks if a principal holds at least one of permissions.
func (s *Service) HasAnyPermission(ctx context.Context, principalID string, permissions ...PermissionTag) bool {
	c, err := s.GetChecker(ctx, principalID)
	if err != nil {
		return false
	}
	return c.HasAnyPermission(permissions...)
}

// HasRole checks if a principal currently holds roleID in any department.
func (s *Service) HasRole(ctx context.Context, principalID, roleID string) bool {
	c, err := s.GetChecker(ctx, principalID)
	if err != nil {
		return false
	}
	return c.HasRole(roleID)
}
