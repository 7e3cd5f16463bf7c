package grantkit

import (
	"context"
	"time"
)

// RoleStatistics summarises the catalog and its assignments at one instant.
type RoleStatistics struct {
	TotalRoles             int              `json:"total_roles"`
	ActiveRoles            int              `json:"active_roles"`
	SystemRoles            int              `json:"system_roles"`
	PerTypeCounts          map[RoleType]int `json:"per_type_counts"`
	PerPriorityCounts      map[int]int      `json:"per_priority_counts"`
	RolesWithNoAssignments int              `json:"roles_with_no_assignments"`

	// RolesWithNoLiveAssignments also counts roles whose assignments have
	// all been revoked or have expired.
	RolesWithNoLiveAssignments int `json:"roles_with_no_live_assignments"`

	TotalAssignments   int                     `json:"total_assignments"`
	AssignmentsByState map[AssignmentState]int `json:"assignments_by_state"`
	GeneratedAt        time.Time               `json:"generated_at"`
}

// ComputeStatistics derives RoleStatistics from roles and every assignment
// record, revoked and lapsed ones included.
func ComputeStatistics(roles []Role, assignments []Assignment, now time.Time) RoleStatistics {
	stats := RoleStatistics{
		TotalRoles:         len(roles),
		PerTypeCounts:      make(map[RoleType]int),
		PerPriorityCounts:  make(map[int]int),
		TotalAssignments:   len(assignments),
		AssignmentsByState: make(map[AssignmentState]int),
		GeneratedAt:        now,
	}

	held := make(map[string]int)
	live := make(map[string]int)
	for _, a := range assignments {
		stats.AssignmentsByState[StateOf(a, now)]++
		held[a.RoleID]++
		if IsLive(a, now) {
			live[a.RoleID]++
		}
	}

	for _, r := range roles {
		if r.IsActive {
			stats.ActiveRoles++
		}
		if r.IsSystemRole {
			stats.SystemRoles++
		}
		stats.PerTypeCounts[r.RoleType]++
		stats.PerPriorityCounts[r.Priority]++
		if held[r.ID] == 0 {
			stats.RolesWithNoAssignments++
		}
		if live[r.ID] == 0 {
			stats.RolesWithNoLiveAssignments++
		}
	}
	return stats
}

// GetRoleStatistics computes RoleStatistics over one read-only snapshot.
func (s *Service) GetRoleStatistics(ctx context.Context) (RoleStatistics, error) {
	now := s.clock.Now()
	var (
		roles       []Role
		assignments []Assignment
	)
	err := s.ReadOnlyTransaction(ctx, func(ctx context.Context, tx Store) error {
		var err error
		if roles, err = tx.FindRoles(ctx, RoleFilter{}); err != nil {
			return storageError("FindRoles", err)
		}
		assignments, err = tx.FindAssignments(ctx, AssignmentFilter{})
		return storageError("FindAssignments", err)
	})
	if err != nil {
		return RoleStatistics{}, err
	}
	return ComputeStatistics(roles, assignments, now), nil
}
