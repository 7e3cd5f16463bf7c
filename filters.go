package grantkit

import (
	"slices"
	"time"
)

// AuditLogFilter provides options for filtering audit log queries.
type AuditLogFilter struct {
	// Filter by actor who performed the action
	ActorID string

	// Filter by the principal whose grants changed
	PrincipalID string

	// Filter by role or assignment
	RoleID       string
	AssignmentID string

	// Filter by department context
	Department string

	// Filter by action type
	Action string

	// Filter by time range
	Since time.Time
	Until time.Time

	// Pagination
	Limit  int
	Offset int
}

// NewAuditLogFilter creates a new AuditLogFilter with default values.
func NewAuditLogFilter() AuditLogFilter {
	return AuditLogFilter{
		Limit: 100,
	}
}

// WithActor sets the actor ID filter.
func (f AuditLogFilter) WithActor(actorID string) AuditLogFilter {
	f.ActorID = actorID
	return f
}

// WithPrincipal sets the principal ID filter.
func (f AuditLogFilter) WithPrincipal(principalID string) AuditLogFilter {
	f.PrincipalID = principalID
	return f
}

// WithRole sets the role ID filter.
func (f AuditLogFilter) WithRole(roleID string) AuditLogFilter {
	f.RoleID = roleID
	return f
}

// WithAssignment sets the assignment ID filter.
func (f AuditLogFilter) WithAssignment(assignmentID string) AuditLogFilter {
	f.AssignmentID = assignmentID
	return f
}

// WithDepartment sets the department context filter.
func (f AuditLogFilter) WithDepartment(department string) AuditLogFilter {
	f.Department = department
	return f
}

// WithAction sets the action filter.
func (f AuditLogFilter) WithAction(action AuditAction) AuditLogFilter {
	f.Action = string(action)
	return f
}

// WithTimeRange sets the time range filter.
func (f AuditLogFilter) WithTimeRange(since, until time.Time) AuditLogFilter {
	f.Since = since
	f.Until = until
	return f
}

// WithSince sets the start time filter.
func (f AuditLogFilter) WithSince(since time.Time) AuditLogFilter {
	f.Since = since
	return f
}

// WithUntil sets the end time filter.
func (f AuditLogFilter) WithUntil(until time.Time) AuditLogFilter {
	f.Until = until
	return f
}

// WithPagination sets both limit and offset.
func (f AuditLogFilter) WithPagination(limit, offset int) AuditLogFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}

// matches reports whether row passes every set field of the filter.
// Pagination is applied by the caller.
func (f AuditLogFilter) matches(row AuditLog) bool {
	switch {
	case f.ActorID != "" && row.ActorID != f.ActorID:
		return false
	case f.PrincipalID != "" && row.PrincipalID != f.PrincipalID:
		return false
	case f.RoleID != "" && row.RoleID != f.RoleID:
		return false
	case f.AssignmentID != "" && row.AssignmentID != f.AssignmentID:
		return false
	case f.Department != "" && row.DepartmentContext != f.Department:
		return false
	case f.Action != "" && row.Action != f.Action:
		return false
	case !f.Since.IsZero() && row.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && row.Timestamp.After(f.Until):
		return false
	}
	return true
}

// RoleFilter selects roles from a Store. Zero fields match everything.
type RoleFilter struct {
	IDs            []string
	NormalizedName string
	RoleType       RoleType
	Priority       int
	ActiveOnly     bool
}

func (f RoleFilter) matches(r Role) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, r.ID) {
		return false
	}
	switch {
	case f.NormalizedName != "" && r.NormalizedName != f.NormalizedName:
		return false
	case f.RoleType != "" && r.RoleType != f.RoleType:
		return false
	case f.Priority != 0 && r.Priority != f.Priority:
		return false
	case f.ActiveOnly && !r.IsActive:
		return false
	}
	return true
}

// AssignmentFilter selects assignments from a Store. Zero fields match everything.
type AssignmentFilter struct {
	ID           string
	PrincipalIDs []string
	RoleID       string

	// ActiveOnly keeps records whose IsActive flag is still set, which
	// includes pending and expired-but-not-lapsed assignments.
	ActiveOnly bool

	// ExpiresBefore keeps records with an expiration at or before the instant.
	ExpiresBefore *time.Time
}

func (f AssignmentFilter) matches(a Assignment) bool {
	if len(f.PrincipalIDs) > 0 && !slices.Contains(f.PrincipalIDs, a.PrincipalID) {
		return false
	}
	switch {
	case f.ID != "" && a.ID != f.ID:
		return false
	case f.RoleID != "" && a.RoleID != f.RoleID:
		return false
	case f.ActiveOnly && !a.IsActive:
		return false
	case f.ExpiresBefore != nil && (a.ExpirationDate == nil || a.ExpirationDate.After(*f.ExpiresBefore)):
		return false
	}
	return true
}
