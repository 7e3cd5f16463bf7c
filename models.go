package grantkit

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Priority bounds. Lower numbers carry more authority.
const (
	MinPriority = 1
	MaxPriority = 10
)

// RoleType is the closed category tag of a role.
type RoleType string

const (
	RoleTypeAdministrative RoleType = "administrative"
	RoleTypeFaculty        RoleType = "faculty"
	RoleTypeStaff          RoleType = "staff"
	RoleTypeStudent        RoleType = "student"
	RoleTypeExternal       RoleType = "external"
)

// RoleTypes lists every valid RoleType in display order.
var RoleTypes = []RoleType{
	RoleTypeAdministrative,
	RoleTypeFaculty,
	RoleTypeStaff,
	RoleTypeStudent,
	RoleTypeExternal,
}

// Valid reports whether t is one of RoleTypes.
func (t RoleType) Valid() bool {
	for _, rt := range RoleTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// Role is a named, prioritized capability bundle.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID                    string          `bun:"id,pk,type:uuid" json:"id"`
	Name                  string          `bun:"name,notnull" json:"name"`
	NormalizedName        string          `bun:"normalized_name,notnull,unique" json:"normalized_name"`
	Description           string          `bun:"description" json:"description"`
	RoleType              RoleType        `bun:"role_type,notnull" json:"role_type"`
	Priority              int             `bun:"priority,notnull" json:"priority"`
	IsActive              bool            `bun:"is_active,notnull" json:"is_active"`
	IsSystemRole          bool            `bun:"is_system_role,notnull" json:"is_system_role"`
	DepartmentScope       string          `bun:"department_scope,nullzero" json:"department_scope,omitempty"`
	AdditionalPermissions []PermissionTag `bun:"additional_permissions,type:text[],array" json:"additional_permissions"`
	CreatedAt             time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt             time.Time       `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// NormalizeName returns the case-insensitive lookup key for a role name.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Assignment binds a principal to a role, optionally within a department,
// for a bounded window of time.
type Assignment struct {
	bun.BaseModel `bun:"table:role_assignments,alias:ra"`

	ID                string         `bun:"id,pk,type:uuid" json:"id"`
	PrincipalID       string         `bun:"principal_id,notnull" json:"principal_id"`
	RoleID            string         `bun:"role_id,notnull,type:uuid" json:"role_id"`
	DepartmentContext *string        `bun:"department_context" json:"department_context,omitempty"`
	EffectiveDate     time.Time      `bun:"effective_date,notnull" json:"effective_date"`
	ExpirationDate    *time.Time     `bun:"expiration_date" json:"expiration_date,omitempty"`
	IsActive          bool           `bun:"is_active,notnull" json:"is_active"`
	IsPrimary         bool           `bun:"is_primary,notnull" json:"is_primary"`
	AssignmentReason  string         `bun:"assignment_reason,nullzero" json:"assignment_reason,omitempty"`
	AssignedBy        string         `bun:"assigned_by,notnull" json:"assigned_by"`
	AssignmentContext map[string]any `bun:"assignment_context,type:jsonb" json:"assignment_context,omitempty"`

	RevokedAt        *time.Time `bun:"revoked_at" json:"revoked_at,omitempty"`
	RevokedBy        string     `bun:"revoked_by,nullzero" json:"revoked_by,omitempty"`
	RevocationReason string     `bun:"revocation_reason,nullzero" json:"revocation_reason,omitempty"`
	LapsedAt         *time.Time `bun:"lapsed_at" json:"lapsed_at,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// Scope returns the department context, or "" for a global assignment.
func (a Assignment) Scope() string {
	if a.DepartmentContext == nil {
		return ""
	}
	return *a.DepartmentContext
}

// uniquenessKey identifies the uniqueness space an assignment lives in.
// Global and scoped grants never collide with each other.
func (a Assignment) uniquenessKey() string {
	if a.DepartmentContext == nil {
		return a.PrincipalID + "|" + a.RoleID + "|global"
	}
	return a.PrincipalID + "|" + a.RoleID + "|dept:" + *a.DepartmentContext
}

// AuditLog records every mutation of the catalog and of assignments.
type AuditLog struct {
	bun.BaseModel `bun:"table:grant_audit_log,alias:gal"`

	ID        string    `bun:"id,pk,type:uuid" json:"id"`
	Timestamp time.Time `bun:"timestamp,notnull" json:"timestamp"`

	ActorID string `bun:"actor_id,notnull" json:"actor_id"`
	Action  string `bun:"action,notnull" json:"action"`

	PrincipalID       string `bun:"principal_id,nullzero" json:"principal_id,omitempty"`
	RoleID            string `bun:"role_id,nullzero" json:"role_id,omitempty"`
	AssignmentID      string `bun:"assignment_id,nullzero" json:"assignment_id,omitempty"`
	DepartmentContext string `bun:"department_context,nullzero" json:"department_context,omitempty"`
	Reason            string `bun:"reason,nullzero" json:"reason,omitempty"`

	// Request metadata for forensics
	IPAddress string `bun:"ip_address,nullzero" json:"ip_address,omitempty"`
	UserAgent string `bun:"user_agent,nullzero" json:"user_agent,omitempty"`
	RequestID string `bun:"request_id,nullzero" json:"request_id,omitempty"`

	Metadata map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
}

// AuditAction represents the type of action in the audit log.
type AuditAction string

const (
	AuditActionAssigned       AuditAction = "assigned"
	AuditActionRevoked        AuditAction = "revoked"
	AuditActionLapsed         AuditAction = "lapsed"
	AuditActionPrimaryDemoted AuditAction = "primary_demoted"
	AuditActionRoleCreated    AuditAction = "role_created"
	AuditActionRoleUpdated    AuditAction = "role_updated"
	AuditActionRoleDeleted    AuditAction = "role_deleted"
)

// AuditEntry is used to create new audit log entries.
type AuditEntry struct {
	Action       AuditAction
	PrincipalID  string
	RoleID       string
	AssignmentID string
	Department   string
	Reason       string
	Metadata     map[string]any
}

// toModel converts an AuditEntry to an AuditLog row using the request
// metadata carried by ctx.
func (e *AuditEntry) toModel(id string, audit AuditContext, at time.Time) *AuditLog {
	return &AuditLog{
		ID:                id,
		Timestamp:         at,
		ActorID:           audit.ActorID,
		Action:            string(e.Action),
		PrincipalID:       e.PrincipalID,
		RoleID:            e.RoleID,
		AssignmentID:      e.AssignmentID,
		DepartmentContext: e.Department,
		Reason:            e.Reason,
		IPAddress:         audit.IPAddress,
		UserAgent:         audit.UserAgent,
		RequestID:         audit.RequestID,
		Metadata:          e.Metadata,
	}
}
