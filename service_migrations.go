package grantkit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// Migrations returns every database migration grantkit needs.
// Run them with BunStore.Migrate or dbkit's Migrate directly.
func Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "grantkit-001",
			Description: "Create roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS roles (
                    id UUID PRIMARY KEY,
                    name TEXT NOT NULL,
                    normalized_name TEXT NOT NULL,
                    description TEXT NOT NULL DEFAULT '',
                    role_type TEXT NOT NULL,
                    priority INTEGER NOT NULL CHECK (priority BETWEEN 1 AND 10),
                    is_active BOOLEAN NOT NULL DEFAULT TRUE,
                    is_system_role BOOLEAN NOT NULL DEFAULT FALSE,
                    department_scope TEXT,
                    additional_permissions TEXT[] NOT NULL DEFAULT '{}',
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    CONSTRAINT ux_roles_normalized_name UNIQUE (normalized_name)
                )`,
		},
		{
			ID:          "grantkit-002",
			Description: "Create role_assignments table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_assignments (
                    id UUID PRIMARY KEY,
                    principal_id TEXT NOT NULL,
                    role_id UUID NOT NULL,
                    department_context TEXT,
                    effective_date TIMESTAMPTZ NOT NULL,
                    expiration_date TIMESTAMPTZ,
                    is_active BOOLEAN NOT NULL DEFAULT TRUE,
                    is_primary BOOLEAN NOT NULL DEFAULT FALSE,
                    assignment_reason TEXT,
                    assigned_by TEXT NOT NULL,
                    assignment_context JSONB,
                    revoked_at TIMESTAMPTZ,
                    revoked_by TEXT,
                    revocation_reason TEXT,
                    lapsed_at TIMESTAMPTZ,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    CHECK (expiration_date IS NULL OR expiration_date > effective_date)
                )`,
		},
		{
			ID:          "grantkit-003",
			Description: "Unique live global assignment per principal and role",
			SQL: `
                CREATE UNIQUE INDEX IF NOT EXISTS ux_role_assignments_global
                    ON role_assignments (principal_id, role_id)
                    WHERE department_context IS NULL AND is_active`,
		},
		{
			ID:          "grantkit-004",
			Description: "Unique live scoped assignment per principal, role and department",
			SQL: `
                CREATE UNIQUE INDEX IF NOT EXISTS ux_role_assignments_scoped
                    ON role_assignments (principal_id, role_id, department_context)
                    WHERE department_context IS NOT NULL AND is_active`,
		},
		{
			ID:          "grantkit-005",
			Description: "Index live assignments by expiration for the lapse sweeper",
			SQL: `
                CREATE INDEX IF NOT EXISTS ix_role_assignments_expiration
                    ON role_assignments (expiration_date)
                    WHERE is_active AND expiration_date IS NOT NULL`,
		},
		{
			ID:          "grantkit-006",
			Description: "Create grant_audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS grant_audit_log (
                    id UUID PRIMARY KEY,
                    timestamp TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    actor_id TEXT NOT NULL,
                    action TEXT NOT NULL,
                    principal_id TEXT,
                    role_id TEXT,
                    assignment_id TEXT,
                    department_context TEXT,
                    reason TEXT,
                    ip_address TEXT,
                    user_agent TEXT,
                    request_id TEXT,
                    metadata JSONB
                )`,
		},
		{
			ID:          "grantkit-007",
			Description: "Create principals table",
			SQL: `
                CREATE TABLE IF NOT EXISTS principals (
                    id TEXT PRIMARY KEY,
                    display_name TEXT,
                    is_active BOOLEAN NOT NULL DEFAULT TRUE,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
	}
}

// Migrate applies pending migrations and returns the IDs it applied.
func (s *BunStore) Migrate(ctx context.Context) ([]string, error) {
	db, ok := s.db.(*dbkit.DBKit)
	if !ok {
		return nil, NewError(ErrStorageUnavailable, "migrations require a dbkit.DBKit instance")
	}
	result, err := db.Migrate(ctx, Migrations())
	if err != nil {
		return nil, storageError("Migrate", err)
	}
	applied := make([]string, 0, len(result.Applied))
	for _, m := range result.Applied {
		applied = append(applied, m.ID)
	}
	return applied, nil
}
