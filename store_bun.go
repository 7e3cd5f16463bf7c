package grantkit

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BunStore is the PostgreSQL Store, built on dbkit and bun.
//
// Atomic units run as serializable transactions and are retried a few
// times on serialization failures before the error is surfaced as
// ErrStorageUnavailable. Uniqueness of live assignments is backed by the
// partial unique indexes created by Migrations.
type BunStore struct {
	db      dbkit.IDB
	retries int
}

// NewBunStore wraps a *dbkit.DBKit (or an open *dbkit.Tx).
func NewBunStore(db dbkit.IDB) *BunStore {
	return &BunStore{db: db, retries: 3}
}

func (s *BunStore) withDB(db dbkit.IDB) *BunStore {
	return &BunStore{db: db, retries: s.retries}
}

// validUUIDs drops ids postgres would reject as uuid literals; such ids can
// never match a row.
func validUUIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if uuid.Validate(id) == nil {
			out = append(out, id)
		}
	}
	return out
}

// FindRoles implements Store. Roles come back in hierarchy order.
func (s *BunStore) FindRoles(ctx context.Context, filter RoleFilter) ([]Role, error) {
	roles := make([]Role, 0)
	q := s.db.NewSelect().Model(&roles)
	if len(filter.IDs) > 0 {
		ids := validUUIDs(filter.IDs)
		if len(ids) == 0 {
			return roles, nil
		}
		q = q.Where("id IN (?)", bun.In(ids))
	}
	if filter.NormalizedName != "" {
		q = q.Where("normalized_name = ?", filter.NormalizedName)
	}
	if filter.RoleType != "" {
		q = q.Where("role_type = ?", filter.RoleType)
	}
	if filter.Priority != 0 {
		q = q.Where("priority = ?", filter.Priority)
	}
	if filter.ActiveOnly {
		q = q.Where("is_active")
	}
	q = q.Order("priority ASC", "normalized_name ASC", "id ASC")
	if err := dbkit.WithErr1(q.Scan(ctx), "FindRoles").Err(); err != nil {
		return nil, storageError("FindRoles", err)
	}
	return roles, nil
}

// InsertRole implements Store. A normalized name clash maps to ErrDuplicateName.
func (s *BunStore) InsertRole(ctx context.Context, role *Role) error {
	_, err := s.db.NewInsert().Model(role).Exec(ctx)
	if err = dbkit.WithErr1(err, "InsertRole").Err(); err != nil {
		if dbkit.IsDuplicate(err) {
			return NewError(ErrDuplicateName, role.Name).WithRole(role.ID).WithCause(err)
		}
		return storageError("InsertRole", err)
	}
	return nil
}

// UpdateRole implements Store.
func (s *BunStore) UpdateRole(ctx context.Context, role *Role) error {
	result, err := s.db.NewUpdate().Model(role).WherePK().Exec(ctx)
	if err = dbkit.WithErr(result, err, "UpdateRole").Err(); err != nil {
		if dbkit.IsDuplicate(err) {
			return NewError(ErrDuplicateName, role.Name).WithRole(role.ID).WithCause(err)
		}
		return storageError("UpdateRole", err)
	}
	return rowsAffected(result, NewError(ErrNotFound, "role not found").WithRole(role.ID))
}

// DeleteRole implements Store. Assignment rows referencing the role are kept.
func (s *BunStore) DeleteRole(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return NewError(ErrNotFound, "role not found").WithRole(id)
	}
	result, err := s.db.NewDelete().Model((*Role)(nil)).Where("id = ?", id).Exec(ctx)
	if err = dbkit.WithErr(result, err, "DeleteRole").Err(); err != nil {
		return storageError("DeleteRole", err)
	}
	return rowsAffected(result, NewError(ErrNotFound, "role not found").WithRole(id))
}

// FindAssignments implements Store.
func (s *BunStore) FindAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error) {
	out := make([]Assignment, 0)
	q := s.db.NewSelect().Model(&out)
	if filter.ID != "" {
		if uuid.Validate(filter.ID) != nil {
			return out, nil
		}
		q = q.Where("id = ?", filter.ID)
	}
	if len(filter.PrincipalIDs) > 0 {
		q = q.Where("principal_id IN (?)", bun.In(filter.PrincipalIDs))
	}
	if filter.RoleID != "" {
		if uuid.Validate(filter.RoleID) != nil {
			return out, nil
		}
		q = q.Where("role_id = ?", filter.RoleID)
	}
	if filter.ActiveOnly {
		q = q.Where("is_active")
	}
	if filter.ExpiresBefore != nil {
		q = q.Where("expiration_date IS NOT NULL AND expiration_date <= ?", *filter.ExpiresBefore)
	}
	q = q.Order("created_at ASC", "id ASC")
	if err := dbkit.WithErr1(q.Scan(ctx), "FindAssignments").Err(); err != nil {
		return nil, storageError("FindAssignments", err)
	}
	return out, nil
}

// InsertAssignment implements Store. Partial unique index violations map to
// ErrDuplicateAssignment.
func (s *BunStore) InsertAssignment(ctx context.Context, a *Assignment) error {
	_, err := s.db.NewInsert().Model(a).Exec(ctx)
	if err = dbkit.WithErr1(err, "InsertAssignment").Err(); err != nil {
		if dbkit.IsDuplicate(err) {
			return NewError(ErrDuplicateAssignment, "principal already holds this role in this scope").
				WithPrincipal(a.PrincipalID).
				WithRole(a.RoleID).
				WithCause(err)
		}
		return storageError("InsertAssignment", err)
	}
	return nil
}

// UpdateAssignment implements Store.
func (s *BunStore) UpdateAssignment(ctx context.Context, a *Assignment) error {
	result, err := s.db.NewUpdate().Model(a).WherePK().Exec(ctx)
	if err = dbkit.WithErr(result, err, "UpdateAssignment").Err(); err != nil {
		if dbkit.IsDuplicate(err) {
			return NewError(ErrDuplicateAssignment, "principal already holds this role in this scope").
				WithAssignment(a.ID).
				WithCause(err)
		}
		return storageError("UpdateAssignment", err)
	}
	return rowsAffected(result, NewError(ErrNotFound, "assignment not found").WithAssignment(a.ID))
}

// InsertAudit implements Store.
func (s *BunStore) InsertAudit(ctx context.Context, entry *AuditLog) error {
	_, err := s.db.NewInsert().Model(entry).Exec(ctx)
	return storageError("InsertAudit", dbkit.WithErr1(err, "InsertAudit").Err())
}

// FindAudit implements Store. Rows come back newest first.
func (s *BunStore) FindAudit(ctx context.Context, filter AuditLogFilter) ([]AuditLog, error) {
	logs := make([]AuditLog, 0)
	q := s.db.NewSelect().Model(&logs)
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.PrincipalID != "" {
		q = q.Where("principal_id = ?", filter.PrincipalID)
	}
	if filter.RoleID != "" {
		q = q.Where("role_id = ?", filter.RoleID)
	}
	if filter.AssignmentID != "" {
		q = q.Where("assignment_id = ?", filter.AssignmentID)
	}
	if filter.Department != "" {
		q = q.Where("department_context = ?", filter.Department)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	q = q.Order("timestamp DESC")
	if err := dbkit.WithErr1(q.Scan(ctx), "FindAudit").Err(); err != nil {
		return nil, storageError("FindAudit", err)
	}
	return logs, nil
}

// Atomic implements Store. Inside an open transaction it nests with a savepoint.
func (s *BunStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.transaction(ctx, dbkit.SerializableTxOptions(), fn)
}

// ReadOnly implements Store.
func (s *BunStore) ReadOnly(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.transaction(ctx, dbkit.ReadOnlyTxOptions(), fn)
}

func (s *BunStore) transaction(ctx context.Context, opts dbkit.TxOptions, fn func(ctx context.Context, tx Store) error) error {
	if tx, ok := s.db.(*dbkit.Tx); ok {
		return tx.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(ctx, s.withDB(tx))
		})
	}

	db, ok := s.db.(*dbkit.DBKit)
	if !ok {
		return NewError(ErrStorageUnavailable, "transaction support requires a dbkit.DBKit or dbkit.Tx instance")
	}

	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		err = db.TransactionWithOptions(ctx, opts, func(tx *dbkit.Tx) error {
			return fn(ctx, s.withDB(tx))
		})
		if err == nil || !isSerializationFailure(err) || attempt == s.retries-1 {
			break
		}

		// Exponential backoff with jitter
		backoff := time.Duration(1<<uint(attempt)) * 20 * time.Millisecond
		jitter := time.Duration(float64(backoff) * 0.1 * (0.5 + rand.Float64()))
		select {
		case <-ctx.Done():
			return storageError("Transaction", ctx.Err())
		case <-time.After(backoff + jitter):
		}
	}
	return storageError("Transaction", err)
}

// isSerializationFailure reports SQLSTATE 40001 and 40P01 failures, which
// are safe to retry from the start of the transaction.
func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"40001",
		"40p01",
		"could not serialize access",
		"deadlock detected",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

type rowsResult interface {
	RowsAffected() (int64, error)
}

func rowsAffected(result rowsResult, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return storageError("RowsAffected", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Principal mirrors the active flag of an identity owned by another system.
type Principal struct {
	bun.BaseModel `bun:"table:principals,alias:p"`

	ID          string    `bun:"id,pk" json:"id"`
	DisplayName string    `bun:"display_name" json:"display_name,omitempty"`
	IsActive    bool      `bun:"is_active,notnull" json:"is_active"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// BunDirectory is a PrincipalDirectory backed by the principals table.
type BunDirectory struct {
	db dbkit.IDB
}

// NewBunDirectory creates a BunDirectory.
func NewBunDirectory(db dbkit.IDB) *BunDirectory {
	return &BunDirectory{db: db}
}

// IsPrincipalActive implements PrincipalDirectory.
func (d *BunDirectory) IsPrincipalActive(ctx context.Context, principalID string) (bool, error) {
	var p Principal
	err := dbkit.WithErr1(d.db.NewSelect().Model(&p).Where("id = ?", principalID).Limit(1).Scan(ctx), "IsPrincipalActive").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return false, NewError(ErrNotFound, "principal not found").WithPrincipal(principalID)
		}
		return false, storageError("IsPrincipalActive", err)
	}
	return p.IsActive, nil
}

// UpsertPrincipal records a principal and its active flag, as synchronised
// from the identity system.
func (d *BunDirectory) UpsertPrincipal(ctx context.Context, p *Principal) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err := d.db.NewInsert().Model(p).
		On("CONFLICT (id) DO UPDATE").
		Set("is_active = EXCLUDED.is_active").
		Set("display_name = EXCLUDED.display_name").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return storageError("UpsertPrincipal", dbkit.WithErr1(err, "UpsertPrincipal").Err())
}

// CountPrincipals returns how many principals the directory knows about.
func (d *BunDirectory) CountPrincipals(ctx context.Context, activeOnly bool) (int, error) {
	n, err := dbkit.Count[Principal](ctx, d.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		if activeOnly {
			return q.Where("is_active")
		}
		return q
	})
	if err != nil {
		return 0, storageError("CountPrincipals", err)
	}
	return n, nil
}
