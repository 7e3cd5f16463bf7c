package grantkit

import (
	"errors"
	"fmt"
)

// Sentinel errors for grantkit operations.
var (
	// ErrDuplicateName is returned when a role's normalized name collides with an existing role.
	ErrDuplicateName = errors.New("grantkit: duplicate role name")

	// ErrInvalidPriority is returned when a role priority is outside [MinPriority, MaxPriority].
	ErrInvalidPriority = errors.New("grantkit: invalid priority")

	// ErrDuplicateAssignment is returned when a live assignment already exists for the
	// same (principal, role) pair, or the same (principal, role, department) triple.
	ErrDuplicateAssignment = errors.New("grantkit: duplicate assignment")

	// ErrInvalidWindow is returned when an expiration date is not after the effective date.
	ErrInvalidWindow = errors.New("grantkit: invalid assignment window")

	// ErrRoleInUse is returned when deleting a role still referenced by live assignments.
	ErrRoleInUse = errors.New("grantkit: role in use")

	// ErrProtectedRole is returned when deleting a system role.
	ErrProtectedRole = errors.New("grantkit: protected role")

	// ErrPrincipalInactive is returned when granting a role to an inactive principal.
	ErrPrincipalInactive = errors.New("grantkit: principal inactive")

	// ErrRoleInactive is returned when granting an inactive role.
	ErrRoleInactive = errors.New("grantkit: role inactive")

	// ErrNotFound is returned for unknown role, assignment or principal ids.
	ErrNotFound = errors.New("grantkit: not found")

	// ErrStorageUnavailable is returned when the storage boundary fails.
	ErrStorageUnavailable = errors.New("grantkit: storage unavailable")

	// ErrInvalidPermission is returned when a permission tag is malformed or unknown.
	ErrInvalidPermission = errors.New("grantkit: invalid permission")

	// ErrInvalidScope is returned when a department context conflicts with the role's own department.
	ErrInvalidScope = errors.New("grantkit: invalid scope")

	// ErrInvalidRequest is returned when a request fails field validation.
	ErrInvalidRequest = errors.New("grantkit: invalid request")

	// ErrNoActorID is returned when actor ID is not found in context for audit.
	ErrNoActorID = errors.New("grantkit: no actor ID in context")

	// ErrNoPrincipalID is returned by middleware when the request carries no principal.
	ErrNoPrincipalID = errors.New("grantkit: no principal ID in context")

	// ErrForbidden is returned when the caller lacks the authority for an operation.
	ErrForbidden = errors.New("grantkit: forbidden")
)

// Error wraps a sentinel error with additional context.
type Error struct {
	Err         error  // Underlying sentinel error
	Message     string // Additional context
	Cause       error  // Lower level error (storage, validation), if any
	RoleID      string // Role involved (if applicable)
	PrincipalID string // Principal involved (if applicable)
	Assignment  string // Assignment involved (if applicable)
	ActorID     string // Actor who triggered the error (if applicable)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithCause attaches the lower level error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithRole adds role information to the error.
func (e *Error) WithRole(roleID string) *Error {
	e.RoleID = roleID
	return e
}

// WithPrincipal adds principal information to the error.
func (e *Error) WithPrincipal(principalID string) *Error {
	e.PrincipalID = principalID
	return e
}

// WithAssignment adds assignment information to the error.
func (e *Error) WithAssignment(assignmentID string) *Error {
	e.Assignment = assignmentID
	return e
}

// WithActor adds actor information to the error.
func (e *Error) WithActor(actorID string) *Error {
	e.ActorID = actorID
	return e
}

// IsNotFound checks if an error is due to an unknown id.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error conflicts with existing state: a uniqueness
// violation or a blocked deletion.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateAssignment) || errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrRoleInUse) || errors.Is(err, ErrProtectedRole)
}

// IsValidation checks if an error was raised by input validation.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidPriority,
		ErrInvalidWindow,
		ErrInvalidPermission,
		ErrInvalidScope,
		ErrInvalidRequest,
		ErrPrincipalInactive,
		ErrRoleInactive,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsForbidden checks if an error is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsUnauthenticated checks if an error means the caller could not be identified.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrNoPrincipalID)
}

// IsStorageUnavailable checks if an error came from the storage boundary.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(ErrStorageUnavailable, op).WithCause(err)
}
