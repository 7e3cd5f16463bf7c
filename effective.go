package grantkit

import "time"

// AssignmentState is the lifecycle position of an assignment at a given instant.
// It is derived, never stored.
type AssignmentState string

const (
	StatePending   AssignmentState = "pending"
	StateEffective AssignmentState = "effective"
	StateExpired   AssignmentState = "expired"
	StateRevoked   AssignmentState = "revoked"
)

// IsEffective reports whether a grants its role at now, looking only at the
// assignment itself: active flag, effective date and optional expiration.
func IsEffective(a Assignment, now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.EffectiveDate.After(now) {
		return false
	}
	return a.ExpirationDate == nil || a.ExpirationDate.After(now)
}

// Grants reports whether a currently grants role. The role and the owning
// principal must both be active as well.
func Grants(a Assignment, role Role, principalActive bool, now time.Time) bool {
	if a.RoleID != role.ID {
		return false
	}
	return principalActive && role.IsActive && IsEffective(a, now)
}

// IsLive reports whether a still occupies its uniqueness slot and can still
// become or stay effective: active and not past its expiration.
func IsLive(a Assignment, now time.Time) bool {
	if !a.IsActive {
		return false
	}
	return a.ExpirationDate == nil || a.ExpirationDate.After(now)
}

// StateOf classifies a at now.
//
//	pending -> effective -> expired
//	             \-> revoked
func StateOf(a Assignment, now time.Time) AssignmentState {
	if !a.IsActive {
		if a.LapsedAt != nil {
			return StateExpired
		}
		return StateRevoked
	}
	if a.ExpirationDate != nil && !a.ExpirationDate.After(now) {
		return StateExpired
	}
	if a.EffectiveDate.After(now) {
		return StatePending
	}
	return StateEffective
}

// ValidateWindow checks that an expiration, when present, is strictly after
// the effective date.
func ValidateWindow(effective time.Time, expiration *time.Time) error {
	if expiration == nil {
		return nil
	}
	if !expiration.After(effective) {
		return NewError(ErrInvalidWindow, "expiration date must be after effective date")
	}
	return nil
}
