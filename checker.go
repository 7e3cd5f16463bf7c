package grantkit

import (
	"cmp"
	"slices"
	"time"
)

// Grant is one effective assignment together with the role it grants.
type Grant struct {
	Role       Role       `json:"role"`
	Assignment Assignment `json:"assignment"`
}

// Department returns the grant's department context, or "" when global.
func (g Grant) Department() string {
	return g.Assignment.Scope()
}

// Checker answers authority questions for one principal at one instant.
// It is built from a single read of the store, so every answer it gives is
// consistent with every other.
type Checker struct {
	principalID string
	active      bool
	now         time.Time
	catalog     *Catalog
	grants      []Grant
}

// NewChecker evaluates assignments against catalog at now. Assignments of
// other principals, of unknown roles, or that do not grant at now are ignored.
func NewChecker(principalID string, principalActive bool, assignments []Assignment, catalog *Catalog, now time.Time) *Checker {
	c := &Checker{
		principalID: principalID,
		active:      principalActive,
		now:         now,
		catalog:     catalog,
		grants:      make([]Grant, 0, len(assignments)),
	}
	for _, a := range assignments {
		if a.PrincipalID != principalID {
			continue
		}
		role, ok := catalog.Get(a.RoleID)
		if !ok || !Grants(a, role, principalActive, now) {
			continue
		}
		c.grants = append(c.grants, Grant{Role: role, Assignment: a})
	}
	slices.SortFunc(c.grants, func(a, b Grant) int {
		if x := compareHierarchy(a.Role, b.Role); x != 0 {
			return x
		}
		return cmp.Compare(a.Department(), b.Department())
	})
	return c
}

// PrincipalID returns the principal this checker is for.
func (c *Checker) PrincipalID() string {
	return c.principalID
}

// Now returns the instant the checker evaluated at.
func (c *Checker) Now() time.Time {
	return c.now
}

// IsActive reports whether the principal was active at evaluation time.
func (c *Checker) IsActive() bool {
	return c.active
}

// IsEmpty reports whether the principal holds no effective role.
func (c *Checker) IsEmpty() bool {
	return len(c.grants) == 0
}

// Grants returns one entry per effective assignment, in hierarchy order.
func (c *Checker) Grants() []Grant {
	out := make([]Grant, len(c.grants))
	copy(out, c.grants)
	return out
}

// EffectiveRoles returns the distinct roles the principal holds, in
// hierarchy order. A role held in several departments appears once.
func (c *Checker) EffectiveRoles() []Role {
	seen := make(map[string]struct{}, len(c.grants))
	out := make([]Role, 0, len(c.grants))
	for _, g := range c.grants {
		if _, dup := seen[g.Role.ID]; dup {
			continue
		}
		seen[g.Role.ID] = struct{}{}
		out = append(out, g.Role)
	}
	return out
}

// HasRole reports whether the principal holds roleID in any scope.
func (c *Checker) HasRole(roleID string) bool {
	for _, g := range c.grants {
		if g.Role.ID == roleID {
			return true
		}
	}
	return false
}

// HasRoleNamed is HasRole by case-insensitive role name.
func (c *Checker) HasRoleNamed(name string) bool {
	key := NormalizeName(name)
	for _, g := range c.grants {
		if g.Role.NormalizedName == key {
			return true
		}
	}
	return false
}

// HasRoleInDepartment reports whether roleID applies to dept. A global
// grant applies to every department.
func (c *Checker) HasRoleInDepartment(roleID, dept string) bool {
	for _, g := range c.grants {
		if g.Role.ID != roleID {
			continue
		}
		if g.Assignment.DepartmentContext == nil || g.Department() == dept {
			return true
		}
	}
	return false
}

// PrimaryRole returns the role of the principal's effective primary
// assignment. The boolean is false when there is none.
func (c *Checker) PrimaryRole() (Role, bool) {
	for _, g := range c.grants {
		if g.Assignment.IsPrimary {
			return g.Role, true
		}
	}
	return Role{}, false
}

// HighestAuthorityRole returns the effective role with the smallest
// priority, ties broken by name.
func (c *Checker) HighestAuthorityRole() (Role, bool) {
	if len(c.grants) == 0 {
		return Role{}, false
	}
	return c.grants[0].Role, true
}

// EffectivePermissions returns the union of the permissions of every
// effective role, deduplicated and sorted.
func (c *Checker) EffectivePermissions() []PermissionTag {
	seen := make(map[PermissionTag]struct{})
	out := make([]PermissionTag, 0)
	for _, g := range c.grants {
		for _, p := range g.Role.AdditionalPermissions {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// HasPermission checks permission against every effective role, honouring
// wildcard grants.
//
// Example:
//
//	if checker.HasPermission("grades.write") {
//	    // some effective role grants grades.write, grades.* or *
//	}
func (c *Checker) HasPermission(permission PermissionTag) bool {
	for _, g := range c.grants {
		if MatchAnyPermission(g.Role.AdditionalPermissions, permission) {
			return true
		}
	}
	return false
}

// HasAnyPermission checks if the principal has at least one of permissions.
func (c *Checker) HasAnyPermission(permissions ...PermissionTag) bool {
	for _, p := range permissions {
		if c.HasPermission(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions checks if the principal has every one of permissions.
func (c *Checker) HasAllPermissions(permissions ...PermissionTag) bool {
	for _, p := range permissions {
		if !c.HasPermission(p) {
			return false
		}
	}
	return true
}

// ManageableRoles returns the active catalog roles strictly below the
// principal's highest role. Peers of the highest role are excluded.
func (c *Checker) ManageableRoles() []Role {
	top, ok := c.HighestAuthorityRole()
	if !ok {
		return []Role{}
	}
	out := make([]Role, 0)
	for _, r := range c.catalog.Subordinates(top) {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out
}

// CanAssignRole reports whether the principal's highest role outranks role.
func (c *Checker) CanAssignRole(role Role) bool {
	top, ok := c.HighestAuthorityRole()
	return ok && Outranks(top, role)
}

// CanManage reports whether this principal sits strictly above other.
// It is false when either side holds no effective role or both are the
// same principal.
func (c *Checker) CanManage(other *Checker) bool {
	if other == nil || c.principalID == other.principalID {
		return false
	}
	mine, ok := c.HighestAuthorityRole()
	if !ok {
		return false
	}
	theirs, ok := other.HighestAuthorityRole()
	if !ok {
		return false
	}
	return Outranks(mine, theirs)
}
