package grantkit

import (
	"sync"
)

// RoleSpec describes a role to create.
type RoleSpec struct {
	Name                  string          `json:"name" validate:"required,max=100"`
	Description           string          `json:"description" validate:"max=500"`
	RoleType              RoleType        `json:"role_type" validate:"required,oneof=administrative faculty staff student external"`
	Priority              int             `json:"priority" validate:"min=1,max=10"`
	IsSystemRole          bool            `json:"is_system_role"`
	DepartmentScope       string          `json:"department_scope" validate:"max=50"`
	AdditionalPermissions []PermissionTag `json:"additional_permissions"`
}

// RoleUpdate carries the fields to change on an existing role.
// Nil fields are left untouched.
type RoleUpdate struct {
	Name                  *string          `json:"name,omitempty"`
	Description           *string          `json:"description,omitempty"`
	RoleType              *RoleType        `json:"role_type,omitempty"`
	Priority              *int             `json:"priority,omitempty"`
	DepartmentScope       *string          `json:"department_scope,omitempty"`
	AdditionalPermissions *[]PermissionTag `json:"additional_permissions,omitempty"`
	IsActive              *bool            `json:"is_active,omitempty"`
}

// RoleSet is an ordered collection of role definitions applied with
// Service.EnsureRoles, typically at startup.
type RoleSet struct {
	mu    sync.RWMutex
	order []string
	roles map[string]*RoleDefinition
}

// RoleDefinition is the fluent builder for a single RoleSpec.
type RoleDefinition struct {
	spec RoleSpec
	set  *RoleSet
}

// NewRoleSet creates an empty role set.
func NewRoleSet() *RoleSet {
	return &RoleSet{roles: make(map[string]*RoleDefinition)}
}

// Role starts (or resumes) the definition of a role. Names are matched
// case-insensitively. New definitions default to priority MaxPriority and
// type external.
//
// Example:
//
//	set.Role("Registrar").Priority(2).Type(grantkit.RoleTypeAdministrative).
//	    Permissions("records.*").System().
//	    Role("Advisor").Priority(5).Type(grantkit.RoleTypeFaculty)
func (s *RoleSet) Role(name string) *RoleDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := NormalizeName(name)
	if def, ok := s.roles[key]; ok {
		return def
	}
	def := &RoleDefinition{
		spec: RoleSpec{Name: name, RoleType: RoleTypeExternal, Priority: MaxPriority},
		set:  s,
	}
	s.roles[key] = def
	s.order = append(s.order, key)
	return def
}

// Get returns the definition for name or nil.
func (s *RoleSet) Get(name string) *RoleDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[NormalizeName(name)]
}

// Len returns the number of definitions.
func (s *RoleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Specs returns the definitions in declaration order.
func (s *RoleSet) Specs() []RoleSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RoleSpec, 0, len(s.order))
	for _, key := range s.order {
		spec := s.roles[key].spec
		spec.AdditionalPermissions = append([]PermissionTag(nil), spec.AdditionalPermissions...)
		out = append(out, spec)
	}
	return out
}

// Describe sets the description.
func (d *RoleDefinition) Describe(description string) *RoleDefinition {
	d.set.mu.Lock()
	defer d.set.mu.Unlock()
	d.spec.Description = description
	return d
}

// Type sets the role type.
func (d *RoleDefinition) Type(t RoleType) *RoleDefinition {
	d.set.mu.Lock()
	defer d.set.mu.Unlock()
	d.spec.RoleType = t
	return d
}

// Priority sets the priority. Lower values carry more authority.
func (d *RoleDefinition) Priority(p int) *RoleDefinition {
	d.set.mu.Lock()
	defer d.set.mu.Unlock()
	d.spec.Priority = p
	return d
}

// Department restricts the role to a single department.
func (d *RoleDefinition) Department(dept string) *RoleDefinition {
	d.set.mu.Lock()
	defer d.set.mu.Unlock()
	d.spec.DepartmentScope = dept
	return d
}

// System marks the role as protected from deletion.
func (d *RoleDefinition) System() *RoleDefinition {
	d.set.mu.Lock()
	defer d.set.mu.Unlock()
	d.spec.IsSystemRole = true
	return d
}

// Permissions appends permission tags to the role.
func (d *RoleDefinition) Permissions(tags ...PermissionTag) *RoleDefinition {
	d.set.mu.Lock()
	defer d.set.mu.Unlock()
	d.spec.AdditionalPermissions = append(d.spec.AdditionalPermissions, tags...)
	return d
}

// Role continues the chain with another definition in the same set.
func (d *RoleDefinition) Role(name string) *RoleDefinition {
	return d.set.Role(name)
}

// Spec returns a copy of the built spec.
func (d *RoleDefinition) Spec() RoleSpec {
	d.set.mu.RLock()
	defer d.set.mu.RUnlock()
	spec := d.spec
	spec.AdditionalPermissions = append([]PermissionTag(nil), spec.AdditionalPermissions...)
	return spec
}

// DefaultRoleSet returns the built-in academic role ladder seeded by
// `grantd seed`. Only the administrator role is a system role.
func DefaultRoleSet() *RoleSet {
	set := NewRoleSet()
	set.Role("System Administrator").
		Describe("Full control of the role catalog and every assignment").
		Type(RoleTypeAdministrative).Priority(1).System().
		Permissions("*").
		Role("Registrar").
		Describe("Maintains academic records and enrollment").
		Type(RoleTypeAdministrative).Priority(2).
		Permissions("records.*", "enrollment.*", "roles.view", "roles.assign").
		Role("Dean").
		Describe("Leads a faculty").
		Type(RoleTypeFaculty).Priority(2).
		Permissions("records.read", "grades.read", "roles.view", "roles.assign").
		Role("Department Head").
		Describe("Leads an academic department").
		Type(RoleTypeFaculty).Priority(3).
		Permissions("courses.*", "grades.read", "roles.view", "roles.assign").
		Role("Instructor").
		Describe("Teaches courses and records grades").
		Type(RoleTypeFaculty).Priority(5).
		Permissions("courses.read", "grades.write", "grades.read").
		Role("Advisor").
		Describe("Advises students on their programme").
		Type(RoleTypeFaculty).Priority(5).
		Permissions("records.read", "transcripts.read").
		Role("Staff").
		Describe("Administrative staff member").
		Type(RoleTypeStaff).Priority(6).
		Permissions("records.read").
		Role("Student").
		Describe("Enrolled student").
		Type(RoleTypeStudent).Priority(8).
		Permissions("courses.read", "transcripts.read").
		Role("Guest").
		Describe("External visitor with read access to public courses").
		Type(RoleTypeExternal).Priority(10).
		Permissions("courses.read")
	return set
}
