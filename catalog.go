package grantkit

import (
	"strings"
)

// Catalog is an immutable, in-memory view of the role catalog, loaded once
// and passed explicitly to whatever needs it.
type Catalog struct {
	roles  []Role // hierarchy order
	byID   map[string]int
	byName map[string]int
}

// NewCatalog builds a Catalog from roles.
func NewCatalog(roles []Role) *Catalog {
	sorted := make([]Role, len(roles))
	copy(sorted, roles)
	SortByHierarchy(sorted)

	c := &Catalog{
		roles:  sorted,
		byID:   make(map[string]int, len(sorted)),
		byName: make(map[string]int, len(sorted)),
	}
	for i, r := range sorted {
		c.byID[r.ID] = i
		c.byName[r.NormalizedName] = i
	}
	return c
}

// Len returns the number of roles.
func (c *Catalog) Len() int {
	return len(c.roles)
}

// Get returns the role with id.
func (c *Catalog) Get(id string) (Role, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Role{}, false
	}
	return c.roles[i], true
}

// ByName looks a role up case-insensitively.
func (c *Catalog) ByName(name string) (Role, bool) {
	i, ok := c.byName[NormalizeName(name)]
	if !ok {
		return Role{}, false
	}
	return c.roles[i], true
}

// Hierarchy returns every role, priority ascending then name.
func (c *Catalog) Hierarchy() []Role {
	out := make([]Role, len(c.roles))
	copy(out, c.roles)
	return out
}

// ByType returns roles of category t in hierarchy order.
func (c *Catalog) ByType(t RoleType) []Role {
	return c.filter(func(r Role) bool { return r.RoleType == t })
}

// ByPriority returns roles at exactly priority p.
func (c *Catalog) ByPriority(p int) []Role {
	return c.filter(func(r Role) bool { return r.Priority == p })
}

// Search matches term case-insensitively against name and description.
// An empty term matches everything.
func (c *Catalog) Search(term string, activeOnly bool) []Role {
	term = strings.ToLower(strings.TrimSpace(term))
	return c.filter(func(r Role) bool {
		if activeOnly && !r.IsActive {
			return false
		}
		if term == "" {
			return true
		}
		return strings.Contains(strings.ToLower(r.Name), term) ||
			strings.Contains(strings.ToLower(r.Description), term)
	})
}

// Subordinates returns every role positioned strictly below role.
func (c *Catalog) Subordinates(role Role) []Role {
	return c.filter(func(r Role) bool { return Outranks(role, r) })
}

func (c *Catalog) filter(keep func(Role) bool) []Role {
	out := make([]Role, 0)
	for _, r := range c.roles {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
