package grantkit

import (
	"cmp"
	"slices"
)

// Hierarchy convention: a lower priority number means more authority.
// Priority 1 sits at the top; MaxPriority at the bottom. Every comparison in
// this package goes through Outranks or compareHierarchy.

// Outranks reports whether a sits strictly above b in the hierarchy.
func Outranks(a, b Role) bool {
	return a.Priority < b.Priority
}

// compareHierarchy orders roles top-down: priority ascending, then name.
func compareHierarchy(a, b Role) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	if c := cmp.Compare(a.NormalizedName, b.NormalizedName); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortByHierarchy sorts roles in place, top of the hierarchy first.
func SortByHierarchy(roles []Role) {
	slices.SortFunc(roles, compareHierarchy)
}

// highest returns the role with the most authority, ties broken by name.
func highest(roles []Role) (Role, bool) {
	if len(roles) == 0 {
		return Role{}, false
	}
	return slices.MinFunc(roles, compareHierarchy), true
}
