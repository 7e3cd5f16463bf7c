package grantkit

import (
	"slices"
	"strings"
)

// PermissionTag is a dot-separated capability such as "records.read" or
// "grades.*". Wildcards are allowed in role grants:
//   - "*" matches all permissions
//   - "resource.*" matches all actions on a resource
//   - "*.action" matches an action on all resources
type PermissionTag string

// PermissionMatcher handles permission matching with wildcard support.
type PermissionMatcher struct{}

// NewPermissionMatcher creates a new PermissionMatcher.
func NewPermissionMatcher() *PermissionMatcher {
	return &PermissionMatcher{}
}

// Match checks if a granted pattern covers a required permission.
//
//	Match("*", "records.read")              // true
//	Match("records.*", "records.read")      // true
//	Match("*.read", "transcripts.read")     // true
//	Match("records.read", "records.write")  // false
func (pm *PermissionMatcher) Match(pattern, permission PermissionTag) bool {
	if pattern == permission || pattern == "*" {
		return true
	}

	patternParts := strings.Split(string(pattern), ".")
	permParts := strings.Split(string(permission), ".")
	if len(patternParts) != len(permParts) {
		return false
	}

	for i, pp := range patternParts {
		if pp == "*" {
			continue
		}
		if pp != permParts[i] {
			return false
		}
	}
	return true
}

// MatchAny checks if any of the patterns match the required permission.
func (pm *PermissionMatcher) MatchAny(patterns []PermissionTag, permission PermissionTag) bool {
	for _, pattern := range patterns {
		if pm.Match(pattern, permission) {
			return true
		}
	}
	return false
}

// Validate checks if a permission tag is well formed.
// A valid tag is either "*" or a dot-separated string of identifiers.
func (pm *PermissionMatcher) Validate(permission PermissionTag) error {
	if permission == "" {
		return NewError(ErrInvalidPermission, "permission cannot be empty")
	}
	if permission == "*" {
		return nil
	}

	parts := strings.Split(string(permission), ".")
	if len(parts) < 2 {
		return NewError(ErrInvalidPermission, "permission must have at least two parts (resource.action)")
	}

	for _, part := range parts {
		if part == "" {
			return NewError(ErrInvalidPermission, "permission parts cannot be empty")
		}
		if part == "*" {
			continue
		}
		for _, c := range part {
			if !isValidPermissionChar(c) {
				return NewError(ErrInvalidPermission, "permission contains invalid character: "+string(permission))
			}
		}
	}
	return nil
}

func isValidPermissionChar(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_'
}

// DefaultMatcher is the default permission matcher instance.
var DefaultMatcher = NewPermissionMatcher()

// MatchAnyPermission is a convenience function using the default matcher.
func MatchAnyPermission(patterns []PermissionTag, permission PermissionTag) bool {
	return DefaultMatcher.MatchAny(patterns, permission)
}

// Vocabulary is the closed set of permission tags an installation knows about.
// A nil Vocabulary accepts any well-formed tag.
type Vocabulary map[PermissionTag]struct{}

// NewVocabulary builds a Vocabulary from tags.
func NewVocabulary(tags ...PermissionTag) Vocabulary {
	v := make(Vocabulary, len(tags))
	for _, t := range tags {
		v[t] = struct{}{}
	}
	return v
}

// Allows reports whether tag is well formed and, for a non-nil vocabulary,
// covers at least one known tag. Wildcard grants must still match something.
func (v Vocabulary) Allows(tag PermissionTag) error {
	if err := DefaultMatcher.Validate(tag); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if _, ok := v[tag]; ok {
		return nil
	}
	for known := range v {
		if DefaultMatcher.Match(tag, known) {
			return nil
		}
	}
	return NewError(ErrInvalidPermission, "unknown permission: "+string(tag))
}

// normalizePermissions validates, deduplicates and sorts tags.
func normalizePermissions(v Vocabulary, tags []PermissionTag) ([]PermissionTag, error) {
	seen := make(map[PermissionTag]struct{}, len(tags))
	out := make([]PermissionTag, 0, len(tags))
	for _, t := range tags {
		t = PermissionTag(strings.TrimSpace(string(t)))
		if err := v.Allows(t); err != nil {
			return nil, err
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	slices.Sort(out)
	return out, nil
}
