package grantkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPermissionMatcherMatch tests wildcard matching
func TestPermissionMatcherMatch(t *testing.T) {
	pm := NewPermissionMatcher()
	tests := []struct {
		pattern    PermissionTag
		permission PermissionTag
		want       bool
	}{
		{"*", "records.read", true},
		{"records.*", "records.read", true},
		{"*.read", "transcripts.read", true},
		{"records.read", "records.read", true},
		{"records.read", "records.write", false},
		{"records.*", "grades.read", false},
		{"records.*", "records.sub.read", false},
		{"*.read", "records.write", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.pattern)+"/"+string(tt.permission), func(t *testing.T) {
			assert.Equal(t, tt.want, pm.Match(tt.pattern, tt.permission))
		})
	}
}

func TestPermissionMatcherMatchAny(t *testing.T) {
	patterns := []PermissionTag{"courses.read", "grades.*"}
	assert.True(t, MatchAnyPermission(patterns, "grades.write"))
	assert.False(t, MatchAnyPermission(patterns, "courses.write"))
	assert.False(t, MatchAnyPermission(nil, "courses.read"))
}

func TestPermissionMatcherValidate(t *testing.T) {
	pm := NewPermissionMatcher()
	for _, ok := range []PermissionTag{"*", "records.read", "records.*", "*.read", "a_b.c_d", "a.b.c"} {
		assert.NoError(t, pm.Validate(ok), ok)
	}
	for _, bad := range []PermissionTag{"", "records", "records.", ".read", "records.re-ad", "records read"} {
		assert.ErrorIs(t, pm.Validate(bad), ErrInvalidPermission, bad)
	}
}

func TestVocabularyAllows(t *testing.T) {
	var open Vocabulary
	assert.NoError(t, open.Allows("anything.goes"))
	assert.Error(t, open.Allows("malformed"))

	v := NewVocabulary("records.read", "records.write", "grades.read")
	assert.NoError(t, v.Allows("records.read"))
	assert.NoError(t, v.Allows("records.*"))
	assert.NoError(t, v.Allows("*"))
	assert.ErrorIs(t, v.Allows("courses.*"), ErrInvalidPermission)
	assert.ErrorIs(t, v.Allows("courses.read"), ErrInvalidPermission)
}

func TestNormalizePermissions(t *testing.T) {
	out, err := normalizePermissions(nil, []PermissionTag{" grades.read", "courses.*", "grades.read"})
	require.NoError(t, err)
	assert.Equal(t, []PermissionTag{"courses.*", "grades.read"}, out)

	_, err = normalizePermissions(nil, []PermissionTag{"bad"})
	assert.ErrorIs(t, err, ErrInvalidPermission)

	out, err = normalizePermissions(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
