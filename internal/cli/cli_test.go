package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "seed", "lapse", "principal"})

	seed, _, err := root.Find([]string{"seed"})
	require.NoError(t, err)
	assert.NotNil(t, seed.Flags().Lookup("admin"))

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("skip-migrate"))
}

func TestRunUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	code := run([]string{"frobnicate"}, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "unknown command")
}

func TestRunPrincipalSetRequiresID(t *testing.T) {
	var stderr bytes.Buffer
	code := run([]string{"principal", "set"}, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "accepts 1 arg")
}

func TestRunBadConfig(t *testing.T) {
	t.Setenv("GRANTD_LOG_FORMAT", "yaml")
	var stderr bytes.Buffer
	code := run([]string{"migrate"}, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "load config")
}
