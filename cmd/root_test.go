package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/overmindtech/cloudmeta/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args, returning what it printed to
// stdout. Cobra keeps flag values between runs, so callers should pass every
// flag that matters to them.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())

	if t.Failed() || err != nil {
		t.Logf("stderr: %v", stderr.String())
	}

	return stdout.String(), err
}

func TestVersion(t *testing.T) {
	t.Cleanup(func() {
		_ = rootCmd.Flags().Set("version", "false")
	})

	out, err := execute(t, "--version")
	require.NoError(t, err)

	assert.Equal(t, "cloudmeta version "+tracing.Version(), strings.TrimSpace(out))
}

func TestSubcommands(t *testing.T) {
	command, _, err := rootCmd.Find([]string{"discover"})
	require.NoError(t, err)
	assert.Equal(t, discoverCmd, command)

	for _, name := range []string{"config", "log", "json-log", "otel", "honeycomb-api-key", "sentry-dsn", "run-mode", "stdout-trace-dump"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}
