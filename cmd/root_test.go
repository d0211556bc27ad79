package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"sweep", "match", "resolve", "check", "sweeps", "failed", "retry-failed", "serve", "watch"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "printlog", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestSweepCommand_Flags(t *testing.T) {
	flag := sweepCmd.Flags().Lookup("dry-run")
	require.NotNil(t, flag, "sweep command should have --dry-run flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestMatchCommand_Flags(t *testing.T) {
	for _, name := range []string{"first", "last"} {
		assert.NotNil(t, matchCmd.Flags().Lookup(name), "match should have --%s flag", name)
	}
}

func TestCheckCommand_Flags(t *testing.T) {
	require.NotNil(t, checkCmd.Flags().Lookup("device"))
	require.NotNil(t, checkCmd.Flags().Lookup("strict"))
}

func TestHistoryCommands_Flags(t *testing.T) {
	flag := sweepsCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)

	for _, name := range []string{"error-type", "all", "limit"} {
		assert.NotNil(t, failedCmd.Flags().Lookup(name), "failed should have --%s flag", name)
	}

	flag = retryFailedCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "100", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestWatchCommand_Flags(t *testing.T) {
	flag := watchCmd.Flags().Lookup("dry-run")
	require.NotNil(t, flag, "watch command should have --dry-run flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level"} {
		flag := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, "root should have --%s flag", name)
		assert.Empty(t, flag.DefValue)
	}
}

func TestSetup_ExplicitConfigAndLevelOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lock:\n  driver: memory\nlog:\n  level: info\n  format: console\n"), 0644))

	c, err := setup(path, "debug")
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Lock.Driver)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestSetup_Errors(t *testing.T) {
	_, err := setup(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "printlog: load config")

	path := filepath.Join(t.TempDir(), "printlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: console\n"), 0644))
	_, err = setup(path, "chatty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "printlog: init logger")
}
