package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openmined/vaultsync/internal/client/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConfigPath(t *testing.T, args ...string) (stdout, stderr string) {
	t.Helper()

	cmd := &cobra.Command{Use: "vaultsync"}
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "path to config file")
	cmd.AddCommand(newConfigPathCmd())

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"config-path"}, args...))

	require.NoError(t, cmd.Execute())
	return strings.TrimSpace(out.String()), errOut.String()
}

func TestConfigPathCommand_MissingFile(t *testing.T) {
	t.Setenv("VAULTSYNC_CONFIG_PATH", "")
	path := filepath.Join(t.TempDir(), "config.json")

	stdout, stderr := runConfigPath(t, "--config", path)
	assert.Equal(t, path, stdout)
	assert.Contains(t, stderr, "vaultsync init")
}

func TestConfigPathCommand_ExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	t.Setenv("VAULTSYNC_CONFIG_PATH", path)

	stdout, stderr := runConfigPath(t)
	assert.Equal(t, path, stdout)
	assert.Empty(t, stderr)
}
