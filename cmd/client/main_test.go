package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openmined/vaultsync/internal/client"
	"github.com/openmined/vaultsync/internal/client/config"
	"github.com/openmined/vaultsync/internal/client/sync"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(cmds ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{Use: "vaultsync", SilenceErrors: true, SilenceUsage: true}
	addGlobalFlags(root)
	root.AddCommand(cmds...)
	return root
}

func TestLoadConfigEnv(t *testing.T) {
	vault := t.TempDir()
	t.Setenv("VAULTSYNC_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("VAULTSYNC_SERVER_URL", "https://vault.example.com")
	t.Setenv("VAULTSYNC_API_KEY", "env-key")
	t.Setenv("VAULTSYNC_VAULT_DIR", vault)
	t.Setenv("VAULTSYNC_CONFLICT_RESOLUTION", "create-conflict-file")
	t.Setenv("VAULTSYNC_TREE_OWNER", "someone")

	cfg, err := loadConfig(newTestRoot())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://vault.example.com", cfg.ServerURL)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, vault, cfg.VaultDir)
	assert.Equal(t, "create-conflict-file", cfg.ConflictResolution)
	assert.Equal(t, "someone", cfg.Tree.Owner)
	assert.Equal(t, "main", cfg.Tree.Branch)
	assert.True(t, cfg.SyncDeletes)
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
	"server_url": "https://from-file.example.com",
	"api_key": "file-key",
	"vault_dir": "/vaults/file",
	"sync_deletes": false
}`), 0o600))

	root := newTestRoot()
	require.NoError(t, root.PersistentFlags().Set("config", path))
	require.NoError(t, root.PersistentFlags().Set("vault", "/vaults/flag"))

	cfg, err := loadConfig(root)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "https://from-file.example.com", cfg.ServerURL)
	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, "/vaults/flag", cfg.VaultDir)
	assert.False(t, cfg.SyncDeletes)
	assert.Equal(t, config.DefaultAutoSyncInterval, cfg.AutoSyncInterval)
}

func TestLoadConfigBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_url":`), 0o600))

	root := newTestRoot()
	require.NoError(t, root.PersistentFlags().Set("config", path))

	_, err := loadConfig(root)
	assert.Error(t, err)
}

func TestPushForceCancelled(t *testing.T) {
	asked := false
	orig := confirmForcePush
	confirmForcePush = func(cmd *cobra.Command) (bool, error) {
		asked = true
		return false, nil
	}
	t.Cleanup(func() { confirmForcePush = orig })

	root := newTestRoot(newPushCmd())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"push", "--force", "--config", filepath.Join(t.TempDir(), "none.json")})

	require.NoError(t, root.Execute())
	assert.True(t, asked)
	assert.Contains(t, stripANSI(out.String()), "force push cancelled")
}

func TestPushForceConfirmError(t *testing.T) {
	orig := confirmForcePush
	confirmForcePush = func(cmd *cobra.Command) (bool, error) {
		return false, errors.New("no tty")
	}
	t.Cleanup(func() { confirmForcePush = orig })

	root := newTestRoot(newPushCmd())
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"push", "--force"})
	assert.EqualError(t, root.Execute(), "no tty")
}

func TestRenderResult(t *testing.T) {
	var out bytes.Buffer
	renderResult(&out, "sync", &sync.SyncResult{
		Added:     2,
		Modified:  1,
		Conflicts: []string{"notes/a.md"},
		Errors:    []string{"upload b.md: boom"},
		Duration:  1500 * time.Millisecond,
	})

	got := stripANSI(out.String())
	assert.Contains(t, got, "sync failed")
	assert.Contains(t, got, "notes/a.md")
	assert.Contains(t, got, "upload b.md: boom")
	assert.Contains(t, got, "1.5s")
}

func TestRenderDiff(t *testing.T) {
	var out bytes.Buffer
	renderDiff(&out, &sync.DiffResult{})
	assert.Contains(t, out.String(), "identical")

	out.Reset()
	renderDiff(&out, &sync.DiffResult{
		LocalOnly:  []string{"new.md"},
		RemoteOnly: []string{"gone.md", "other.md"},
	})
	got := stripANSI(out.String())
	assert.Contains(t, got, "Only in vault (1)")
	assert.Contains(t, got, "+ new.md")
	assert.Contains(t, got, "Only on remote (2)")
	assert.NotContains(t, got, "Different on both sides")
}

func TestRenderStatus(t *testing.T) {
	var out bytes.Buffer
	renderStatus(&out, "https://vault.example.com", &client.Status{
		State:      sync.StateIdle,
		Tracked:    3,
		LocalFiles: 4,
		LocalBytes: 1536,
		RemoteErr:  errors.New("connection refused"),
	})

	got := stripANSI(out.String())
	assert.Contains(t, got, "idle")
	assert.Contains(t, got, "unreachable")
	assert.Contains(t, got, "https://vault.example.com")
	assert.Contains(t, got, "3 files")
	assert.Contains(t, got, "1.5 kB")
}

func TestInitCommandWritesConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.json")
	vault := t.TempDir()

	out, code := runCLI(t, "init", "--config", path, "--vault", vault, "--server", "http://127.0.0.1:8080", "--api-key", "k")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Vault initialized")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, vault, cfg.VaultDir)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
	assert.Equal(t, "k", cfg.APIKey)

	out, code = runCLI(t, "init", "--config", path)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "already initialized")
}

func TestSyncCommandInvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.json")

	out, code := runCLI(t, "sync", "--config", path, "--server", "http://127.0.0.1:8080")
	assert.Equal(t, 1, code)
	assert.True(t, strings.Contains(out, "invalid config"), out)
}
