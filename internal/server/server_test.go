package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/vaultsync/internal/client"
	"github.com/openmined/vaultsync/internal/client/config"
	"github.com/openmined/vaultsync/internal/db"
	"github.com/openmined/vaultsync/internal/server/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

func startTestServer(t *testing.T) string {
	t.Helper()

	cfg := &Config{
		APIKey:   testAPIKey,
		VaultDir: t.TempDir(),
		DBPath:   filepath.Join(t.TempDir(), "ledger.db"),
	}
	require.NoError(t, cfg.Validate())

	sqlDB, err := db.NewSqliteDB(db.WithPath(cfg.DBPath))
	require.NoError(t, err)

	blobs, err := blob.NewOSDiskBackend(cfg.Blob.Dir)
	require.NoError(t, err)
	svc, err := newServices(blobs, sqlDB)
	require.NoError(t, err)

	srv, err := newServer(cfg, svc)
	require.NoError(t, err)
	srv.db = sqlDB

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, listener) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})

	return "http://" + listener.Addr().String()
}

func newTestClient(t *testing.T, serverURL string) (*client.Client, string) {
	t.Helper()

	cfg := &config.Config{
		ServerURL:       serverURL,
		APIKey:          testAPIKey,
		VaultDir:        t.TempDir(),
		DataDir:         t.TempDir(),
		SyncDeletes:     true,
		UseTrash:        true,
		ExcludedFolders: []string{".obsidian", ".trash"},
	}
	c, err := client.New(cfg, client.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, cfg.VaultDir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{VaultDir: t.TempDir()}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultAddr, cfg.HTTP.Addr)
	assert.Equal(t, blob.BackendDisk, cfg.Blob.Backend)
	assert.Equal(t, cfg.VaultDir, cfg.Blob.Dir)

	cfg = &Config{VaultDir: t.TempDir(), HTTP: HTTPConfig{CertFile: "cert.pem"}}
	assert.Error(t, cfg.Validate())

	cfg = &Config{VaultDir: t.TempDir(), RateLimit: "fast"}
	assert.Error(t, cfg.Validate())

	cfg = &Config{VaultDir: t.TempDir(), Blob: blob.Config{Backend: blob.BackendS3}}
	assert.Error(t, cfg.Validate())
}

func TestServerHealthAndAuth(t *testing.T) {
	url := startTestServer(t)

	resp, err := http.Get(url + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(url + "/manifest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, url+"/manifest", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTwoClientsConverge(t *testing.T) {
	ctx := context.Background()
	url := startTestServer(t)

	a, dirA := newTestClient(t, url)
	b, dirB := newTestClient(t, url)

	// enough files to go through a batch commit
	for i := 0; i < 6; i++ {
		writeFile(t, dirA, fmt.Sprintf("notes/%d.md", i), fmt.Sprintf("note %d", i))
	}
	writeFile(t, dirA, ".obsidian/workspace.json", "{}")

	res, err := a.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success(), res.Errors)
	assert.Equal(t, 6, res.Added)

	res, err = b.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success(), res.Errors)
	assert.Equal(t, "note 3", readFile(t, dirB, "notes/3.md"))
	assert.NoFileExists(t, filepath.Join(dirB, ".obsidian", "workspace.json"))

	// edit on A reaches B
	writeFile(t, dirA, "notes/0.md", "edited on a")
	_, err = a.Sync(ctx)
	require.NoError(t, err)
	_, err = b.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "edited on a", readFile(t, dirB, "notes/0.md"))

	// delete on B reaches A through the trash
	require.NoError(t, os.Remove(filepath.Join(dirB, "notes", "5.md")))
	res, err = b.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	res, err = a.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.NoFileExists(t, filepath.Join(dirA, "notes", "5.md"))
	assert.FileExists(t, filepath.Join(dirA, ".trash", "notes", "5.md"))

	// both sides settled
	res, err = a.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Unchanged())
	res, err = b.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Unchanged())
}
