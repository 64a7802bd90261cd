package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/vaultsync/internal/utils"
)

const (
	logsDir  = "logs"
	lockFile = "vaultsync.lock"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Workspace is the on disk layout of one client: the vault being synced and
// the data dir holding sync state, logs and the process lock.
type Workspace struct {
	VaultDir string
	DataDir  string
	LogsDir  string

	flock *flock.Flock
}

func NewWorkspace(vaultDir, dataDir string) (*Workspace, error) {
	vault, err := utils.ResolvePath(vaultDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", vaultDir, err)
	}
	data, err := utils.ResolvePath(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", dataDir, err)
	}

	return &Workspace{
		VaultDir: vault,
		DataDir:  data,
		LogsDir:  filepath.Join(data, logsDir),
		flock:    flock.New(filepath.Join(data, lockFile)),
	}, nil
}

// Lock makes sure no other client process syncs out of the same data dir.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.DataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.DataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, then don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

func (w *Workspace) Setup() error {
	if !utils.DirExists(w.VaultDir) {
		return fmt.Errorf("vault dir does not exist: %s", w.VaultDir)
	}

	if err := w.Lock(); err != nil {
		return err
	}

	if err := utils.EnsureDir(w.LogsDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.LogsDir, err)
	}

	slog.Info("workspace", "vault", w.VaultDir, "data", w.DataDir)
	return nil
}
