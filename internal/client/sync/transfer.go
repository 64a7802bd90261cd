package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/vaultsync/internal/client/localstore"
	"github.com/openmined/vaultsync/internal/client/remote"
)

// LocalStore is the vault side of a sync.
type LocalStore interface {
	List(ctx context.Context) ([]localstore.FileEntry, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, content []byte) error
	Delete(ctx context.Context, path string) error
	Trash(ctx context.Context, path string) error
}

// transfer moves single files between the vault and the remote. Every remote
// call goes through the retry executor.
type transfer struct {
	local   LocalStore
	backend remote.Backend
	retry   *RetryExecutor
	log     *slog.Logger
}

func (t *transfer) manifest(ctx context.Context) ([]remote.Record, error) {
	return RetryValue(ctx, t.retry, "manifest", t.backend.Manifest)
}

// writeRequest reads path from the vault. base is the remote record the
// write replaces, nil for a create.
func (t *transfer) writeRequest(ctx context.Context, path string, base *remote.Record) (*remote.WriteRequest, error) {
	content, err := t.local.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read local %s: %w", path, err)
	}

	req := &remote.WriteRequest{Path: path, Content: content}
	if base != nil {
		req.BaseRevision = remote.Revision(base.Revision)
		req.BaseHash = base.Hash
	}
	return req, nil
}

func (t *transfer) write(ctx context.Context, req *remote.WriteRequest) (*remote.WriteResult, error) {
	res, err := RetryValue(ctx, t.retry, "write "+req.Path, func(ctx context.Context) (*remote.WriteResult, error) {
		return t.backend.Write(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", req.Path, err)
	}
	t.log.Debug("sync", "op", "upload", "path", req.Path, "revision", res.Revision)
	return res, nil
}

func (t *transfer) push(ctx context.Context, path string, base *remote.Record) (*remote.WriteResult, error) {
	req, err := t.writeRequest(ctx, path, base)
	if err != nil {
		return nil, err
	}
	return t.write(ctx, req)
}

func (t *transfer) fetch(ctx context.Context, path string) (*remote.File, error) {
	f, err := RetryValue(ctx, t.retry, "read "+path, func(ctx context.Context) (*remote.File, error) {
		return t.backend.Read(ctx, path)
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", path, err)
	}
	return f, nil
}

// pull overwrites the vault copy of path with the remote content.
func (t *transfer) pull(ctx context.Context, path string) (*remote.File, error) {
	f, err := t.fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := t.local.Write(ctx, path, f.Content); err != nil {
		return nil, fmt.Errorf("write local %s: %w", path, err)
	}
	t.log.Debug("sync", "op", "download", "path", path, "revision", f.Revision)
	return f, nil
}

// deleteRemote treats an already missing remote file as deleted.
func (t *transfer) deleteRemote(ctx context.Context, path string) error {
	err := t.retry.Do(ctx, "delete "+path, func(ctx context.Context) error {
		return t.backend.Delete(ctx, path)
	})
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("delete remote %s: %w", path, err)
	}
	t.log.Debug("sync", "op", "delete-remote", "path", path)
	return nil
}

func (t *transfer) deleteLocal(ctx context.Context, path string, useTrash bool) error {
	var err error
	if useTrash {
		err = t.local.Trash(ctx, path)
	} else {
		err = t.local.Delete(ctx, path)
	}
	if err != nil {
		return fmt.Errorf("delete local %s: %w", path, err)
	}
	t.log.Debug("sync", "op", "delete-local", "path", path, "trash", useTrash)
	return nil
}
