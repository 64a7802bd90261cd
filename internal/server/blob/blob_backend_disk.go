package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

const diskTmpSuffix = ".blobtmp"

// DiskBackend keeps every object as a file under one directory.
type DiskBackend struct {
	fs afero.Fs
}

// NewDiskBackend stores objects at the root of fsys.
func NewDiskBackend(fsys afero.Fs) *DiskBackend {
	return &DiskBackend{fs: fsys}
}

func NewOSDiskBackend(dir string) (*DiskBackend, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blob dir: %w", err)
	}
	return NewDiskBackend(afero.NewBasePathFs(afero.NewOsFs(), abs)), nil
}

func (d *DiskBackend) name(key string) (string, error) {
	if !ValidateKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.FromSlash("/" + path.Clean(key)), nil
}

func (d *DiskBackend) Get(ctx context.Context, key string) ([]byte, error) {
	name, err := d.name(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(d.fs, name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

func (d *DiskBackend) Put(ctx context.Context, key string, content []byte) error {
	name, err := d.name(key)
	if err != nil {
		return err
	}
	if err := d.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}

	tmp := name + diskTmpSuffix
	if err := afero.WriteFile(d.fs, tmp, content, 0o644); err != nil {
		return err
	}
	if err := d.fs.Rename(tmp, name); err != nil {
		_ = d.fs.Remove(tmp)
		return err
	}
	return nil
}

func (d *DiskBackend) Delete(ctx context.Context, key string) error {
	name, err := d.name(key)
	if err != nil {
		return err
	}
	if err := d.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

var _ Backend = (*DiskBackend)(nil)
