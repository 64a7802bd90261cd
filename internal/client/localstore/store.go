// Package localstore is the vault on disk as seen by the sync engine: file
// listing with cached hashes, reads and writes relative to the vault root,
// hard and soft deletes, ignore rules and change notifications.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/vaultsync/internal/client/hasher"
	"github.com/openmined/vaultsync/internal/utils"
	"github.com/spf13/afero"
)

const (
	TrashDir = ".trash"

	hashCacheSize = 8192
	tmpSuffix     = ".vaultsync.tmp"
	trashStamp    = "20060102-150405"
)

// FileEntry is one file of the local vault.
type FileEntry struct {
	Path       string
	Hash       string
	Size       int64
	ModifiedAt time.Time
}

type hashKey struct {
	path  string
	size  int64
	mtime int64
}

// WriteHook is called with the vault relative path of every file the store
// creates, overwrites, moves or removes.
type WriteHook func(path string)

type Store struct {
	fs     afero.Fs
	root   string
	ignore *IgnoreList

	mu     sync.RWMutex
	hasher hasher.Hasher
	hashes *lru.Cache[hashKey, string]
	hook   WriteHook
}

type Option func(*Store)

func WithHasher(h hasher.Hasher) Option {
	return func(s *Store) { s.hasher = h }
}

func WithIgnoreList(ig *IgnoreList) Option {
	return func(s *Store) { s.ignore = ig }
}

func WithWriteHook(h WriteHook) Option {
	return func(s *Store) { s.hook = h }
}

// New returns a store rooted at root on fsys. The root is created if missing.
func New(fsys afero.Fs, root string, opts ...Option) (*Store, error) {
	cache, err := lru.New[hashKey, string](hashCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Store{
		fs:     fsys,
		root:   filepath.Clean(root),
		hasher: hasher.Default(),
		hashes: cache,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("localstore: create root: %w", err)
	}
	return s, nil
}

// NewOS returns a store over the real filesystem.
func NewOS(root string, opts ...Option) (*Store, error) {
	root, err := utils.ResolvePath(root)
	if err != nil {
		return nil, err
	}
	return New(afero.NewOsFs(), root, opts...)
}

func (s *Store) Root() string {
	return s.root
}

// SetHasher switches the content hasher. Cached hashes are dropped.
func (s *Store) SetHasher(h hasher.Hasher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasher.Name() != h.Name() {
		s.hashes.Purge()
	}
	s.hasher = h
}

func (s *Store) SetWriteHook(h WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// abs maps a vault relative path into the root. ".." segments are refused
// before normalising, so a path can never climb out of the vault.
func (s *Store) abs(rel string) (string, error) {
	if utils.HasDotDot(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("localstore: invalid path %q", rel)
	}
	norm := utils.NormPath(rel)
	if norm == "" {
		return "", fmt.Errorf("localstore: invalid path %q", rel)
	}
	return filepath.Join(s.root, filepath.FromSlash(norm)), nil
}

func (s *Store) rel(abs string) (string, error) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", err
	}
	return utils.NormPath(filepath.ToSlash(rel)), nil
}

func (s *Store) notify(rel string) {
	s.mu.RLock()
	hook := s.hook
	s.mu.RUnlock()
	if hook != nil {
		hook(rel)
	}
}

// Ignored reports whether a vault relative path is outside the synced set.
func (s *Store) Ignored(rel string) bool {
	rel = utils.NormPath(rel)
	if rel == TrashDir || strings.HasPrefix(rel, TrashDir+"/") || strings.HasSuffix(rel, tmpSuffix) {
		return true
	}
	return s.ignore != nil && s.ignore.ShouldIgnore(rel)
}

// List walks the vault and returns every synced file with its content hash.
func (s *Store) List(ctx context.Context) ([]FileEntry, error) {
	s.mu.RLock()
	h := s.hasher
	s.mu.RUnlock()

	var entries []FileEntry
	err := afero.Walk(s.fs, s.root, func(abs string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := s.rel(abs)
		if err != nil || rel == "" {
			return nil
		}

		if info.IsDir() {
			if s.Ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || s.Ignored(rel) {
			return nil
		}

		hash, err := s.hashFile(h, abs, rel, info)
		if err != nil {
			return fmt.Errorf("localstore: hash %s: %w", rel, err)
		}

		entries = append(entries, FileEntry{
			Path:       rel,
			Hash:       hash,
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("localstore list", "root", s.root, "files", len(entries))
	return entries, nil
}

func (s *Store) hashFile(h hasher.Hasher, abs, rel string, info fs.FileInfo) (string, error) {
	key := hashKey{path: rel, size: info.Size(), mtime: info.ModTime().UnixNano()}
	if hash, ok := s.hashes.Get(key); ok {
		return hash, nil
	}

	data, err := afero.ReadFile(s.fs, abs)
	if err != nil {
		return "", err
	}

	hash := h.Hash(data)
	s.hashes.Add(key, hash)
	return hash, nil
}

func (s *Store) Read(ctx context.Context, rel string) ([]byte, error) {
	abs, err := s.abs(rel)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, abs)
}

// Write creates or overwrites a file, creating parent directories on demand.
// Content is written to a temporary sibling first and renamed into place.
func (s *Store) Write(ctx context.Context, rel string, content []byte) error {
	abs, err := s.abs(rel)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("localstore: mkdir %s: %w", rel, err)
	}

	tmp := abs + tmpSuffix
	if err := afero.WriteFile(s.fs, tmp, content, 0o644); err != nil {
		return fmt.Errorf("localstore: write %s: %w", rel, err)
	}

	s.notify(utils.NormPath(rel))
	if err := s.fs.Rename(tmp, abs); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("localstore: rename %s: %w", rel, err)
	}
	return nil
}

// Delete removes a file. Removing a missing file is not an error.
func (s *Store) Delete(ctx context.Context, rel string) error {
	abs, err := s.abs(rel)
	if err != nil {
		return err
	}

	s.notify(utils.NormPath(rel))
	if err := s.fs.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localstore: delete %s: %w", rel, err)
	}
	s.pruneEmptyParents(filepath.Dir(abs))
	return nil
}

// Trash moves a file under the vault trash folder, keeping its relative path.
// A timestamp is appended when the trash already holds that path.
func (s *Store) Trash(ctx context.Context, rel string) error {
	abs, err := s.abs(rel)
	if err != nil {
		return err
	}

	if _, err := s.fs.Stat(abs); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	rel = utils.NormPath(rel)
	target := filepath.Join(s.root, TrashDir, filepath.FromSlash(rel))
	if _, err := s.fs.Stat(target); err == nil {
		ext := path.Ext(target)
		target = strings.TrimSuffix(target, ext) + "." + time.Now().Format(trashStamp) + ext
	}

	if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("localstore: trash %s: %w", rel, err)
	}

	s.notify(rel)
	if err := s.fs.Rename(abs, target); err != nil {
		return fmt.Errorf("localstore: trash %s: %w", rel, err)
	}
	s.pruneEmptyParents(filepath.Dir(abs))
	return nil
}

// pruneEmptyParents removes directories left empty by a delete, up to the root.
func (s *Store) pruneEmptyParents(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		empty, err := afero.IsEmpty(s.fs, dir)
		if err != nil || !empty {
			return
		}
		if err := s.fs.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
