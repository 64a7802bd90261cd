package localstore

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/openmined/vaultsync/internal/utils"
	"github.com/rjeczalik/notify"
	"github.com/spf13/afero"
)

const (
	DefaultIgnoreTimeout   = 2 * time.Second
	defaultCleanupInterval = 15 * time.Second
	watchBufferSize        = 256
	defaultSettleTimeout   = 50 * time.Millisecond
)

// Watcher reports vault relative paths that were created, modified, removed
// or renamed on disk. Bursts of events for one path are collapsed into one.
type Watcher struct {
	store     *Store
	rawEvents chan notify.EventInfo
	paths     chan string
	done      chan struct{}
	wg        sync.WaitGroup

	ignoreMu sync.Mutex
	ignore   map[string]time.Time

	settleMu      sync.Mutex
	settleTimeout time.Duration
	timers        map[string]*time.Timer
}

func NewWatcher(store *Store) *Watcher {
	return &Watcher{
		store:         store,
		done:          make(chan struct{}),
		ignore:        make(map[string]time.Time),
		settleTimeout: defaultSettleTimeout,
		timers:        make(map[string]*time.Timer),
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	root, err := filepath.EvalSymlinks(w.store.Root())
	if err != nil {
		return err
	}

	slog.Info("watcher start", "dir", root)

	w.rawEvents = make(chan notify.EventInfo, watchBufferSize)
	w.paths = make(chan string, watchBufferSize)

	if err := notify.Watch(root+"/...", w.rawEvents, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.forward(ctx, root)
	go w.cleanupExpired(ctx)
	return nil
}

func (w *Watcher) Stop() {
	close(w.done)
	if w.rawEvents != nil {
		notify.Stop(w.rawEvents)
	}
	w.wg.Wait()

	w.settleMu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.settleMu.Unlock()

	slog.Info("watcher stopped")
}

// Paths delivers changed vault relative paths.
func (w *Watcher) Paths() <-chan string {
	return w.paths
}

// IgnoreOnce suppresses the next event for path. Used for files the sync
// engine writes itself.
func (w *Watcher) IgnoreOnce(path string) {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()
	w.ignore[utils.NormPath(path)] = time.Now().Add(DefaultIgnoreTimeout)
}

func (w *Watcher) consumeIgnore(path string) bool {
	w.ignoreMu.Lock()
	defer w.ignoreMu.Unlock()

	expiry, ok := w.ignore[path]
	if !ok {
		return false
	}
	delete(w.ignore, path)
	return time.Now().Before(expiry)
}

func (w *Watcher) forward(ctx context.Context, root string) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.rawEvents:
			if !ok {
				return
			}

			rel, err := filepath.Rel(root, ev.Path())
			if err != nil {
				continue
			}
			rel = utils.NormPath(filepath.ToSlash(rel))
			if rel == "" || w.store.Ignored(rel) {
				continue
			}

			w.settle(rel)
			if ev.Event() == notify.Create || ev.Event() == notify.Rename {
				w.settleDir(rel)
			}
		}
	}
}

// settleDir reports the files of a directory that just appeared, created or
// moved in. Files that landed before the recursive watch reached the
// directory raise no event of their own.
func (w *Watcher) settleDir(rel string) {
	dir := filepath.Join(w.store.root, filepath.FromSlash(rel))
	info, err := w.store.fs.Stat(dir)
	if err != nil || !info.IsDir() {
		return
	}

	_ = afero.Walk(w.store.fs, dir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		child, err := w.store.rel(p)
		if err != nil || child == "" || w.store.Ignored(child) {
			if info.IsDir() && child != rel {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			w.settle(child)
		}
		return nil
	})
}

// settle restarts the per path timer so a burst of writes emits one path.
func (w *Watcher) settle(rel string) {
	w.settleMu.Lock()
	defer w.settleMu.Unlock()

	if t, ok := w.timers[rel]; ok {
		t.Stop()
	}
	w.timers[rel] = time.AfterFunc(w.settleTimeout, func() {
		w.settleMu.Lock()
		delete(w.timers, rel)
		w.settleMu.Unlock()

		if w.consumeIgnore(rel) {
			slog.Debug("watcher ignored own write", "path", rel)
			return
		}

		select {
		case w.paths <- rel:
			slog.Debug("watcher", "path", rel)
		case <-w.done:
		default:
			slog.Warn("watcher dropped", "reason", "channel full", "path", rel)
		}
	})
}

func (w *Watcher) cleanupExpired(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			now := time.Now()
			w.ignoreMu.Lock()
			for p, expiry := range w.ignore {
				if now.After(expiry) {
					delete(w.ignore, p)
				}
			}
			w.ignoreMu.Unlock()
		}
	}
}
