package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/openmined/vaultsync/internal/client/config"
	"github.com/openmined/vaultsync/internal/client/localstore"
	"github.com/openmined/vaultsync/internal/client/remote"
	"github.com/openmined/vaultsync/internal/client/sync"
	"github.com/openmined/vaultsync/internal/client/workspace"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Client wires one vault to one remote.
type Client struct {
	config    *config.Config
	workspace *workspace.Workspace
	store     *localstore.Store
	ignore    *localstore.IgnoreList
	backend   remote.Backend
	state     sync.StateStore
	orch      *sync.Orchestrator
	clock     clockwork.Clock
	log       *slog.Logger
}

type Option func(*Client)

// WithBackend replaces the backend the config selects.
func WithBackend(b remote.Backend) Option {
	return func(c *Client) { c.backend = b }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New validates cfg, locks the data dir and opens the sync state. Close
// releases both.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{config: cfg, clock: clockwork.NewRealClock(), log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	ws, err := workspace.NewWorkspace(cfg.VaultDir, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if err := ws.Setup(); err != nil {
		return nil, err
	}
	c.workspace = ws

	if err := c.init(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) init() error {
	cfg := c.config

	fsys := afero.NewOsFs()
	c.ignore = localstore.NewIgnoreList(fsys, cfg.VaultDir, cfg.ExcludedFolders, cfg.NoSyncFile)
	c.ignore.Load()

	store, err := localstore.New(fsys, cfg.VaultDir, localstore.WithIgnoreList(c.ignore))
	if err != nil {
		return fmt.Errorf("open vault: %w", err)
	}
	c.store = store

	if c.backend == nil {
		if c.backend, err = cfg.RemoteBackend(); err != nil {
			return fmt.Errorf("remote backend: %w", err)
		}
	}

	if c.state, err = sync.OpenStateStore(cfg.StateBackend, cfg.DataDir); err != nil {
		return fmt.Errorf("open sync state: %w", err)
	}

	opts := cfg.SyncOptions()
	opts.Clock = c.clock
	opts.Logger = c.log
	if c.orch, err = sync.NewOrchestrator(c.store, c.backend, c.state, opts); err != nil {
		return fmt.Errorf("sync orchestrator: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	var errs []error
	if c.state != nil {
		errs = append(errs, c.state.Close())
	}
	if c.workspace != nil {
		errs = append(errs, c.workspace.Unlock())
	}
	return errors.Join(errs...)
}

func (c *Client) Config() *config.Config {
	return c.config
}

func (c *Client) Orchestrator() *sync.Orchestrator {
	return c.orch
}

func (c *Client) Store() *localstore.Store {
	return c.store
}

// Sync runs one pass. With force push mode enabled every pass overwrites the
// remote.
func (c *Client) Sync(ctx context.Context) (*sync.SyncResult, error) {
	if c.config.ForcePushMode {
		return c.orch.ForcePush(ctx)
	}
	return c.orch.Run(ctx)
}

// Status is a point in time view of the client.
type Status struct {
	State      sync.State
	Tracked    int
	LocalFiles int
	LocalBytes int64
	// RemoteErr is the health probe failure, nil when the remote answered.
	RemoteErr  error
	LastResult *sync.SyncResult
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	files, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		State:      c.orch.State(),
		Tracked:    c.orch.History().Len(),
		LocalFiles: len(files),
		LastResult: c.orch.LastResult(),
	}
	for _, f := range files {
		st.LocalBytes += f.Size
	}

	if hc, ok := c.backend.(remote.HealthChecker); ok {
		st.RemoteErr = hc.Health(ctx)
	} else {
		_, st.RemoteErr = c.backend.Manifest(ctx)
	}
	return st, nil
}

// Watch syncs once, then keeps syncing on debounced local changes, on
// debounced remote change events and every auto sync interval, until ctx is
// done.
func (c *Client) Watch(ctx context.Context) error {
	c.log.Info("vaultsync watch start", "vault", c.config.VaultDir, "backend", c.config.Backend)

	watcher := localstore.NewWatcher(c.store)
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Stop()

	c.store.SetWriteHook(watcher.IgnoreOnce)
	defer c.store.SetWriteHook(nil)

	var debouncer *sync.ChangeDebouncer[string]
	debouncer = sync.NewChangeDebouncer(c.config.DebounceDelay, c.clock, func(paths []string) {
		c.log.Debug("debounced changes", "paths", len(paths))
		if errors.Is(c.syncNow(ctx, "change"), sync.ErrSyncAlreadyRunning) {
			// the running pass may have listed before these changes
			for _, p := range paths {
				debouncer.Add(p)
			}
		}
	})
	defer debouncer.Cancel()

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		c.syncNow(egCtx, "startup")
		return nil
	})

	eg.Go(func() error {
		for {
			select {
			case <-egCtx.Done():
				return nil
			case p, ok := <-watcher.Paths():
				if !ok {
					return nil
				}
				if p == c.config.NoSyncFile {
					c.ignore.Load()
				}
				debouncer.Add(p)
			}
		}
	})

	if c.config.AutoSyncInterval > 0 {
		eg.Go(func() error {
			ticker := c.clock.NewTicker(c.config.AutoSyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-egCtx.Done():
					return nil
				case <-ticker.Chan():
					c.syncNow(egCtx, "interval")
				}
			}
		})
	}

	if sb, ok := c.backend.(*remote.ServerBackend); ok && c.config.ListenEvents {
		stream := remote.NewEventStream(sb)
		eg.Go(func() error {
			return stream.Run(egCtx)
		})
		eg.Go(func() error {
			for {
				select {
				case <-egCtx.Done():
					return nil
				case ev := <-stream.Events():
					c.log.Debug("remote change", "type", ev.Type, "path", ev.Path, "revision", ev.Revision)
					debouncer.Add(ev.Path)
				}
			}
		})
	}

	err := eg.Wait()
	c.log.Info("vaultsync watch stop")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// syncNow runs one pass and logs its outcome.
func (c *Client) syncNow(ctx context.Context, trigger string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	start := time.Now()
	res, err := c.Sync(ctx)
	switch {
	case errors.Is(err, sync.ErrSyncAlreadyRunning):
		c.log.Debug("sync skipped, already running", "trigger", trigger)
	case err != nil:
		c.log.Error("sync", "trigger", trigger, "error", err)
	default:
		c.log.Info("sync", "trigger", trigger, "result", res.String(), "took", time.Since(start))
	}
	return err
}
