package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/vaultsync/internal/client/hasher"
	"github.com/openmined/vaultsync/internal/client/localstore"
	"github.com/openmined/vaultsync/internal/client/remote"
	"github.com/openmined/vaultsync/internal/utils"
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const DefaultErrorCooldown = 3 * time.Second

type Options struct {
	ConflictPolicy ConflictPolicy
	SyncDeletes    bool
	UseTrash       bool
	ErrorCooldown  time.Duration
	BatchThreshold int
	BatchSize      int
	Retry          *RetryExecutor
	Clock          clockwork.Clock
	Logger         *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		ConflictPolicy: PolicyLastWriteWins,
		SyncDeletes:    true,
		UseTrash:       true,
		ErrorCooldown:  DefaultErrorCooldown,
		BatchThreshold: DefaultBatchThreshold,
		BatchSize:      DefaultBatchSize,
	}
}

// Orchestrator drives sync passes between one vault and one remote. Only
// one pass runs at a time.
type Orchestrator struct {
	local   LocalStore
	backend remote.Backend
	store   StateStore
	history *HistoryTracker
	opts    Options
	clock   clockwork.Clock
	log     *slog.Logger

	xfer      *transfer
	resolver  *ConflictResolver
	deletions *DeletionPropagator
	batch     *BatchCommitBuilder

	mu    sync.Mutex
	state State
	last  *SyncResult
}

// hasherSetter is implemented by local stores whose hashing can follow the
// backend.
type hasherSetter interface {
	SetHasher(h hasher.Hasher)
}

func NewOrchestrator(local LocalStore, backend remote.Backend, store StateStore, opts Options) (*Orchestrator, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Retry == nil {
		opts.Retry = NewRetryExecutor()
		opts.Retry.Logger = opts.Logger
	}
	if opts.ConflictPolicy == "" {
		opts.ConflictPolicy = PolicyLastWriteWins
	}
	if opts.ErrorCooldown <= 0 {
		opts.ErrorCooldown = DefaultErrorCooldown
	}
	if opts.BatchThreshold <= 0 {
		opts.BatchThreshold = DefaultBatchThreshold
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if store == nil {
		store = NewMemoryStateStore()
	}

	state, err := store.Load()
	if err != nil {
		return nil, err
	}

	if hs, ok := local.(hasherSetter); ok {
		hs.SetHasher(remote.HasherFor(backend))
	}

	o := &Orchestrator{
		local:   local,
		backend: backend,
		store:   store,
		history: NewHistoryTracker(state),
		opts:    opts,
		clock:   opts.Clock,
		log:     opts.Logger,
	}
	o.xfer = &transfer{local: local, backend: backend, retry: opts.Retry, log: opts.Logger}
	o.resolver = &ConflictResolver{policy: opts.ConflictPolicy, history: o.history, xfer: o.xfer, clock: opts.Clock}
	o.deletions = &DeletionPropagator{xfer: o.xfer, history: o.history, useTrash: opts.UseTrash}
	o.batch = &BatchCommitBuilder{xfer: o.xfer, threshold: opts.BatchThreshold, size: opts.BatchSize, log: opts.Logger}
	return o, nil
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastResult is the result of the most recent completed pass, or nil.
func (o *Orchestrator) LastResult() *SyncResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *Orchestrator) History() *HistoryTracker {
	return o.history
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		return ErrSyncAlreadyRunning
	}
	o.state = StateRunning
	return nil
}

func (o *Orchestrator) end(result *SyncResult, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err == nil {
		o.state = StateIdle
		o.last = result
		return
	}

	o.state = StateError
	o.clock.AfterFunc(o.opts.ErrorCooldown, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.state == StateError {
			o.state = StateIdle
		}
	})
}

// guarded runs fn as one pass under the Running state.
func (o *Orchestrator) guarded(ctx context.Context, op string, fn func(ctx context.Context, result *SyncResult) error) (*SyncResult, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}

	start := o.clock.Now()
	result := &SyncResult{}
	err := fn(ctx, result)
	result.Duration = o.clock.Since(start)
	o.end(result, err)

	if err != nil {
		o.log.Error("sync failed", "op", op, "error", err)
		return nil, err
	}

	o.log.Info("sync complete", "op", op,
		"added", result.Added,
		"modified", result.Modified,
		"deleted", result.Deleted,
		"conflicts", len(result.Conflicts),
		"errors", len(result.Errors),
		"duration", result.Duration)
	return result, nil
}

// snapshot fetches the current local listing and remote manifest.
func (o *Orchestrator) snapshot(ctx context.Context) ([]localstore.FileEntry, []remote.Record, error) {
	local, err := o.local.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list local files: %w", err)
	}
	manifest, err := o.xfer.manifest(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch manifest: %w", err)
	}
	return local, manifest, nil
}

// Run performs a full two way sync pass.
func (o *Orchestrator) Run(ctx context.Context) (*SyncResult, error) {
	return o.guarded(ctx, "sync", o.run)
}

func (o *Orchestrator) run(ctx context.Context, result *SyncResult) error {
	local, manifest, err := o.snapshot(ctx)
	if err != nil {
		return err
	}

	changes := DetectChanges(local, manifest)
	prev := o.history.Snapshot()
	deletionsOn := o.opts.SyncDeletes && len(prev) > 0

	// a tracked path missing on one side is a deletion when the surviving
	// copy is unchanged; leave it for the deletion stage
	heldBack := func(path, hash string) bool {
		if !deletionsOn {
			return false
		}
		last, ok := prev[path]
		return ok && last.Hash == hash
	}

	uploads := make([]*remote.WriteRequest, 0, len(changes.LocalOnly))
	for _, f := range changes.LocalOnly {
		if heldBack(f.Path, f.Hash) {
			continue
		}
		req, err := o.xfer.writeRequest(ctx, f.Path, nil)
		if err != nil {
			result.addError(err)
			continue
		}
		uploads = append(uploads, req)
	}
	for _, out := range o.batch.WriteAll(ctx, uploads, "") {
		switch {
		case errors.Is(out.Err, remote.ErrConflict):
			// created remotely after the manifest was read
			res, err := o.resolver.settleUpload(ctx, out.Path)
			if err != nil {
				result.addError(err)
				continue
			}
			o.recordConflict(result, res)
		case out.Err != nil:
			result.addError(out.Err)
		default:
			result.Added++
		}
	}

	for _, r := range changes.RemoteOnly {
		if heldBack(r.Path, r.Hash) {
			continue
		}
		if _, err := o.xfer.pull(ctx, r.Path); err != nil {
			result.addError(err)
			continue
		}
		result.Added++
	}

	for _, b := range changes.Both {
		res, err := o.resolver.Resolve(ctx, b)
		if err != nil {
			result.addError(err)
			continue
		}
		switch res.Action {
		case ActionPush, ActionPull:
			result.Modified++
		case ActionConflict:
			o.recordConflict(result, res)
		}
	}

	if deletionsOn {
		local, manifest, err := o.snapshot(ctx)
		if err != nil {
			return err
		}
		plan := PlanDeletions(prev, localPaths(local), remotePaths(manifest))
		deleted, errs := o.deletions.Apply(ctx, plan)
		result.Deleted += deleted
		result.Errors = append(result.Errors, errs...)
	}

	return o.updateHistory(ctx, o.history.Snapshot())
}

// recordConflict counts a settled conflict. Conflicts are not errors.
func (o *Orchestrator) recordConflict(result *SyncResult, res *Resolution) {
	result.Modified++
	result.Conflicts = append(result.Conflicts, res.Path)
	o.log.Warn("sync conflict", "path", res.Path, "applied", res.Applied, "conflict_file", res.ConflictPath)
}

// updateHistory records every path that is now identical on both sides.
// Paths still present on one side keep their previous entry; paths gone from
// both are dropped. The store is written before the tracker is replaced.
func (o *Orchestrator) updateHistory(ctx context.Context, prev SyncState) error {
	local, manifest, err := o.snapshot(ctx)
	if err != nil {
		return err
	}

	next := make(SyncState, len(manifest))
	changes := DetectChanges(local, manifest)
	for _, b := range changes.Both {
		if b.Local.Hash == b.Remote.Hash {
			next[b.Path] = SyncStateEntry{Hash: b.Remote.Hash, Revision: b.Remote.Revision}
		} else if e, ok := prev[b.Path]; ok {
			next[b.Path] = e
		}
	}
	for _, f := range changes.LocalOnly {
		if e, ok := prev[f.Path]; ok {
			next[f.Path] = e
		}
	}
	for _, r := range changes.RemoteOnly {
		if e, ok := prev[r.Path]; ok {
			next[r.Path] = e
		}
	}

	if err := o.store.Save(next); err != nil {
		return err
	}
	o.history.Replace(next)
	return nil
}

// ForcePush makes the remote an exact copy of the vault, ignoring conflicts.
func (o *Orchestrator) ForcePush(ctx context.Context) (*SyncResult, error) {
	return o.guarded(ctx, "force-push", func(ctx context.Context, result *SyncResult) error {
		local, manifest, err := o.snapshot(ctx)
		if err != nil {
			return err
		}

		remoteByPath := make(map[string]remote.Record, len(manifest))
		for _, r := range manifest {
			remoteByPath[utils.NormPath(r.Path)] = r
		}

		uploads := make([]*remote.WriteRequest, 0, len(local))
		updates := mapset.NewThreadUnsafeSet[string]()
		for _, f := range local {
			var base *remote.Record
			if r, ok := remoteByPath[utils.NormPath(f.Path)]; ok {
				if r.Hash == f.Hash {
					continue
				}
				base = &r
				updates.Add(f.Path)
			}
			req, err := o.xfer.writeRequest(ctx, f.Path, base)
			if err != nil {
				result.addError(err)
				continue
			}
			uploads = append(uploads, req)
		}

		for _, out := range o.batch.WriteAll(ctx, uploads, "vaultsync: force push") {
			if errors.Is(out.Err, remote.ErrConflict) {
				// the remote moved since the manifest, overwrite it anyway
				_, out.Err = o.resolver.overwrite(ctx, out.Path)
			}
			switch {
			case out.Err != nil:
				result.addError(out.Err)
			case updates.Contains(out.Path):
				result.Modified++
			default:
				result.Added++
			}
		}

		localSet := localPaths(local)
		for _, r := range manifest {
			if localSet.Contains(utils.NormPath(r.Path)) {
				continue
			}
			if err := o.xfer.deleteRemote(ctx, r.Path); err != nil {
				result.addError(err)
				continue
			}
			result.Deleted++
		}

		return o.updateHistory(ctx, o.history.Snapshot())
	})
}

// Diff reports what differs between the vault and the remote without
// transferring anything.
func (o *Orchestrator) Diff(ctx context.Context) (*DiffResult, error) {
	local, manifest, err := o.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return diffOf(DetectChanges(local, manifest)), nil
}

func diffOf(changes *Changes) *DiffResult {
	d := &DiffResult{}
	for _, f := range changes.LocalOnly {
		d.LocalOnly = append(d.LocalOnly, f.Path)
	}
	for _, r := range changes.RemoteOnly {
		d.RemoteOnly = append(d.RemoteOnly, r.Path)
	}
	for _, b := range changes.Diverged() {
		d.Conflicts = append(d.Conflicts, b.Path)
	}
	return d
}

// Push mirrors the vault onto the remote: local only files are uploaded and
// remote only files deleted. Nothing is transferred when any path differs
// on both sides.
func (o *Orchestrator) Push(ctx context.Context) (*SyncResult, error) {
	return o.guarded(ctx, "push", func(ctx context.Context, result *SyncResult) error {
		changes, err := o.manualChanges(ctx)
		if err != nil {
			return err
		}

		uploads := make([]*remote.WriteRequest, 0, len(changes.LocalOnly))
		for _, f := range changes.LocalOnly {
			req, err := o.xfer.writeRequest(ctx, f.Path, nil)
			if err != nil {
				result.addError(err)
				continue
			}
			uploads = append(uploads, req)
		}
		for _, out := range o.batch.WriteAll(ctx, uploads, "vaultsync: push") {
			if out.Err != nil {
				result.addError(out.Err)
				continue
			}
			result.Added++
		}

		for _, r := range changes.RemoteOnly {
			if err := o.xfer.deleteRemote(ctx, r.Path); err != nil {
				result.addError(err)
				continue
			}
			result.Deleted++
		}

		return o.updateHistory(ctx, o.history.Snapshot())
	})
}

// Pull mirrors the remote onto the vault: remote only files are downloaded
// and local only files deleted. Nothing is transferred when any path differs
// on both sides.
func (o *Orchestrator) Pull(ctx context.Context) (*SyncResult, error) {
	return o.guarded(ctx, "pull", func(ctx context.Context, result *SyncResult) error {
		changes, err := o.manualChanges(ctx)
		if err != nil {
			return err
		}

		for _, r := range changes.RemoteOnly {
			if _, err := o.xfer.pull(ctx, r.Path); err != nil {
				result.addError(err)
				continue
			}
			result.Added++
		}

		for _, f := range changes.LocalOnly {
			if err := o.xfer.deleteLocal(ctx, f.Path, o.opts.UseTrash); err != nil {
				result.addError(err)
				continue
			}
			result.Deleted++
		}

		return o.updateHistory(ctx, o.history.Snapshot())
	})
}

func (o *Orchestrator) manualChanges(ctx context.Context) (*Changes, error) {
	local, manifest, err := o.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	changes := DetectChanges(local, manifest)
	if diverged := changes.Diverged(); len(diverged) > 0 {
		paths := make([]string, 0, len(diverged))
		for _, b := range diverged {
			paths = append(paths, b.Path)
		}
		return nil, &ConflictsDetectedError{Paths: paths}
	}
	return changes, nil
}

func localPaths(entries []localstore.FileEntry) mapset.Set[string] {
	s := mapset.NewThreadUnsafeSetWithSize[string](len(entries))
	for _, e := range entries {
		s.Add(utils.NormPath(e.Path))
	}
	return s
}

func remotePaths(records []remote.Record) mapset.Set[string] {
	s := mapset.NewThreadUnsafeSetWithSize[string](len(records))
	for _, r := range records {
		s.Add(utils.NormPath(r.Path))
	}
	return s
}
