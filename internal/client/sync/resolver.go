package sync

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/openmined/vaultsync/internal/client/remote"
)

type Action int

const (
	ActionUnchanged Action = iota
	ActionPush
	ActionPull
	ActionConflict
)

func (a Action) String() string {
	switch a {
	case ActionUnchanged:
		return "unchanged"
	case ActionPush:
		return "push"
	case ActionPull:
		return "pull"
	case ActionConflict:
		return "conflict"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

type ConflictPolicy string

const (
	PolicyLastWriteWins ConflictPolicy = "last-write-wins"
	PolicyConflictFile  ConflictPolicy = "create-conflict-file"
)

func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(s); p {
	case PolicyLastWriteWins, PolicyConflictFile:
		return p, nil
	case "":
		return PolicyLastWriteWins, nil
	}
	return "", fmt.Errorf("unknown conflict resolution %q", s)
}

const conflictStampFormat = "2006-01-02_15-04-05"

// ConflictFileName derives the sibling path that receives the remote side of
// a conflict: the marker goes before the extension, or at the end when the
// name has none. Dotfiles such as .gitignore have no extension.
func ConflictFileName(p string, at time.Time) string {
	marker := ".conflict-" + at.UTC().Format(conflictStampFormat)
	ext := path.Ext(p)
	if ext == path.Base(p) {
		ext = ""
	}
	return strings.TrimSuffix(p, ext) + marker + ext
}

// Classify decides what a path present on both sides needs, from its two
// hashes and the last synchronized hash.
func Classify(b BothEntry, history *HistoryTracker) Action {
	if b.Local.Hash == b.Remote.Hash {
		return ActionUnchanged
	}

	last, ok := history.Get(b.Path)
	if !ok {
		return ActionConflict
	}

	localChanged := b.Local.Hash != last.Hash
	remoteChanged := b.Remote.Hash != last.Hash
	switch {
	case localChanged && !remoteChanged:
		return ActionPush
	case remoteChanged && !localChanged:
		return ActionPull
	}
	return ActionConflict
}

// Resolution is what happened to one diverged path.
type Resolution struct {
	Path   string
	Action Action
	// Applied is the transfer made for a conflict: push or pull.
	Applied      Action
	ConflictPath string
	Revision     uint64
}

// ConflictResolver settles paths that differ between the vault and the remote.
type ConflictResolver struct {
	policy  ConflictPolicy
	history *HistoryTracker
	xfer    *transfer
	clock   clockwork.Clock
}

func (r *ConflictResolver) Resolve(ctx context.Context, b BothEntry) (*Resolution, error) {
	res := &Resolution{Path: b.Path, Action: Classify(b, r.history)}

	switch res.Action {
	case ActionUnchanged:
		return res, nil
	case ActionPush:
		return res, r.push(ctx, res, b.Path, &b.Remote)
	case ActionPull:
		return res, r.pull(ctx, res, b.Path)
	}

	if r.policy == PolicyConflictFile {
		f, err := r.xfer.fetch(ctx, b.Path)
		if err != nil {
			return res, err
		}
		return res, r.keepBoth(ctx, res, b.Path, f)
	}

	// last write wins, remote wins ties
	if b.Local.ModifiedAt.After(b.Remote.CommittedAt) {
		res.Applied = ActionPush
		return res, r.push(ctx, res, b.Path, &b.Remote)
	}
	res.Applied = ActionPull
	return res, r.pull(ctx, res, b.Path)
}

// push uploads the vault copy over base. A write rejected because the remote
// moved past base is settled by settleRejected.
func (r *ConflictResolver) push(ctx context.Context, res *Resolution, p string, base *remote.Record) error {
	err := r.pushOnce(ctx, res, p, base)
	if errors.Is(err, remote.ErrConflict) {
		return r.settleRejected(ctx, res, p)
	}
	return err
}

func (r *ConflictResolver) pushOnce(ctx context.Context, res *Resolution, p string, base *remote.Record) error {
	wr, err := r.xfer.push(ctx, p, base)
	if err != nil {
		return err
	}
	res.Revision = wr.Revision
	return nil
}

func (r *ConflictResolver) pull(ctx context.Context, res *Resolution, p string) error {
	f, err := r.xfer.pull(ctx, p)
	if err != nil {
		return err
	}
	res.Revision = f.Revision
	return nil
}

// settleRejected handles a write the remote refused because another writer
// committed after the manifest was read. The remote copy is read again and
// the policy applies with its revision as the new base. The rival commit
// landed after the vault was listed, so last write wins keeps it.
func (r *ConflictResolver) settleRejected(ctx context.Context, res *Resolution, p string) error {
	f, err := r.xfer.fetch(ctx, p)
	if err != nil {
		return err
	}
	res.Action = ActionConflict
	r.xfer.log.Warn("sync write rejected", "path", p, "server_revision", f.Revision)

	if r.policy == PolicyConflictFile {
		return r.keepBoth(ctx, res, p, f)
	}

	if err := r.xfer.local.Write(ctx, p, f.Content); err != nil {
		return fmt.Errorf("write local %s: %w", p, err)
	}
	res.Applied = ActionPull
	res.Revision = f.Revision
	return nil
}

// settleUpload resolves a path whose upload was refused with a conflict.
func (r *ConflictResolver) settleUpload(ctx context.Context, p string) (*Resolution, error) {
	res := &Resolution{Path: p, Action: ActionConflict}
	return res, r.settleRejected(ctx, res, p)
}

// overwrite replaces the remote copy with the vault copy whatever revision
// the remote is at now.
func (r *ConflictResolver) overwrite(ctx context.Context, p string) (*remote.WriteResult, error) {
	f, err := r.xfer.fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	return r.xfer.push(ctx, p, &remote.Record{Path: p, Hash: f.Hash, Revision: f.Revision})
}

// keepBoth saves the remote version next to the local file, then uploads the
// local file over the remote version it just saved.
func (r *ConflictResolver) keepBoth(ctx context.Context, res *Resolution, p string, f *remote.File) error {
	res.ConflictPath = ConflictFileName(p, r.clock.Now())
	if err := r.xfer.local.Write(ctx, res.ConflictPath, f.Content); err != nil {
		return fmt.Errorf("write conflict file %s: %w", res.ConflictPath, err)
	}

	res.Applied = ActionPush
	return r.pushOnce(ctx, res, p, &remote.Record{Path: p, Hash: f.Hash, Revision: f.Revision})
}
