package sync

import (
	"context"
	"slices"
	gosync "sync"
	"time"

	"github.com/openmined/vaultsync/internal/client/hasher"
	"github.com/openmined/vaultsync/internal/client/remote"
)

type fakeFile struct {
	content     []byte
	revision    uint64
	committedAt time.Time
}

// fakeRemote is an in memory ledger with the same revision rules as the
// server.
type fakeRemote struct {
	mu    gosync.Mutex
	files map[string]*fakeFile
	now   func() time.Time

	manifestErr   error
	batchErr      error
	writeErr      map[string]error
	afterManifest func()
	blockManifest chan struct{}
	// strictCreate rejects a write without a base revision on an existing
	// path, as the tree backend does
	strictCreate bool

	writes  []string
	batches int
	deletes []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files:    map[string]*fakeFile{},
		now:      time.Now,
		writeErr: map[string]error{},
	}
}

func (f *fakeRemote) hash(b []byte) string {
	return hasher.SHA256{}.Hash(b)
}

// put sets content directly, as another client would.
func (f *fakeRemote) put(path, content string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putLocked(path, []byte(content))
}

func (f *fakeRemote) putAt(path, content string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putLocked(path, []byte(content))
	f.files[path].committedAt = at
}

func (f *fakeRemote) putLocked(path string, content []byte) uint64 {
	rev := uint64(1)
	if cur, ok := f.files[path]; ok {
		rev = cur.revision + 1
	}
	f.files[path] = &fakeFile{content: slices.Clone(content), revision: rev, committedAt: f.now()}
	return rev
}

func (f *fakeRemote) remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
}

func (f *fakeRemote) content(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.files[path]
	if !ok {
		return "", false
	}
	return string(cur.content), true
}

func (f *fakeRemote) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.files {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func (f *fakeRemote) Manifest(ctx context.Context) ([]remote.Record, error) {
	if f.blockManifest != nil {
		<-f.blockManifest
	}

	f.mu.Lock()
	if f.manifestErr != nil {
		f.mu.Unlock()
		return nil, f.manifestErr
	}
	records := make([]remote.Record, 0, len(f.files))
	for p, file := range f.files {
		records = append(records, remote.Record{
			Path:        p,
			Hash:        f.hash(file.content),
			Size:        int64(len(file.content)),
			Revision:    file.revision,
			CommittedAt: file.committedAt,
		})
	}
	hook := f.afterManifest
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return records, nil
}

func (f *fakeRemote) Read(ctx context.Context, path string) (*remote.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.files[path]
	if !ok {
		return nil, &remote.StatusError{Op: "read", StatusCode: 404}
	}
	return &remote.File{Path: path, Content: slices.Clone(cur.content), Hash: f.hash(cur.content), Revision: cur.revision}, nil
}

func (f *fakeRemote) writeLocked(req *remote.WriteRequest) (*remote.WriteResult, error) {
	if err := f.writeErr[req.Path]; err != nil {
		return nil, err
	}
	if cur, ok := f.files[req.Path]; ok {
		stale := req.BaseRevision != nil && cur.revision > *req.BaseRevision
		if stale || (f.strictCreate && req.BaseRevision == nil) {
			return nil, &remote.ConflictError{Path: req.Path, ServerRevision: cur.revision, ServerHash: f.hash(cur.content)}
		}
	}
	rev := f.putLocked(req.Path, req.Content)
	f.writes = append(f.writes, req.Path)
	return &remote.WriteResult{Path: req.Path, Hash: f.hash(req.Content), Revision: rev}, nil
}

func (f *fakeRemote) Write(ctx context.Context, req *remote.WriteRequest) (*remote.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeLocked(req)
}

func (f *fakeRemote) WriteBatch(ctx context.Context, reqs []*remote.WriteRequest, message string) ([]*remote.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batches++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	for _, req := range reqs {
		if cur, ok := f.files[req.Path]; ok && req.BaseRevision != nil && cur.revision > *req.BaseRevision {
			return nil, &remote.ConflictError{Path: req.Path, ServerRevision: cur.revision}
		}
	}
	results := make([]*remote.WriteResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := f.writeLocked(req)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (f *fakeRemote) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path]; !ok {
		return &remote.StatusError{Op: "delete", StatusCode: 404}
	}
	delete(f.files, path)
	f.deletes = append(f.deletes, path)
	return nil
}

// singleWriter hides the batch capability of a backend.
type singleWriter struct {
	b remote.Backend
}

func (s singleWriter) Manifest(ctx context.Context) ([]remote.Record, error) { return s.b.Manifest(ctx) }
func (s singleWriter) Read(ctx context.Context, p string) (*remote.File, error) {
	return s.b.Read(ctx, p)
}
func (s singleWriter) Write(ctx context.Context, r *remote.WriteRequest) (*remote.WriteResult, error) {
	return s.b.Write(ctx, r)
}
func (s singleWriter) Delete(ctx context.Context, p string) error { return s.b.Delete(ctx, p) }
