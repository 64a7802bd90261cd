package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/openmined/vaultsync/internal/client/hasher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHost is a single branch repository behind a minimal git REST API.
type fakeGitHost struct {
	mu      sync.Mutex
	files   map[string][]byte
	commits int
	calls   []string
}

func (f *fakeGitHost) sha(content []byte) string {
	return hasher.GitBlob{}.Hash(content)
}

func (f *fakeGitHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimPrefix(r.URL.Path, "/repos/acme/vault")

	switch {
	case r.Method == http.MethodGet && path == "":
		fmt.Fprint(w, `{"full_name":"acme/vault"}`)

	case r.Method == http.MethodGet && path == "/branches/main":
		if f.commits == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"name":"main","commit":{"sha":"commit%d","commit":{"author":{"date":"2024-05-01T10:00:00Z"},"tree":{"sha":"tree%d"}}}}`, f.commits, f.commits)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/git/trees/"):
		var entries []treeEntry
		for p, c := range f.files {
			entries = append(entries, treeEntry{Path: p, Mode: "100644", Type: "blob", SHA: f.sha(c), Size: int64(len(c))})
		}
		entries = append(entries, treeEntry{Path: "dir", Mode: "040000", Type: "tree", SHA: "t"})
		json.NewEncoder(w).Encode(treeResponse{Tree: entries})

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/contents/"):
		p := strings.TrimPrefix(path, "/contents/")
		c, ok := f.files[p]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		enc := base64.StdEncoding.EncodeToString(c)
		// the real API wraps base64 at 60 columns
		if len(enc) > 4 {
			enc = enc[:4] + "\n" + enc[4:]
		}
		json.NewEncoder(w).Encode(contentsResponse{Type: "file", Path: p, SHA: f.sha(c), Content: enc, Encoding: "base64"})

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/contents/"):
		p := strings.TrimPrefix(path, "/contents/")
		var body putContentsRequest
		json.NewDecoder(r.Body).Decode(&body)
		cur, exists := f.files[p]
		if exists && body.SHA != f.sha(cur) || !exists && body.SHA != "" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		c, _ := base64.StdEncoding.DecodeString(body.Content)
		f.files[p] = c
		f.commits++
		fmt.Fprintf(w, `{"content":{"path":%q,"sha":%q}}`, p, f.sha(c))

	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/contents/"):
		p := strings.TrimPrefix(path, "/contents/")
		var body deleteContentsRequest
		json.NewDecoder(r.Body).Decode(&body)
		cur, exists := f.files[p]
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if body.SHA != f.sha(cur) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		delete(f.files, p)
		f.commits++
		fmt.Fprint(w, `{}`)

	case r.Method == http.MethodPost && path == "/git/blobs":
		var body createBlobRequest
		json.NewDecoder(r.Body).Decode(&body)
		c, _ := base64.StdEncoding.DecodeString(body.Content)
		fmt.Fprintf(w, `{"sha":%q}`, f.sha(c)+"|"+body.Content)

	case r.Method == http.MethodPost && path == "/git/trees":
		var body createTreeRequest
		json.NewDecoder(r.Body).Decode(&body)
		for _, e := range body.Tree {
			_, enc, _ := strings.Cut(e.SHA, "|")
			c, _ := base64.StdEncoding.DecodeString(enc)
			f.files[e.Path] = c
		}
		fmt.Fprint(w, `{"sha":"newtree"}`)

	case r.Method == http.MethodPost && path == "/git/commits":
		fmt.Fprint(w, `{"sha":"newcommit"}`)

	case (r.Method == http.MethodPatch && path == "/git/refs/heads/main") ||
		(r.Method == http.MethodPost && path == "/git/refs"):
		f.commits++
		fmt.Fprint(w, `{}`)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestTreeBackend(t *testing.T) (*TreeBackend, *fakeGitHost) {
	t.Helper()
	host := &fakeGitHost{files: map[string][]byte{}}
	srv := httptest.NewServer(host)
	t.Cleanup(srv.Close)

	b, err := NewTreeBackend(TreeConfig{APIURL: srv.URL, Owner: "acme", Repo: "vault", Token: "tok"})
	require.NoError(t, err)
	return b, host
}

func TestTreeConfig_Validate(t *testing.T) {
	cfg := TreeConfig{Owner: "a", Repo: "b"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "main", cfg.Branch)
	assert.Equal(t, DefaultTreeAPIURL, cfg.APIURL)

	assert.Error(t, (&TreeConfig{Owner: "a"}).Validate())
}

func TestTreeBackend_EmptyRepository(t *testing.T) {
	b, _ := newTestTreeBackend(t)

	records, err := b.Manifest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, hasher.GitBlob{}, b.ContentHasher())
	assert.Equal(t, "git-blob", HasherFor(b).Name())
}

func TestTreeBackend_WriteReadManifest(t *testing.T) {
	b, _ := newTestTreeBackend(t)
	ctx := context.Background()

	res, err := b.Write(ctx, &WriteRequest{Path: "notes/a.md", Content: []byte("hello\n")})
	require.NoError(t, err)
	assert.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", res.Hash)

	records, err := b.Manifest(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1, "tree entries are skipped")
	assert.Equal(t, "notes/a.md", records[0].Path)
	assert.Equal(t, res.Hash, records[0].Hash)
	assert.Equal(t, 2024, records[0].CommittedAt.Year())

	f, err := b.Read(ctx, "notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\n"), f.Content)

	// update uses the cached blob id
	res, err = b.Write(ctx, &WriteRequest{Path: "notes/a.md", Content: []byte("v2")})
	require.NoError(t, err)
	assert.Equal(t, hasher.GitBlob{}.Hash([]byte("v2")), res.Hash)
}

func TestTreeBackend_WriteConflict(t *testing.T) {
	b, host := newTestTreeBackend(t)
	ctx := context.Background()

	_, err := b.Write(ctx, &WriteRequest{Path: "a.md", Content: []byte("one")})
	require.NoError(t, err)

	host.mu.Lock()
	host.files["a.md"] = []byte("changed elsewhere")
	host.mu.Unlock()

	_, err = b.Write(ctx, &WriteRequest{Path: "a.md", Content: []byte("two")})
	assert.ErrorIs(t, err, ErrConflict)

	// the stale blob id is forgotten, so the next attempt looks it up again
	_, err = b.Write(ctx, &WriteRequest{Path: "a.md", Content: []byte("two")})
	assert.NoError(t, err)
}

func TestTreeBackend_Delete(t *testing.T) {
	b, host := newTestTreeBackend(t)
	ctx := context.Background()

	_, err := b.Write(ctx, &WriteRequest{Path: "a.md", Content: []byte("x")})
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx, "a.md"))
	assert.NotContains(t, host.files, "a.md")
	assert.ErrorIs(t, b.Delete(ctx, "a.md"), ErrNotFound)
}

func TestTreeBackend_WriteBatch(t *testing.T) {
	b, host := newTestTreeBackend(t)
	ctx := context.Background()

	res, err := b.WriteBatch(ctx, []*WriteRequest{
		{Path: "a.md", Content: []byte("a")},
		{Path: "b.md", Content: []byte("b")},
	}, "")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, []byte("a"), host.files["a.md"])
	assert.Equal(t, []byte("b"), host.files["b.md"])
	assert.Contains(t, host.calls, "POST /repos/acme/vault/git/refs", "empty repository creates the branch")

	_, err = b.WriteBatch(ctx, []*WriteRequest{{Path: "c.md", Content: []byte("c")}}, "one more")
	require.NoError(t, err)
	assert.Contains(t, host.calls, "PATCH /repos/acme/vault/git/refs/heads/main")
}
