package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/vaultsync/internal/client/hasher"
)

const DefaultTreeAPIURL = "https://api.github.com"

// TreeConfig points a TreeBackend at one branch of one repository.
type TreeConfig struct {
	APIURL string
	Owner  string
	Repo   string
	Branch string
	Token  string
}

func (c *TreeConfig) Validate() error {
	if c.Owner == "" || c.Repo == "" {
		return errors.New("remote: tree owner and repo are required")
	}
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.APIURL == "" {
		c.APIURL = DefaultTreeAPIURL
	}
	return nil
}

// TreeBackend syncs against a git hosting REST API (contents, trees and
// commits endpoints). Hashes are git blob ids and revisions are not
// tracked, so optimistic checks use the blob id instead.
type TreeBackend struct {
	client *req.Client
	cfg    TreeConfig

	mu   sync.Mutex
	shas map[string]string
}

var (
	_ Backend       = (*TreeBackend)(nil)
	_ BatchWriter   = (*TreeBackend)(nil)
	_ HealthChecker = (*TreeBackend)(nil)
	_ ContentHasher = (*TreeBackend)(nil)
)

func NewTreeBackend(cfg TreeConfig) (*TreeBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := newHTTPClient(strings.TrimSuffix(cfg.APIURL, "/"), cfg.Token).
		SetCommonHeader("Accept", "application/vnd.github+json")

	return &TreeBackend{
		client: client,
		cfg:    cfg,
		shas:   make(map[string]string),
	}, nil
}

func (t *TreeBackend) ContentHasher() hasher.Hasher {
	return hasher.GitBlob{}
}

func (t *TreeBackend) repoPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/%s%s", t.cfg.Owner, t.cfg.Repo, suffix)
}

func (t *TreeBackend) Health(ctx context.Context) error {
	resp, err := t.client.R().
		SetContext(ctx).
		Get(t.repoPath(""))
	return responseError(resp, err, "health")
}

// head returns the commit sha and tree sha at the tip of the branch. An empty
// sha and no error means the branch does not exist yet.
func (t *TreeBackend) head(ctx context.Context) (commitSHA string, treeSHA string, committedAt time.Time, err error) {
	var branch treeBranch
	resp, err := t.client.R().
		SetContext(ctx).
		SetSuccessResult(&branch).
		Get(t.repoPath("/branches/" + t.cfg.Branch))
	if err == nil && (resp.GetStatusCode() == http.StatusNotFound || resp.GetStatusCode() == http.StatusConflict) {
		// missing branch or empty repository
		return "", "", time.Time{}, nil
	}
	if err := responseError(resp, err, "branch"); err != nil {
		return "", "", time.Time{}, err
	}

	c := branch.Commit
	return c.SHA, c.Commit.Tree.SHA, c.Commit.Author.Date, nil
}

func (t *TreeBackend) Manifest(ctx context.Context) ([]Record, error) {
	_, treeSHA, committedAt, err := t.head(ctx)
	if err != nil {
		return nil, err
	}
	if treeSHA == "" {
		t.mu.Lock()
		clear(t.shas)
		t.mu.Unlock()
		return []Record{}, nil
	}

	var tree treeResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParam("recursive", "1").
		SetSuccessResult(&tree).
		Get(t.repoPath("/git/trees/" + treeSHA))
	if err := responseError(resp, err, "tree"); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(tree.Tree))
	shas := make(map[string]string, len(tree.Tree))
	for _, e := range tree.Tree {
		if e.Type != "blob" {
			continue
		}
		records = append(records, Record{
			Path:        e.Path,
			Hash:        e.SHA,
			Size:        e.Size,
			CommittedAt: committedAt,
		})
		shas[e.Path] = e.SHA
	}

	t.mu.Lock()
	t.shas = shas
	t.mu.Unlock()

	return records, nil
}

func (t *TreeBackend) contents(ctx context.Context, path string) (*contentsResponse, error) {
	var c contentsResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParam("ref", t.cfg.Branch).
		SetSuccessResult(&c).
		Get(t.repoPath("/contents/" + escapePath(path)))
	if err := responseError(resp, err, "read "+path); err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *TreeBackend) Read(ctx context.Context, path string) (*File, error) {
	c, err := t.contents(ctx, path)
	if err != nil {
		return nil, err
	}
	if c.Type != "" && c.Type != "file" {
		return nil, &StatusError{Op: "read " + path, StatusCode: http.StatusNotFound, Message: "not a file"}
	}

	content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(c.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("remote: read %s: decode content: %w", path, err)
	}

	t.rememberSHA(path, c.SHA)
	return &File{Path: path, Content: content, Hash: c.SHA}, nil
}

func (t *TreeBackend) rememberSHA(path, sha string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sha == "" {
		delete(t.shas, path)
		return
	}
	t.shas[path] = sha
}

// currentSHA resolves the blob id the contents API requires for updates and
// deletes. An empty result means the path does not exist.
func (t *TreeBackend) currentSHA(ctx context.Context, path, hint string) (string, error) {
	if hint != "" {
		return hint, nil
	}

	t.mu.Lock()
	sha, ok := t.shas[path]
	t.mu.Unlock()
	if ok {
		return sha, nil
	}

	c, err := t.contents(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return c.SHA, nil
}

func (t *TreeBackend) Write(ctx context.Context, wr *WriteRequest) (*WriteResult, error) {
	sha, err := t.currentSHA(ctx, wr.Path, wr.BaseHash)
	if err != nil {
		return nil, err
	}

	body := &putContentsRequest{
		Message: "Update " + wr.Path,
		Content: base64.StdEncoding.EncodeToString(wr.Content),
		SHA:     sha,
		Branch:  t.cfg.Branch,
	}
	if sha == "" {
		body.Message = "Add " + wr.Path
	}

	var apiResp putContentsResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(body).
		SetSuccessResult(&apiResp).
		Put(t.repoPath("/contents/" + escapePath(wr.Path)))

	if err == nil && (resp.GetStatusCode() == http.StatusConflict || resp.GetStatusCode() == http.StatusUnprocessableEntity) {
		t.mu.Lock()
		delete(t.shas, wr.Path)
		t.mu.Unlock()
		return nil, &ConflictError{Path: wr.Path}
	}
	if err := responseError(resp, err, "write "+wr.Path); err != nil {
		return nil, err
	}

	t.rememberSHA(wr.Path, apiResp.Content.SHA)
	return &WriteResult{Path: wr.Path, Hash: apiResp.Content.SHA}, nil
}

func (t *TreeBackend) Delete(ctx context.Context, path string) error {
	sha, err := t.currentSHA(ctx, path, "")
	if err != nil {
		return err
	}
	if sha == "" {
		return fmt.Errorf("remote: delete %s: %w", path, ErrNotFound)
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(&deleteContentsRequest{
			Message: "Delete " + path,
			SHA:     sha,
			Branch:  t.cfg.Branch,
		}).
		Delete(t.repoPath("/contents/" + escapePath(path)))
	if err := responseError(resp, err, "delete "+path); err != nil {
		return err
	}

	t.rememberSHA(path, "")
	return nil
}

// WriteBatch creates one commit containing every write, on top of the current
// branch tip. Per path base checks are not enforced; the ref update fails if
// the branch moved underneath.
func (t *TreeBackend) WriteBatch(ctx context.Context, reqs []*WriteRequest, message string) ([]*WriteResult, error) {
	parentSHA, baseTreeSHA, _, err := t.head(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]treeEntry, 0, len(reqs))
	results := make([]*WriteResult, 0, len(reqs))
	for _, wr := range reqs {
		var blob createdObject
		resp, err := t.client.R().
			SetContext(ctx).
			SetBody(&createBlobRequest{
				Content:  base64.StdEncoding.EncodeToString(wr.Content),
				Encoding: "base64",
			}).
			SetSuccessResult(&blob).
			Post(t.repoPath("/git/blobs"))
		if err := responseError(resp, err, "create blob "+wr.Path); err != nil {
			return nil, err
		}

		entries = append(entries, treeEntry{Path: wr.Path, Mode: "100644", Type: "blob", SHA: blob.SHA})
		results = append(results, &WriteResult{Path: wr.Path, Hash: blob.SHA})
	}

	var tree createdObject
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(&createTreeRequest{BaseTree: baseTreeSHA, Tree: entries}).
		SetSuccessResult(&tree).
		Post(t.repoPath("/git/trees"))
	if err := responseError(resp, err, "create tree"); err != nil {
		return nil, err
	}

	if message == "" {
		message = fmt.Sprintf("Sync %d files", len(reqs))
	}
	commitReq := &createCommitRequest{Message: message, Tree: tree.SHA, Parents: []string{}}
	if parentSHA != "" {
		commitReq.Parents = []string{parentSHA}
	}

	var commit createdObject
	resp, err = t.client.R().
		SetContext(ctx).
		SetBody(commitReq).
		SetSuccessResult(&commit).
		Post(t.repoPath("/git/commits"))
	if err := responseError(resp, err, "create commit"); err != nil {
		return nil, err
	}

	if parentSHA == "" {
		resp, err = t.client.R().
			SetContext(ctx).
			SetBody(&createRefRequest{Ref: "refs/heads/" + t.cfg.Branch, SHA: commit.SHA}).
			Post(t.repoPath("/git/refs"))
	} else {
		resp, err = t.client.R().
			SetContext(ctx).
			SetBody(&updateRefRequest{SHA: commit.SHA}).
			Patch(t.repoPath("/git/refs/heads/" + t.cfg.Branch))
	}
	if err == nil && resp.GetStatusCode() == http.StatusUnprocessableEntity {
		return nil, &ConflictError{Path: reqs[0].Path}
	}
	if err := responseError(resp, err, "update ref"); err != nil {
		return nil, err
	}

	for _, r := range results {
		t.rememberSHA(r.Path, r.Hash)
	}
	return results, nil
}
