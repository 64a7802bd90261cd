package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/imroc/req/v3"
)

const (
	pathHealth    = "/health"
	pathManifest  = "/manifest"
	pathFile      = "/file/"
	pathSync      = "/sync"
	pathSyncBatch = "/sync/batch"

	HeaderFileRevision = "X-File-Revision"
	HeaderFileHash     = "X-File-Hash"
)

// ServerBackend talks to a vaultsync ledger server.
type ServerBackend struct {
	client *req.Client
}

var (
	_ Backend       = (*ServerBackend)(nil)
	_ BatchWriter   = (*ServerBackend)(nil)
	_ HealthChecker = (*ServerBackend)(nil)
)

func NewServerBackend(serverURL, apiKey string) (*ServerBackend, error) {
	if serverURL == "" {
		return nil, errors.New("remote: server url missing")
	}
	return &ServerBackend{client: newHTTPClient(serverURL, apiKey)}, nil
}

// BaseURL is the server this backend talks to.
func (s *ServerBackend) BaseURL() string {
	return s.client.BaseURL
}

// Header returns the headers sent with every request.
func (s *ServerBackend) Header() http.Header {
	return s.client.Headers.Clone()
}

func (s *ServerBackend) Health(ctx context.Context) error {
	resp, err := s.client.R().
		SetContext(ctx).
		Get(pathHealth)
	return responseError(resp, err, "health")
}

func (s *ServerBackend) Manifest(ctx context.Context) ([]Record, error) {
	var apiResp manifestResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetSuccessResult(&apiResp).
		Get(pathManifest)
	if err := responseError(resp, err, "manifest"); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(apiResp.Files))
	for _, f := range apiResp.Files {
		records = append(records, Record{
			Path:        f.Path,
			Hash:        f.Hash,
			Size:        f.Size,
			Revision:    f.Revision,
			CommittedAt: time.Unix(f.UpdatedAt, 0),
		})
	}
	return records, nil
}

func (s *ServerBackend) Read(ctx context.Context, path string) (*File, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		Get(pathFile + escapePath(path))
	if err := responseError(resp, err, "read "+path); err != nil {
		return nil, err
	}

	content, err := resp.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("remote: read %s: %w", path, err)
	}

	rev, err := strconv.ParseUint(resp.GetHeader(HeaderFileRevision), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("remote: read %s: bad revision header: %w", path, err)
	}

	return &File{
		Path:     path,
		Content:  content,
		Hash:     resp.GetHeader(HeaderFileHash),
		Revision: rev,
	}, nil
}

func (s *ServerBackend) Write(ctx context.Context, wr *WriteRequest) (*WriteResult, error) {
	var apiResp syncResponse
	var apiErr errorResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(&syncRequest{
			Path:           wr.Path,
			Content:        wr.Content,
			ClientRevision: wr.BaseRevision,
		}).
		SetSuccessResult(&apiResp).
		SetErrorResult(&apiErr).
		Post(pathSync)

	if err == nil && resp.GetStatusCode() == http.StatusConflict {
		return nil, &ConflictError{Path: wr.Path, ServerRevision: apiErr.ServerRevision, ServerHash: apiErr.ServerHash}
	}
	if err := responseError(resp, err, "write "+wr.Path); err != nil {
		return nil, err
	}

	return &WriteResult{Path: wr.Path, Hash: apiResp.Hash, Revision: apiResp.Revision}, nil
}

// WriteBatch applies all writes in a single server transaction. Either every
// write is committed or none is.
func (s *ServerBackend) WriteBatch(ctx context.Context, reqs []*WriteRequest, message string) ([]*WriteResult, error) {
	body := &batchSyncRequest{
		Files:   make([]*syncRequest, 0, len(reqs)),
		Message: message,
	}
	for _, wr := range reqs {
		body.Files = append(body.Files, &syncRequest{
			Path:           wr.Path,
			Content:        wr.Content,
			ClientRevision: wr.BaseRevision,
		})
	}

	var apiResp batchSyncResponse
	var apiErr errorResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		SetSuccessResult(&apiResp).
		SetErrorResult(&apiErr).
		Post(pathSyncBatch)

	if err == nil && resp.GetStatusCode() == http.StatusConflict {
		return nil, &ConflictError{Path: apiErr.Path, ServerRevision: apiErr.ServerRevision, ServerHash: apiErr.ServerHash}
	}
	if err := responseError(resp, err, "batch write"); err != nil {
		return nil, err
	}

	results := make([]*WriteResult, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		results = append(results, &WriteResult{Path: r.Path, Hash: r.Hash, Revision: r.Revision})
	}
	return results, nil
}

func (s *ServerBackend) Delete(ctx context.Context, path string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		Delete(pathFile + escapePath(path))
	return responseError(resp, err, "delete "+path)
}
