package files

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openmined/vaultsync/internal/events"
	"github.com/openmined/vaultsync/internal/server/blob"
	"github.com/openmined/vaultsync/internal/server/handlers/api"
	"github.com/openmined/vaultsync/internal/server/ledger"
)

const (
	HeaderFileRevision = "X-File-Revision"
	HeaderFileHash     = "X-File-Hash"
	HeaderDeviceID     = "X-Vaultsync-Device-Id"

	maxBatchFiles = 100
)

// Broadcaster fans change events out to subscribers.
type Broadcaster interface {
	Broadcast(ev *events.Event)
}

type FilesHandler struct {
	ledger *ledger.Ledger
	events Broadcaster
}

func New(l *ledger.Ledger, events Broadcaster) *FilesHandler {
	return &FilesHandler{ledger: l, events: events}
}

func (h *FilesHandler) Manifest(ctx *gin.Context) {
	entries, err := h.ledger.Manifest(ctx.Request.Context())
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeManifestFailed, err)
		return
	}

	files := make([]*ManifestEntry, 0, len(entries))
	for _, e := range entries {
		files = append(files, &ManifestEntry{
			Path:      e.Path,
			Hash:      e.Hash,
			Revision:  e.Revision,
			UpdatedAt: e.ModTime().Unix(),
			Size:      e.Size,
		})
	}

	ctx.PureJSON(http.StatusOK, &ManifestResponse{Files: files})
}

func (h *FilesHandler) Read(ctx *gin.Context) {
	path, ok := filePath(ctx)
	if !ok {
		return
	}

	file, err := h.ledger.Get(ctx.Request.Context(), path)
	if errors.Is(err, ledger.ErrNotFound) {
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeFileNotFound, err)
		return
	} else if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeFileReadFailed, err)
		return
	}

	ctx.Header(HeaderFileRevision, strconv.FormatUint(file.Revision, 10))
	ctx.Header(HeaderFileHash, file.Hash)
	ctx.Data(http.StatusOK, "application/octet-stream", file.Content)
}

func (h *FilesHandler) Sync(ctx *gin.Context) {
	var req SyncRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind json: %w", err))
		return
	}
	if err := validateSyncRequest(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	res, err := h.ledger.Write(ctx.Request.Context(), &ledger.WriteRequest{
		Path:            req.Path,
		Content:         req.Content,
		ClaimedRevision: req.ClientRevision,
	})
	if err != nil {
		h.abortWrite(ctx, err)
		return
	}

	slog.Info("file write", "path", res.Path, "revision", res.Revision, "size", len(req.Content))
	h.events.Broadcast(events.NewFileWrite(res.Path, res.Revision, res.Hash, origin(ctx)))

	ctx.PureJSON(http.StatusOK, &SyncResponse{
		Success:  true,
		Path:     res.Path,
		Revision: res.Revision,
		Hash:     res.Hash,
	})
}

// SyncBatch writes every file in one ledger transaction.
func (h *FilesHandler) SyncBatch(ctx *gin.Context) {
	var req BatchSyncRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind json: %w", err))
		return
	}
	if len(req.Files) == 0 {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("files cannot be empty"))
		return
	}
	if len(req.Files) > maxBatchFiles {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("too many files (max %d)", maxBatchFiles))
		return
	}

	writes := make([]*ledger.WriteRequest, 0, len(req.Files))
	for _, f := range req.Files {
		if err := validateSyncRequest(f); err != nil {
			api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
			return
		}
		writes = append(writes, &ledger.WriteRequest{Path: f.Path, Content: f.Content, ClaimedRevision: f.ClientRevision})
	}

	results, err := h.ledger.WriteBatch(ctx.Request.Context(), writes)
	if err != nil {
		h.abortWrite(ctx, err)
		return
	}

	commitID := uuid.NewString()
	slog.Info("batch write", "commit", commitID, "files", len(results), "message", req.Message)

	from := origin(ctx)
	resp := &BatchSyncResponse{Success: true, CommitID: commitID, Results: make([]*SyncResponse, 0, len(results))}
	for _, r := range results {
		h.events.Broadcast(events.NewFileWrite(r.Path, r.Revision, r.Hash, from))
		resp.Results = append(resp.Results, &SyncResponse{Success: true, Path: r.Path, Revision: r.Revision, Hash: r.Hash})
	}

	ctx.PureJSON(http.StatusOK, resp)
}

func (h *FilesHandler) Delete(ctx *gin.Context) {
	path, ok := filePath(ctx)
	if !ok {
		return
	}

	err := h.ledger.Delete(ctx.Request.Context(), path)
	if errors.Is(err, ledger.ErrNotFound) {
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeFileNotFound, err)
		return
	} else if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeFileDeleteFailed, err)
		return
	}

	slog.Info("file delete", "path", path)
	h.events.Broadcast(events.NewFileDelete(path, origin(ctx)))

	ctx.PureJSON(http.StatusOK, &DeleteResponse{Success: true, Path: path})
}

func (h *FilesHandler) abortWrite(ctx *gin.Context, err error) {
	var conflict *ledger.ConflictError
	switch {
	case errors.As(err, &conflict):
		ctx.Error(err)
		api.AbortWithConflict(ctx, conflict.Path, conflict.CurrentRevision, conflict.CurrentHash)
	case errors.Is(err, ledger.ErrNoPath), errors.Is(err, blob.ErrInvalidKey):
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeFileInvalidPath, err)
	default:
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeFileWriteFailed, err)
	}
}

func validateSyncRequest(req *SyncRequest) error {
	if req.Path == "" {
		return fmt.Errorf("path missing")
	}
	if req.Content == nil {
		return fmt.Errorf("content missing for %s", req.Path)
	}
	return nil
}

func filePath(ctx *gin.Context) (string, bool) {
	path := strings.TrimPrefix(ctx.Param("path"), "/")
	if !blob.ValidateKey(path) {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeFileInvalidPath, fmt.Errorf("invalid path %q", path))
		return "", false
	}
	return path, true
}

func origin(ctx *gin.Context) string {
	return ctx.GetHeader(HeaderDeviceID)
}
