package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(status, APIError{
		Code:    code,
		Message: err.Error(),
	})
}

// AbortWithConflict answers a stale write with the revision and hash the
// writer has to rebase on.
func AbortWithConflict(ctx *gin.Context, path string, serverRevision uint64, serverHash string) {
	ctx.Abort()
	ctx.PureJSON(http.StatusConflict, ConflictResponse{
		Code:           CodeFileConflict,
		Message:        "conflict",
		Path:           path,
		ServerRevision: serverRevision,
		ServerHash:     serverHash,
	})
}
