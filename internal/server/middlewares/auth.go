package middlewares

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/server/handlers/api"
)

var (
	errAuthMissing = errors.New("authorization header missing")
	errAuthInvalid = errors.New("invalid api key")
)

// APIKeyAuth requires "Authorization: Bearer <apiKey>". An empty apiKey
// disables the check.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if apiKey == "" {
			ctx.Next()
			return
		}

		header := ctx.GetHeader("Authorization")
		if header == "" {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeUnauthorized, errAuthMissing)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeUnauthorized, errAuthInvalid)
			return
		}

		ctx.Next()
	}
}
