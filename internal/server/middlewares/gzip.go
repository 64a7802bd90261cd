package middlewares

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

var (
	excludedPaths = []string{
		"/health",
		"/events",
	}
	excludedExtensions = []string{
		".png", ".gif", ".jpeg", ".jpg", ".webp", ".ico",
		".zip", ".tar", ".gz", ".bz2", ".rar", ".7z",
		".mp3", ".m4a", ".ogg", ".flac",
		".mp4", ".mov", ".webm", ".pdf",
		".avif", ".heic",
		".woff", ".woff2",
	}
)

// GZIP compresses manifest and note responses. Vault attachments that are
// already compressed are sent as is.
func GZIP() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.BestSpeed,
		gzip.WithExcludedPaths(excludedPaths),
		gzip.WithExcludedExtensions(excludedExtensions),
	)
}
