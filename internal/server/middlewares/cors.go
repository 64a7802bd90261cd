package middlewares

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS lets browser based clients (the vault app itself) call the API.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:    []string{"*"},
		AllowHeaders:    []string{"Authorization", "Content-Type", "X-Vaultsync-Version", "X-Vaultsync-Device-Id"},
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		ExposeHeaders:   []string{"X-File-Revision", "X-File-Hash"},
		AllowWebSockets: true,
		MaxAge:          12 * time.Hour,
	})
}
