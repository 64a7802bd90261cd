package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/server/handlers/files"
	"github.com/openmined/vaultsync/internal/server/handlers/ws"
	"github.com/openmined/vaultsync/internal/server/middlewares"
	"github.com/openmined/vaultsync/internal/version"
)

func SetupRoutes(cfg *Config, svc *Services, hub *ws.WebsocketHub) (http.Handler, error) {
	r := gin.New()

	filesH := files.New(svc.Ledger, hub)

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.CORS())
	if cfg.RateLimit != "" {
		limit, err := middlewares.RateLimiter(cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		r.Use(limit)
	}

	r.GET("/", IndexHandler)
	r.GET("/health", HealthHandler)

	api := r.Group("/")
	api.Use(middlewares.APIKeyAuth(cfg.APIKey))
	{
		// websocket events, no gzip on the upgrade
		api.GET("/events", hub.WebsocketHandler)

		fileRoutes := api.Group("/", middlewares.GZIP())
		fileRoutes.GET("/manifest", filesH.Manifest)
		fileRoutes.GET("/file/*path", filesH.Read)
		fileRoutes.DELETE("/file/*path", filesH.Delete)
		fileRoutes.POST("/sync", filesH.Sync)
		fileRoutes.POST("/sync/batch", filesH.SyncBatch)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler(), nil
}

func IndexHandler(ctx *gin.Context) {
	// return a plaintext
	ctx.String(http.StatusOK, version.Detailed())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Version,
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
