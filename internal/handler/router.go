package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"driftwood/itemvault/internal/auth"
	"driftwood/itemvault/internal/config"
	"driftwood/itemvault/internal/handler/middleware"
)

func SetupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	verifier auth.Verifier,
	itemHandler *ItemHandler,
	userHandler *UserHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Query parameter echo, handy for probing deployments
	r.GET("/parameters", func(c *gin.Context) {
		c.JSON(200, gin.H{"request parameters": c.Request.URL.Query()})
	})

	api := r.Group("/api/v1")
	switch cfg.Auth.Method {
	case "secret":
		api.Use(middleware.SecretAuth(cfg.Auth.Secret))
	default:
		// Bearer tokens are verified when present; mutating operations that
		// need attribution enforce authentication themselves.
		api.Use(middleware.BearerAuth(verifier))
	}

	items := api.Group("/items")
	{
		items.GET("", itemHandler.List)
		items.POST("", itemHandler.Create)
		items.GET("/deleted", itemHandler.Deleted)
		items.GET("/:id", itemHandler.Get)
		items.PUT("/:id", itemHandler.Update)
		items.DELETE("/:id", itemHandler.Delete)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.RequireAuthenticated())
	{
		admin.GET("/users", userHandler.List)
		admin.POST("/users", userHandler.Create)
		admin.DELETE("/users/:id", userHandler.Delete)
		admin.PATCH("/users/:id/admin-status", userHandler.UpdateAdminStatus)
	}

	return r
}
