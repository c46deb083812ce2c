package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marcus-tan/askleads/internal/api/chat"
	"github.com/marcus-tan/askleads/internal/api/middleware"
	"github.com/marcus-tan/askleads/internal/api/system"
	"github.com/marcus-tan/askleads/internal/config"
	"github.com/marcus-tan/askleads/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	AllowOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(
	cfg *config.Config,
	chatService *service.ChatService,
	logger *zap.Logger,
	routerCfg RouterConfig,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(middleware.CORS(routerCfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute)
	}

	// Answer stream + cancellation
	chatHandler := chat.NewHandler(cfg, chatService, logger)
	chatGroup := r.Group("/api/chat")
	chatGroup.Use(middleware.RateLimit(limiter))
	chatHandler.RegisterRoutes(chatGroup)

	// Environment probe and scrape passthrough
	systemHandler := system.NewHandler(cfg, logger)
	r.GET("/api/check-env", systemHandler.CheckEnv)
	r.POST("/api/scrape", middleware.RateLimit(limiter), systemHandler.Scrape)

	return r
}
