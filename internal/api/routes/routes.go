package routes

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"chat-gateway/internal/api/handlers"
	"chat-gateway/internal/api/middleware"
	"chat-gateway/internal/config"
	"chat-gateway/internal/gateway"
)

type Router struct {
	engine       *gin.Engine
	wsHandler    *handlers.WSHandler
	hooksHandler *handlers.MessageHooksHandler
	presence     *handlers.PresenceHandler
	rateLimitMW  *middleware.RateLimitMiddleware
	serviceToken string
}

func NewRouter(
	hub *gateway.Hub,
	redisClient *redis.Client,
	cfg *config.Config,
	logger *slog.Logger,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(cfg.Gateway.AllowedOrigins))
	engine.Use(middleware.LogApi())

	return &Router{
		engine:       engine,
		wsHandler:    handlers.NewWSHandler(hub, cfg.Gateway.AllowedOrigins, logger),
		hooksHandler: handlers.NewMessageHooksHandler(hub),
		presence:     handlers.NewPresenceHandler(hub),
		rateLimitMW:  middleware.NewRateLimitMiddleware(redisClient),
		serviceToken: cfg.Gateway.ServiceToken,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.engine.Group("/api/v1")
	{
		// WebSocket endpoint; auth happens inside the hub so unauthenticated
		// connections get their grace period.
		api.GET("/ws",
			r.rateLimitMW.RateLimitIP(30, time.Minute),
			r.wsHandler.HandleWebSocket,
		)

		presence := api.Group("/presence")
		presence.Use(r.rateLimitMW.RateLimitIP(100, time.Minute))
		{
			presence.GET("/online", r.presence.OnlineUsers)
		}
	}

	// Service-to-service hooks: the message service reports out-of-band
	// mutations here so connected clients hear about them.
	internal := r.engine.Group("/internal/v1")
	internal.Use(middleware.RequireServiceToken(r.serviceToken))
	{
		internal.POST("/messages/updated", r.hooksHandler.MessageUpdated)
		internal.POST("/messages/deleted", r.hooksHandler.MessageDeleted)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
