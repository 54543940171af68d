package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-realtime-events/internal/config"
	"go-realtime-events/internal/infrastructure/auth"
	"go-realtime-events/internal/infrastructure/fanout"
	"go-realtime-events/internal/infrastructure/hub"
	"go-realtime-events/internal/infrastructure/logger"
	"go-realtime-events/internal/interfaces/middleware"
	"go-realtime-events/internal/interfaces/rest/v1/handler"
	"go-realtime-events/internal/interfaces/sse"
	"go-realtime-events/internal/interfaces/websocket"
	"go-realtime-events/internal/port/inbound"
)

func InitRouter(
	cfg *config.Config,
	log logger.Logger,
	registry *hub.Registry,
	notifier *fanout.Notifier,
	notifications inbound.NotificationUseCase,
	authenticator auth.Authenticator,
) http.Handler {
	if logger.ParseLevel(cfg.Log.Level) != logger.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestLogger(log))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	rootGroup := router.Group("")
	authenticate := middleware.Authenticate(authenticator, log)

	streamOpts := sse.Options{
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		WriteTimeout:      cfg.Stream.WriteTimeout,
		QueueSize:         cfg.Stream.SendQueueSize,
	}
	sse.InitSSERouter(log, registry, notifier, streamOpts, authenticate, rootGroup)
	websocket.InitWebSocketRouter(log, registry, notifier, streamOpts, cfg.Server.AllowedOrigins, authenticate, rootGroup)

	handler.InitRESTRouter(log, handler.Dependencies{
		Publisher:     notifier,
		Notifications: notifications,
		Registry:      registry,
		Stats:         notifier,
		InstanceID:    cfg.Instance.ID,
	}, authenticate, middleware.RequireRole(handler.AdminRole), rootGroup)

	return router
}
