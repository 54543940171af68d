package sse

import (
	"github.com/gin-gonic/gin"

	"go-realtime-events/internal/infrastructure/hub"
	"go-realtime-events/internal/infrastructure/logger"
)

func InitSSERouter(
	log logger.Logger,
	registry *hub.Registry,
	notifier RunningChecker,
	opts Options,
	authenticate gin.HandlerFunc,
	rg *gin.RouterGroup,
) {
	sseHandler := NewServerSentEventHandler(registry, notifier, opts, log)

	rg.GET("/events/stream", authenticate, sseHandler.Connect)
	rg.GET("/api/v1/events/stream", authenticate, sseHandler.Connect)
}
