package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-realtime-events/internal/infrastructure/hub"
	"go-realtime-events/internal/infrastructure/logger"
	"go-realtime-events/internal/interfaces/sse"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(
	log logger.Logger,
	registry *hub.Registry,
	notifier sse.RunningChecker,
	opts sse.Options,
	allowedOrigins []string,
	authenticate gin.HandlerFunc,
	rg *gin.RouterGroup,
) {
	wsHandler := NewWebSocketHandler(registry, notifier, opts, OriginChecker(allowedOrigins), log)

	rg.GET("/events/ws", authenticate, wsHandler.Connect)
}

// OriginChecker accepts requests without an Origin header, any origin when "*" is
// listed, and otherwise only the listed origins.
func OriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
