package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"go-realtime-events/internal/infrastructure/hub"
	"go-realtime-events/internal/infrastructure/logger"
	"go-realtime-events/internal/interfaces/middleware"
	"go-realtime-events/internal/interfaces/sse"
)

const (
	maxMessageSize = 4096
	drainTimeout   = 5 * time.Second
)

// WebSocketHandler serves the same event stream as the SSE endpoint over a websocket.
// Events arrive as JSON text messages; anything the client sends is ignored.
type WebSocketHandler struct {
	registry *hub.Registry
	notifier sse.RunningChecker
	opts     sse.Options
	logger   logger.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(
	registry *hub.Registry,
	notifier sse.RunningChecker,
	opts sse.Options,
	checkOrigin func(r *http.Request) bool,
	log logger.Logger,
) *WebSocketHandler {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	return &WebSocketHandler{
		registry: registry,
		notifier: notifier,
		opts:     opts,
		logger:   log.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *WebSocketHandler) Connect(c *gin.Context) {
	id, ok := middleware.Identity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if !h.notifier.IsRunning() {
		h.logger.Warn("rejecting websocket, notifier is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("upgrade failed")
		return
	}

	conn := hub.NewConnection(id.UserID, id.TenantID,
		hub.NewWebSocketStream(ws, h.opts.WriteTimeout), h.logger,
		hub.WithWriteTimeout(h.opts.WriteTimeout), hub.WithQueueSize(h.opts.QueueSize))
	h.registry.Add(conn)
	defer h.release(conn)

	// The request context does not end when a hijacked client goes away; the read
	// pump does.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go h.readPump(ws, cancel)

	data, err := hub.MarshalData(gin.H{
		"connectionId": conn.ID(),
		"userId":       conn.UserID(),
		"tenantId":     conn.TenantID(),
		"connectedAt":  conn.ConnectedAt(),
	})
	if err != nil {
		h.logger.WithError(err).Error("encode connected event")
		return
	}
	if err := conn.WriteEvent(ctx, hub.EventConnected, data); err != nil {
		return
	}
	h.logger.Infof("websocket %s opened for user %s (tenant %s)", conn.ID(), conn.UserID(), conn.TenantID())

	if err := conn.Heartbeat(ctx, h.opts.HeartbeatInterval); err != nil {
		h.logger.WithError(err).Debugf("websocket %s heartbeat failed", conn.ID())
	}
}

// readPump consumes control frames so pongs and the client's close are processed.
func (h *WebSocketHandler) readPump(ws *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	ws.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := ws.NextReader(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) release(conn *hub.Connection) {
	h.registry.Remove(conn.ID())
	_ = conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	_ = conn.Drain(ctx)
	h.logger.Infof("websocket %s closed", conn.ID())
}
