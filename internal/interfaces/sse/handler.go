package sse

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-realtime-events/internal/infrastructure/hub"
	"go-realtime-events/internal/infrastructure/logger"
	"go-realtime-events/internal/interfaces/middleware"
)

const drainTimeout = 5 * time.Second

// RunningChecker reports whether events are currently being delivered.
type RunningChecker interface {
	IsRunning() bool
}

type Options struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	QueueSize         int
}

type ServerSentEventHandler struct {
	registry *hub.Registry
	notifier RunningChecker
	opts     Options
	logger   logger.Logger
}

func NewServerSentEventHandler(
	registry *hub.Registry,
	notifier RunningChecker,
	opts Options,
	log logger.Logger,
) *ServerSentEventHandler {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	return &ServerSentEventHandler{
		registry: registry,
		notifier: notifier,
		opts:     opts,
		logger:   log.WithField("handler", "sse"),
	}
}

type connectedEvent struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	TenantID     string    `json:"tenantId"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// Connect opens an event stream for the authenticated caller and keeps it open until
// the client leaves, the server shuts down or a write fails.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	id, ok := middleware.Identity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if !h.notifier.IsRunning() {
		h.logger.Warn("rejecting stream, notifier is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	hub.SetSSEHeaders(c.Writer.Header())
	stream, err := hub.NewSSEStream(c.Writer, h.opts.WriteTimeout)
	if err != nil {
		h.logger.WithError(err).Error("cannot stream response")
		c.Header("Content-Type", "application/json; charset=utf-8")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}

	conn := hub.NewConnection(id.UserID, id.TenantID, stream, h.logger,
		hub.WithWriteTimeout(h.opts.WriteTimeout), hub.WithQueueSize(h.opts.QueueSize))
	c.Status(http.StatusOK)
	h.registry.Add(conn)
	defer h.release(conn)

	ctx := c.Request.Context()
	data, err := hub.MarshalData(connectedEvent{
		ConnectionID: conn.ID(),
		UserID:       conn.UserID(),
		TenantID:     conn.TenantID(),
		ConnectedAt:  conn.ConnectedAt(),
	})
	if err != nil {
		h.logger.WithError(err).Error("encode connected event")
		return
	}
	if err := conn.WriteEvent(ctx, hub.EventConnected, data); err != nil {
		return
	}
	h.logger.Infof("stream %s opened for user %s (tenant %s)", conn.ID(), conn.UserID(), conn.TenantID())

	if err := conn.Heartbeat(ctx, h.opts.HeartbeatInterval); err != nil {
		h.logger.WithError(err).Debugf("stream %s heartbeat failed", conn.ID())
	}
}

// release is the single exit path of a stream: unregister, close, and wait until no
// write still touches the response.
func (h *ServerSentEventHandler) release(conn *hub.Connection) {
	h.registry.Remove(conn.ID())
	_ = conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := conn.Drain(ctx); err != nil {
		h.logger.WithError(err).Warnf("stream %s still had a write in flight", conn.ID())
	}
	h.logger.Infof("stream %s closed", conn.ID())
}
