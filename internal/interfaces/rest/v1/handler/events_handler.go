package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-realtime-events/internal/infrastructure/hub"
	"go-realtime-events/internal/infrastructure/logger"
	"go-realtime-events/internal/interfaces/middleware"
	"go-realtime-events/internal/port/inbound"
)

type EventsHandler struct {
	publisher inbound.EventPublisher
	registry  *hub.Registry
	logger    logger.Logger
}

type PublishEventRequest struct {
	Type          string          `json:"type" binding:"required"`
	Data          json.RawMessage `json:"data"`
	ConnectionIDs []string        `json:"connectionIds"`
}

func NewEventsHandler(publisher inbound.EventPublisher, registry *hub.Registry, logger logger.Logger) *EventsHandler {
	return &EventsHandler{
		publisher: publisher,
		registry:  registry,
		logger:    logger.WithField("handler", "events"),
	}
}

func (h *EventsHandler) PublishToUser(c *gin.Context) {
	userID := c.Param("userId")
	h.publish(c, "user:"+userID, func(req *PublishEventRequest) error {
		return h.publisher.SendToUser(c.Request.Context(), userID, req.Type, req.Data)
	})
}

func (h *EventsHandler) PublishToTenant(c *gin.Context) {
	tenantID := c.Param("tenantId")
	h.publish(c, "tenant:"+tenantID, func(req *PublishEventRequest) error {
		return h.publisher.SendToTenant(c.Request.Context(), tenantID, req.Type, req.Data)
	})
}

func (h *EventsHandler) Broadcast(c *gin.Context) {
	h.publish(c, "broadcast", func(req *PublishEventRequest) error {
		return h.publisher.Broadcast(c.Request.Context(), req.Type, req.Data)
	})
}

func (h *EventsHandler) PublishToConnections(c *gin.Context) {
	h.publish(c, "connections", func(req *PublishEventRequest) error {
		return h.publisher.SendToConnections(c.Request.Context(), req.ConnectionIDs, req.Type, req.Data)
	})
}

// publish binds the request and hands it to send. The publisher only fails on bad
// input, so every error is the caller's.
func (h *EventsHandler) publish(c *gin.Context, target string, send func(*PublishEventRequest) error) {
	var req PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event format"})
		return
	}

	if err := send(&req); err != nil {
		h.logger.WithError(err).Debugf("rejected event %q for %s", req.Type, target)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":    "accepted",
		"eventType": req.Type,
		"target":    target,
	})
}

// ListConnections returns the connections of the caller's tenant open on this instance.
func (h *EventsHandler) ListConnections(c *gin.Context) {
	id, ok := middleware.Identity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conns := h.registry.ByTenant(id.TenantID)
	infos := make([]hub.ConnectionInfo, len(conns))
	for i, conn := range conns {
		infos[i] = conn.Info()
	}

	c.JSON(http.StatusOK, gin.H{
		"tenantId":          id.TenantID,
		"total_connections": len(infos),
		"connections":       infos,
	})
}
