package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-realtime-events/internal/infrastructure/logger"
	"go-realtime-events/internal/port/inbound"
)

type NotificationHandler struct {
	notifications inbound.NotificationUseCase
	logger        logger.Logger
}

// SendNotificationRequest addresses a tenant, or only the listed users of it.
type SendNotificationRequest struct {
	TenantID string   `json:"tenantId" binding:"required"`
	UserIDs  []string `json:"userIds"`
	Title    string   `json:"title" binding:"required"`
	Body     string   `json:"body"`
	Type     string   `json:"type"`
	Link     string   `json:"link"`
}

type MaintenanceRequest struct {
	Message  string     `json:"message" binding:"required"`
	StartsAt *time.Time `json:"startsAt"`
	EndsAt   *time.Time `json:"endsAt"`
}

func NewNotificationHandler(notifications inbound.NotificationUseCase, logger logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        logger.WithField("handler", "notification"),
	}
}

func (h *NotificationHandler) SendNotification(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification format"})
		return
	}

	n := inbound.Notification{Title: req.Title, Body: req.Body, Type: req.Type, Link: req.Link}
	ctx := c.Request.Context()

	if len(req.UserIDs) == 0 {
		if err := h.notifications.NotifyTenant(ctx, req.TenantID, n); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "tenantId": req.TenantID})
		return
	}

	if err := h.notifications.NotifyUsers(ctx, req.UserIDs, n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":         "accepted",
		"tenantId":       req.TenantID,
		"recipientCount": len(req.UserIDs),
	})
}

func (h *NotificationHandler) AnnounceMaintenance(c *gin.Context) {
	var req MaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid maintenance format"})
		return
	}

	m := inbound.Maintenance{Message: req.Message, StartsAt: req.StartsAt, EndsAt: req.EndsAt}
	if err := h.notifications.AnnounceMaintenance(c.Request.Context(), m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Infof("maintenance announced: %s", req.Message)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
