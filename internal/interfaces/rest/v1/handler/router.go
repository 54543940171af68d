package handler

import (
	"github.com/gin-gonic/gin"

	"go-realtime-events/internal/infrastructure/hub"
	"go-realtime-events/internal/infrastructure/logger"
	"go-realtime-events/internal/port/inbound"
)

// AdminRole may publish arbitrary events.
const AdminRole = "platform-admin"

type Dependencies struct {
	Publisher     inbound.EventPublisher
	Notifications inbound.NotificationUseCase
	Registry      *hub.Registry
	Stats         StatsProvider
	InstanceID    string
}

func InitRESTRouter(
	log logger.Logger,
	deps Dependencies,
	authenticate, requireAdmin gin.HandlerFunc,
	rg *gin.RouterGroup,
) {
	eventsHandler := NewEventsHandler(deps.Publisher, deps.Registry, log)
	notificationHandler := NewNotificationHandler(deps.Notifications, log)
	statusHandler := NewStatusHandler(deps.Stats, deps.InstanceID)

	rg.GET("/hub/status", statusHandler.Status)

	v1 := rg.Group("/api/v1", authenticate)
	v1.GET("/events/connections", eventsHandler.ListConnections)

	events := v1.Group("/events", requireAdmin)
	{
		events.POST("/users/:userId", eventsHandler.PublishToUser)
		events.POST("/tenants/:tenantId", eventsHandler.PublishToTenant)
		events.POST("/broadcast", eventsHandler.Broadcast)
		events.POST("/connections", eventsHandler.PublishToConnections)
	}

	admin := v1.Group("/admin", requireAdmin)
	{
		admin.POST("/notifications/send", notificationHandler.SendNotification)
		admin.POST("/maintenance", notificationHandler.AnnounceMaintenance)
	}
}
