package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-realtime-events/internal/infrastructure/fanout"
)

type StatsProvider interface {
	Stats() fanout.Stats
}

type StatusHandler struct {
	stats      StatsProvider
	instanceID string
}

func NewStatusHandler(stats StatsProvider, instanceID string) *StatusHandler {
	return &StatusHandler{stats: stats, instanceID: instanceID}
}

// Status reports 200 while events are being delivered and 503 otherwise.
func (h *StatusHandler) Status(c *gin.Context) {
	s := h.stats.Stats()

	code, status := http.StatusOK, "healthy"
	if !s.Running {
		code, status = http.StatusServiceUnavailable, "unavailable"
	}
	c.JSON(code, gin.H{
		"status":      status,
		"instance":    h.instanceID,
		"hub_running": s.Running,
		"connections": s.Connections,
		"stats":       s,
	})
}
