package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"volunteer-manager/internal/tasks"
)

// StatusLoader reads the status last published by the scheduler process.
type StatusLoader func(ctx context.Context) (tasks.Status, error)

type SchedulerHandler struct {
	load   StatusLoader
	maxAge time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewSchedulerHandler reports not_running when the last loop iteration is
// older than maxAge.
func NewSchedulerHandler(load StatusLoader, maxAge time.Duration, logger *zap.Logger) *SchedulerHandler {
	return &SchedulerHandler{load: load, maxAge: maxAge, now: time.Now, logger: logger}
}

// GetStatus handles GET /admin/scheduler
func (h *SchedulerHandler) GetStatus(c *gin.Context) {
	status, err := h.load(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load scheduler status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load scheduler status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"not_running": status.NotRunning(h.now(), h.maxAge),
	})
}
