package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"volunteer-manager/internal/model"
	"volunteer-manager/internal/tasks"
)

type TaskReader interface {
	Get(ctx context.Context, id int64) (*model.Task, error)
	List(ctx context.Context, f model.TaskFilter) ([]model.Task, error)
}

type TaskScheduler interface {
	Schedule(ctx context.Context, req tasks.Request) (int64, error)
	Rerun(ctx context.Context, taskID int64) (int64, error)
}

type TaskHandler struct {
	tasks     TaskReader
	scheduler TaskScheduler
	logger    *zap.Logger
}

func NewTaskHandler(reader TaskReader, scheduler TaskScheduler, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: reader, scheduler: scheduler, logger: logger}
}

// ListTasks handles GET /admin/tasks?name=&result=&limit=&offset=
func (h *TaskHandler) ListTasks(c *gin.Context) {
	filter := model.TaskFilter{
		Name:   model.TaskName(c.Query("name")),
		Result: model.TaskResult(c.Query("result")),
		Limit:  queryInt(c, "limit", 50, 500),
		Offset: queryInt(c, "offset", 0, 0),
	}

	list, err := h.tasks.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch tasks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": list})
}

// GetTask handles GET /admin/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	task, err := h.tasks.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		h.logger.Error("Failed to load task", zap.Int64("task_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

// ScheduleTask handles POST /admin/tasks
func (h *TaskHandler) ScheduleTask(c *gin.Context) {
	var req struct {
		TaskName   string          `json:"task_name" binding:"required"`
		TaskParams json.RawMessage `json:"task_params"`
		DelayMs    int64           `json:"delay_ms"`
		IntervalMs int64           `json:"interval_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	id, err := h.scheduler.Schedule(c.Request.Context(), tasks.Request{
		Name:     model.TaskName(req.TaskName),
		Params:   req.TaskParams,
		Delay:    time.Duration(req.DelayMs) * time.Millisecond,
		Interval: time.Duration(req.IntervalMs) * time.Millisecond,
		Source:   "api",
	})
	if err != nil {
		h.writeTaskError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task_id": id})
}

// RerunTask handles POST /admin/tasks/:id/rerun
func (h *TaskHandler) RerunTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	newID, err := h.scheduler.Rerun(c.Request.Context(), id)
	if err != nil {
		h.writeTaskError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task_id": newID, "parent_task_id": id})
}

func (h *TaskHandler) writeTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tasks.ErrUnknownTask), errors.Is(err, tasks.ErrInvalidParams):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tasks.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, tasks.ErrNotExecuted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Failed to schedule task", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to schedule task"})
	}
}
