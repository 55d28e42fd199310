package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	mqcontracts "volunteer-manager/contracts/mq"
	"volunteer-manager/internal/model"
)

// TaskFinishedAuditHandler writes one audit log line per executed task.
type TaskFinishedAuditHandler struct {
	logger *zap.Logger
}

func NewTaskFinishedAuditHandler(logger *zap.Logger) *TaskFinishedAuditHandler {
	return &TaskFinishedAuditHandler{logger: logger}
}

func (h *TaskFinishedAuditHandler) HandleTaskFinished(_ context.Context, raw json.RawMessage) error {
	var p mqcontracts.TaskFinishedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal task finished payload (non-retryable)", zap.Error(err))
		return nil
	}

	fields := []zap.Field{
		zap.Int64("task_id", p.TaskID),
		zap.String("task", p.TaskName),
		zap.String("result", p.Result),
		zap.Int64("invocation_time_ms", p.InvocationTimeMs),
		zap.String("trace_id", p.TraceID),
	}
	if p.ParentTaskID != nil {
		fields = append(fields, zap.Int64("parent_task_id", *p.ParentTaskID))
	}

	switch model.TaskResult(p.Result) {
	case model.TaskResultError:
		h.logger.Error("Task finished with error", fields...)
	case model.TaskResultWarning:
		h.logger.Warn("Task finished with warnings", fields...)
	default:
		h.logger.Info("Task finished", fields...)
	}
	return nil
}
