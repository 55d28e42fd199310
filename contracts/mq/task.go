package mq

import "time"

// TaskFinishedPayload is emitted once per executed task.
type TaskFinishedPayload struct {
	TaskID           int64     `json:"task_id"`
	ParentTaskID     *int64    `json:"parent_task_id,omitempty"`
	TaskName         string    `json:"task_name"`
	Result           string    `json:"result"`
	InvocationTimeMs int64     `json:"invocation_time_ms"`
	TraceID          string    `json:"trace_id,omitempty"`
	FinishedAt       time.Time `json:"finished_at"`
}
