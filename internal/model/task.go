package model

import (
	"encoding/json"
	"time"
)

// TaskName keys into the task handler registry.
type TaskName string

// TaskResult is the outcome stored on a task row.
type TaskResult string

const (
	TaskResultPending TaskResult = "pending"
	TaskResultSuccess TaskResult = "success"
	TaskResultWarning TaskResult = "warning"
	TaskResultError   TaskResult = "error"
)

// LogSeverity orders task log entries from least to most severe.
type LogSeverity string

const (
	SeverityDebug     LogSeverity = "debug"
	SeverityInfo      LogSeverity = "info"
	SeverityWarning   LogSeverity = "warning"
	SeverityError     LogSeverity = "error"
	SeverityException LogSeverity = "exception"
)

// Rank returns the position of s in the severity ordering.
func (s LogSeverity) Rank() int {
	switch s {
	case SeverityDebug:
		return 0
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	case SeverityException:
		return 4
	default:
		return 1
	}
}

type TaskLogEntry struct {
	Severity LogSeverity     `json:"severity"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data,omitempty"`
	Time     time.Time       `json:"time"`
}

type Task struct {
	ID               int64           `json:"id"`
	ParentTaskID     *int64          `json:"parent_task_id,omitempty"`
	Name             TaskName        `json:"task_name"`
	Params           json.RawMessage `json:"task_params"`
	Date             time.Time       `json:"scheduled_date"`
	IntervalMs       *int64          `json:"interval_ms,omitempty"`
	Result           TaskResult      `json:"result"`
	Logs             []TaskLogEntry  `json:"logs"`
	InvocationTimeMs *int64          `json:"invocation_time_ms,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Executed reports whether the task's outcome has been written.
func (t *Task) Executed() bool {
	return t.Result != "" && t.Result != TaskResultPending
}

// TaskOutcome is the result/logs/duration triple written once per task.
type TaskOutcome struct {
	Result           TaskResult
	Logs             []TaskLogEntry
	InvocationTimeMs int64
}

// TaskFilter narrows admin task listings.
type TaskFilter struct {
	Name   TaskName
	Result TaskResult
	Limit  int
	Offset int
}
