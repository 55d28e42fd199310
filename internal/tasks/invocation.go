package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"volunteer-manager/internal/model"
)

// Invocation collects the log entries a handler writes while it runs.
type Invocation struct {
	TaskID int64
	Name   model.TaskName

	now  func() time.Time
	logs []model.TaskLogEntry
}

func newInvocation(t *model.Task, now func() time.Time) *Invocation {
	return &Invocation{TaskID: t.ID, Name: t.Name, now: now, logs: []model.TaskLogEntry{}}
}

// Log appends an entry; data is stored as JSON when it can be marshalled.
func (i *Invocation) Log(severity model.LogSeverity, message string, data any) {
	entry := model.TaskLogEntry{
		Severity: severity,
		Message:  message,
		Time:     i.now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			raw, _ = json.Marshal(fmt.Sprintf("%v", data))
		}
		entry.Data = raw
	}
	i.logs = append(i.logs, entry)
}

func (i *Invocation) Debug(message string, data any)   { i.Log(model.SeverityDebug, message, data) }
func (i *Invocation) Info(message string, data any)    { i.Log(model.SeverityInfo, message, data) }
func (i *Invocation) Warning(message string, data any) { i.Log(model.SeverityWarning, message, data) }
func (i *Invocation) Error(message string, data any)   { i.Log(model.SeverityError, message, data) }

// Logs returns the collected entries.
func (i *Invocation) Logs() []model.TaskLogEntry {
	return i.logs
}

// maxSeverity returns the highest severity rank logged, or -1 when empty.
func (i *Invocation) maxSeverity() int {
	highest := -1
	for _, e := range i.logs {
		if r := e.Severity.Rank(); r > highest {
			highest = r
		}
	}
	return highest
}
