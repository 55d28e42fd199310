package mq

// Routing keys on the events exchange.
const (
	RoutingKeyTaskFinished        = "task.finished"
	RoutingKeyNotificationCreated = "notification.created"
)

// Queue names bound by cmd/worker.
const (
	QueueNotificationDeliver = "notification.created.deliver.q"
	QueueTaskFinishedAudit   = "task.finished.audit.q"
)
