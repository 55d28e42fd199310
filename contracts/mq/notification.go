package mq

import "time"

// NotificationCreatedPayload is emitted when the fanout writes an in-app notification.
type NotificationCreatedPayload struct {
	NotificationID int64     `json:"notification_id"`
	UserID         int64     `json:"user_id"`
	PublicationID  int64     `json:"publication_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	URL            string    `json:"url,omitempty"`
	TraceID        string    `json:"trace_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
