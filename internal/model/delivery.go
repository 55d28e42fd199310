package model

import "time"

// Delivery records one outbound message handed to an external transport.
type Delivery struct {
	ID            int64     `json:"id"`
	TaskID        *int64    `json:"task_id,omitempty"`
	Channel       Channel   `json:"channel"`
	Recipient     string    `json:"recipient"`
	SourceUserID  *int64    `json:"source_user_id,omitempty"`
	TargetUserID  *int64    `json:"target_user_id,omitempty"`
	PublicationID *int64    `json:"publication_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
