package model

import "time"

// Notification is an in-app message shown to a single user.
type Notification struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	PublicationID *int64    `json:"publication_id,omitempty"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	URL           string    `json:"url,omitempty"`
	Delivered     bool      `json:"delivered"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}
