package model

import "time"

type Publication struct {
	ID        int64            `json:"id"`
	UserID    *int64           `json:"user_id,omitempty"`
	Type      SubscriptionType `json:"type"`
	TypeID    *int64           `json:"type_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Template is the message layout for one (type, channel) pair.
type Template struct {
	Type       SubscriptionType `json:"type"`
	Channel    Channel          `json:"channel"`
	Title      string           `json:"title"`
	Body       string           `json:"body"`
	ContentSID string           `json:"content_sid,omitempty"` // WhatsApp only
}
