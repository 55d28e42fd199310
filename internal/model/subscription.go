package model

// SubscriptionType enumerates the kinds of events users can subscribe to.
type SubscriptionType string

const (
	SubscriptionApplication  SubscriptionType = "Application"
	SubscriptionRegistration SubscriptionType = "Registration"
	SubscriptionHelp         SubscriptionType = "Help"
	SubscriptionTest         SubscriptionType = "Test"
)

// SubscriptionTypes lists every subscription type.
func SubscriptionTypes() []SubscriptionType {
	return []SubscriptionType{
		SubscriptionApplication,
		SubscriptionRegistration,
		SubscriptionHelp,
		SubscriptionTest,
	}
}

// Valid reports whether t is a known subscription type.
func (t SubscriptionType) Valid() bool {
	for _, known := range SubscriptionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Scoped reports whether subscriptions of this type are tied to a type id,
// e.g. a specific event.
func (t SubscriptionType) Scoped() bool {
	return t == SubscriptionApplication || t == SubscriptionRegistration
}

// Channel is a delivery mechanism for a publication.
type Channel string

const (
	ChannelEmail        Channel = "email"
	ChannelNotification Channel = "notification"
	ChannelSMS          Channel = "sms"
	ChannelWhatsapp     Channel = "whatsapp"
)

// Channels returns the channels in fanout order.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelNotification, ChannelSMS, ChannelWhatsapp}
}

func (c Channel) Valid() bool {
	for _, known := range Channels() {
		if c == known {
			return true
		}
	}
	return false
}

// ChannelFlags records which channels a subscriber enabled.
type ChannelFlags struct {
	Email        bool `json:"email"`
	Notification bool `json:"notification"`
	SMS          bool `json:"sms"`
	WhatsApp     bool `json:"whatsapp"`
}

// Enabled reports whether channel c is switched on.
func (f ChannelFlags) Enabled(c Channel) bool {
	switch c {
	case ChannelEmail:
		return f.Email
	case ChannelNotification:
		return f.Notification
	case ChannelSMS:
		return f.SMS
	case ChannelWhatsapp:
		return f.WhatsApp
	default:
		return false
	}
}

// Any reports whether at least one channel is enabled.
func (f ChannelFlags) Any() bool {
	return f.Email || f.Notification || f.SMS || f.WhatsApp
}

type Subscription struct {
	UserID   int64            `json:"user_id"`
	Type     SubscriptionType `json:"type"`
	TypeID   *int64           `json:"type_id,omitempty"`
	Channels ChannelFlags     `json:"channels"`
}

// Recipient is a subscriber joined with the user's contact details.
// Empty strings mean the contact field is absent.
type Recipient struct {
	UserID       int64        `json:"user_id"`
	Name         string       `json:"name"`
	ShortName    string       `json:"short_name"`
	EmailAddress string       `json:"email_address,omitempty"`
	PhoneNumber  string       `json:"phone_number,omitempty"`
	Channels     ChannelFlags `json:"channels"`
}
