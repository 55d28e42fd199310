package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"volunteer-manager/internal/model"
	"volunteer-manager/internal/template"
)

// Message is the payload of one publication. Each subscription type has its
// own message struct.
type Message interface {
	SubscriptionType() model.SubscriptionType
	values() template.Values
}

// ApplicationMessage announces a new volunteer application for an event.
type ApplicationMessage struct {
	EventID       int64  `json:"event_id"`
	EventName     string `json:"event"`
	TeamName      string `json:"team"`
	ApplicantName string `json:"applicant"`
	Link          string `json:"link"`
}

func (ApplicationMessage) SubscriptionType() model.SubscriptionType {
	return model.SubscriptionApplication
}

func (m ApplicationMessage) values() template.Values {
	return template.Values{
		"event":     m.EventName,
		"event_id":  strconv.FormatInt(m.EventID, 10),
		"team":      m.TeamName,
		"applicant": m.ApplicantName,
		"link":      m.Link,
	}
}

// RegistrationMessage announces a volunteer registering for an event.
type RegistrationMessage struct {
	EventID       int64  `json:"event_id"`
	EventName     string `json:"event"`
	VolunteerName string `json:"volunteer"`
	Link          string `json:"link"`
}

func (RegistrationMessage) SubscriptionType() model.SubscriptionType {
	return model.SubscriptionRegistration
}

func (m RegistrationMessage) values() template.Values {
	return template.Values{
		"event":     m.EventName,
		"event_id":  strconv.FormatInt(m.EventID, 10),
		"volunteer": m.VolunteerName,
		"link":      m.Link,
	}
}

// HelpMessage is a help request raised during an event.
type HelpMessage struct {
	RequesterName string `json:"requester"`
	Location      string `json:"location"`
	Description   string `json:"description"`
	Link          string `json:"link"`
}

func (HelpMessage) SubscriptionType() model.SubscriptionType {
	return model.SubscriptionHelp
}

func (m HelpMessage) values() template.Values {
	return template.Values{
		"requester":   m.RequesterName,
		"location":    m.Location,
		"description": m.Description,
		"link":        m.Link,
	}
}

// TestMessage is sent from the admin area to verify delivery end to end.
type TestMessage struct {
	Message string `json:"message"`
}

func (TestMessage) SubscriptionType() model.SubscriptionType {
	return model.SubscriptionTest
}

func (m TestMessage) values() template.Values {
	return template.Values{"message": m.Message}
}

// ErrInvalidMessage is returned when a message payload does not decode.
var ErrInvalidMessage = errors.New("invalid message payload")

// DecodeMessage decodes raw into the message struct of subscription type t.
func DecodeMessage(t model.SubscriptionType, raw json.RawMessage) (Message, error) {
	var (
		msg Message
		err error
	)
	switch t {
	case model.SubscriptionApplication:
		var m ApplicationMessage
		err = json.Unmarshal(raw, &m)
		msg = m
	case model.SubscriptionRegistration:
		var m RegistrationMessage
		err = json.Unmarshal(raw, &m)
		msg = m
	case model.SubscriptionHelp:
		var m HelpMessage
		err = json.Unmarshal(raw, &m)
		msg = m
	case model.SubscriptionTest:
		var m TestMessage
		err = json.Unmarshal(raw, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return msg, nil
}

// ScopeID returns the event a scoped message belongs to, or nil.
func ScopeID(msg Message) *int64 {
	var id int64
	switch m := msg.(type) {
	case ApplicationMessage:
		id = m.EventID
	case RegistrationMessage:
		id = m.EventID
	default:
		return nil
	}
	if id == 0 {
		return nil
	}
	return &id
}

// recipientValues are available to every template.
func recipientValues(r model.Recipient) template.Values {
	return template.Values{
		"name":       r.Name,
		"short_name": r.ShortName,
	}
}
