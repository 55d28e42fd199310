package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"volunteer-manager/internal/model"
)

// Attribution records who triggered a message and who receives it.
type Attribution struct {
	SourceUserID *int64 `json:"source_user_id,omitempty"`
	TargetUserID int64  `json:"target_user_id"`
}

type SendEmailParams struct {
	Attribution   Attribution `json:"attribution"`
	PublicationID int64       `json:"publication_id,omitempty"`
	To            string      `json:"to"`
	Subject       string      `json:"subject"`
	Body          string      `json:"body"`
}

type SendSmsParams struct {
	Attribution   Attribution `json:"attribution"`
	PublicationID int64       `json:"publication_id,omitempty"`
	To            string      `json:"to"`
	Body          string      `json:"body"`
}

type SendWhatsappParams struct {
	Attribution   Attribution       `json:"attribution"`
	PublicationID int64             `json:"publication_id,omitempty"`
	To            string            `json:"to"`
	ContentSID    string            `json:"content_sid"`
	Variables     map[string]string `json:"variables"`
}

// EmailSender delivers one email. Implemented by sender.SESSender.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers one text message. Implemented by sender.TwilioSender.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// WhatsappSender delivers one templated WhatsApp message. Implemented by sender.TwilioSender.
type WhatsappSender interface {
	SendWhatsapp(ctx context.Context, to, contentSID string, variables map[string]string) error
}

// DeliveryLog records outbound messages. Implemented by repository.DeliveryRepository.
type DeliveryLog interface {
	Insert(ctx context.Context, d *model.Delivery) error
}

func NewSendEmailHandler(sender EmailSender, deliveries DeliveryLog) Handler {
	return Func(func(p SendEmailParams) error {
		if strings.TrimSpace(p.To) == "" {
			return errors.New("missing recipient address")
		}
		if p.Subject == "" {
			return errors.New("missing subject")
		}
		return nil
	}, func(ctx context.Context, inv *Invocation, p SendEmailParams) error {
		err := sender.Send(ctx, p.To, p.Subject, p.Body)
		recordDelivery(ctx, inv, deliveries, model.ChannelEmail, p.To, p.Attribution, p.PublicationID, err)
		if err != nil {
			return err
		}
		inv.Info("Email sent", map[string]any{"to": p.To, "subject": p.Subject})
		return nil
	})
}

func NewSendSmsHandler(sender SMSSender, deliveries DeliveryLog) Handler {
	return Func(func(p SendSmsParams) error {
		if strings.TrimSpace(p.To) == "" {
			return errors.New("missing phone number")
		}
		if p.Body == "" {
			return errors.New("missing body")
		}
		return nil
	}, func(ctx context.Context, inv *Invocation, p SendSmsParams) error {
		err := sender.SendSMS(ctx, p.To, p.Body)
		recordDelivery(ctx, inv, deliveries, model.ChannelSMS, p.To, p.Attribution, p.PublicationID, err)
		if err != nil {
			return err
		}
		inv.Info("SMS sent", map[string]any{"to": p.To})
		return nil
	})
}

func NewSendWhatsappHandler(sender WhatsappSender, deliveries DeliveryLog) Handler {
	return Func(func(p SendWhatsappParams) error {
		if strings.TrimSpace(p.To) == "" {
			return errors.New("missing phone number")
		}
		if p.ContentSID == "" {
			return errors.New("missing content sid")
		}
		return nil
	}, func(ctx context.Context, inv *Invocation, p SendWhatsappParams) error {
		err := sender.SendWhatsapp(ctx, p.To, p.ContentSID, p.Variables)
		recordDelivery(ctx, inv, deliveries, model.ChannelWhatsapp, p.To, p.Attribution, p.PublicationID, err)
		if err != nil {
			return err
		}
		inv.Info("WhatsApp message sent", map[string]any{"to": p.To, "content_sid": p.ContentSID})
		return nil
	})
}

// NewNoopHandler logs its params and does nothing else.
func NewNoopHandler() Handler {
	return Func(nil, func(_ context.Context, inv *Invocation, params json.RawMessage) error {
		inv.Info("No-op task invoked", params)
		return nil
	})
}

func recordDelivery(ctx context.Context, inv *Invocation, log DeliveryLog, channel model.Channel, to string, attr Attribution, publicationID int64, sendErr error) {
	if log == nil {
		return
	}
	taskID := inv.TaskID
	target := attr.TargetUserID
	d := &model.Delivery{
		TaskID:       &taskID,
		Channel:      channel,
		Recipient:    to,
		SourceUserID: attr.SourceUserID,
		TargetUserID: &target,
	}
	if publicationID != 0 {
		d.PublicationID = &publicationID
	}
	if sendErr != nil {
		d.Error = sendErr.Error()
	}
	if err := log.Insert(ctx, d); err != nil {
		inv.Warning("Failed to record delivery", map[string]string{"error": err.Error()})
	}
}

// DefaultHandlers wires every task name to its handler. Processes that only
// schedule tasks and never execute them may pass nil senders.
func DefaultHandlers(email EmailSender, sms SMSSender, whatsapp WhatsappSender, deliveries DeliveryLog) Handlers {
	return Handlers{
		SendEmail:    NewSendEmailHandler(email, deliveries),
		SendSms:      NewSendSmsHandler(sms, deliveries),
		SendWhatsapp: NewSendWhatsappHandler(whatsapp, deliveries),
		Noop:         NewNoopHandler(),
	}
}
