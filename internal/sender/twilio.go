package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"volunteer-manager/pkg/circuitbreaker"
	"volunteer-manager/pkg/config"
	"volunteer-manager/pkg/metrics"
	"volunteer-manager/pkg/otel"
)

// APIError is a rejected Twilio REST call.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio: %d (code %d): %s", e.Status, e.Code, e.Message)
}

// StatusCode lets util.IsRetryableError classify the failure.
func (e *APIError) StatusCode() int { return e.Status }

// messagesAPI is the part of the twilio-go v2010 ApiService used here.
type messagesAPI interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// TwilioSender sends SMS and WhatsApp messages through the Twilio Messages API.
type TwilioSender struct {
	api          messagesAPI
	from         string
	whatsappFrom string
	breaker      *circuitbreaker.CircuitBreaker
	logger       *zap.Logger
}

func NewTwilioSender(cfg config.TwilioConfig, logger *zap.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilioSender(client.Api, cfg.From, cfg.WhatsappFrom, logger)
}

func newTwilioSender(api messagesAPI, from, whatsappFrom string, logger *zap.Logger) *TwilioSender {
	return &TwilioSender{
		api:          api,
		from:         from,
		whatsappFrom: whatsappAddress(whatsappFrom),
		breaker:      newBreaker("twilio", logger),
		logger:       logger,
	}
}

func whatsappAddress(number string) string {
	if number == "" || strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// SendSMS sends body to the E.164 number to.
func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)
	return s.send(ctx, "sms", params)
}

// SendWhatsapp sends the approved content template contentSID with variables.
func (s *TwilioSender) SendWhatsapp(ctx context.Context, to, contentSID string, variables map[string]string) error {
	vars, err := json.Marshal(variables)
	if err != nil {
		return fmt.Errorf("encode content variables: %w", err)
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(whatsappAddress(to))
	params.SetFrom(s.whatsappFrom)
	params.SetContentSid(contentSID)
	params.SetContentVariables(string(vars))
	return s.send(ctx, "whatsapp", params)
}

func (s *TwilioSender) send(ctx context.Context, channel string, params *twilioapi.CreateMessageParams) (err error) {
	ctx, span := otel.StartSpan(ctx, "twilio.messages.create")
	span.SetAttributes(attribute.String("sender.channel", channel))
	defer func() { otel.EndSpan(span, err) }()

	start := time.Now()
	err = s.breaker.ExecuteContext(ctx, func(context.Context) error {
		msg, err := s.api.CreateMessage(params)
		if err != nil {
			return asAPIError(err)
		}
		if msg != nil && msg.Sid != nil {
			span.SetAttributes(attribute.String("twilio.message_sid", *msg.Sid))
		}
		return nil
	})
	metrics.RecordSenderLatency(channel, statusLabel(err), time.Since(start))
	return err
}

func asAPIError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		return &APIError{Status: restErr.Status, Code: restErr.Code, Message: restErr.Message}
	}
	return err
}
