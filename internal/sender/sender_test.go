package sender

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"volunteer-manager/pkg/circuitbreaker"
	"volunteer-manager/pkg/util"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESSenderSend(t *testing.T) {
	client := &fakeSES{}
	s := newSESSender(client, "volunteering@example.org", zap.NewNop())

	require.NoError(t, s.Send(context.Background(), "yuki@example.org", "Hello", "Body text"))
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "volunteering@example.org", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"yuki@example.org"}, in.Destination.ToAddresses)
	assert.Equal(t, "Hello", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "Body text", aws.ToString(in.Content.Simple.Body.Text.Data))
}

func TestSESSenderOpensBreaker(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	s := newSESSender(client, "from@example.org", zap.NewNop())

	for i := 0; i < circuitbreaker.DefaultConfig().FailureThreshold; i++ {
		require.Error(t, s.Send(context.Background(), "a@example.org", "s", "b"))
	}
	err := s.Send(context.Background(), "a@example.org", "s", "b")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	assert.Len(t, client.inputs, circuitbreaker.DefaultConfig().FailureThreshold)
}

type fakeMessages struct {
	params []*twilioapi.CreateMessageParams
	err    error
}

func (f *fakeMessages) CreateMessage(p *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM1"
	return &twilioapi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioSendSMS(t *testing.T) {
	api := &fakeMessages{}
	s := newTwilioSender(api, "+31000000000", "", zap.NewNop())

	require.NoError(t, s.SendSMS(context.Background(), "+31612345678", "Shift starts at 10:00"))
	require.Len(t, api.params, 1)
	p := api.params[0]
	assert.Equal(t, "+31612345678", *p.To)
	assert.Equal(t, "+31000000000", *p.From)
	assert.Equal(t, "Shift starts at 10:00", *p.Body)
	assert.Nil(t, p.ContentSid)
}

func TestTwilioSendWhatsapp(t *testing.T) {
	api := &fakeMessages{}
	s := newTwilioSender(api, "", "+31000000001", zap.NewNop())

	require.NoError(t, s.SendWhatsapp(context.Background(), "+31612345678", "HX9", map[string]string{"1": "Title", "2": "Body"}))
	require.Len(t, api.params, 1)
	p := api.params[0]
	assert.Equal(t, "whatsapp:+31612345678", *p.To)
	assert.Equal(t, "whatsapp:+31000000001", *p.From)
	assert.Equal(t, "HX9", *p.ContentSid)
	assert.Nil(t, p.Body)
	var vars map[string]string
	require.NoError(t, json.Unmarshal([]byte(*p.ContentVariables), &vars))
	assert.Equal(t, map[string]string{"1": "Title", "2": "Body"}, vars)
}

func TestTwilioErrorIsClassified(t *testing.T) {
	api := &fakeMessages{err: &twilioclient.TwilioRestError{
		Status:  400,
		Code:    21211,
		Message: "Invalid 'To' Phone Number",
	}}
	s := newTwilioSender(api, "+31000000000", "", zap.NewNop())

	err := s.SendSMS(context.Background(), "nope", "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 21211, apiErr.Code)
	assert.Equal(t, "Invalid 'To' Phone Number", apiErr.Message)
	retryable, reason := util.IsRetryableError(err)
	assert.False(t, retryable)
	assert.Equal(t, "upstream_rejected", reason)

	api.err = &twilioclient.TwilioRestError{Status: 503, Code: 20503, Message: "Service Unavailable"}
	err = s.SendSMS(context.Background(), "+31600000000", "x")
	retryable, reason = util.IsRetryableError(err)
	assert.True(t, retryable)
	assert.Equal(t, "upstream_unavailable", reason)

	api.err = errors.New("dial tcp: connection refused")
	err = s.SendSMS(context.Background(), "+31600000000", "x")
	assert.False(t, errors.As(err, &apiErr))
}
