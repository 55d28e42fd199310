package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"volunteer-manager/pkg/circuitbreaker"
	"volunteer-manager/pkg/config"
	"volunteer-manager/pkg/metrics"
)

// sesAPI is the part of *sesv2.Client used by SESSender.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers email through Amazon SES.
type SESSender struct {
	client  sesAPI
	from    string
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewSESSender loads AWS credentials from the default chain.
func NewSESSender(ctx context.Context, cfg config.EmailConfig, logger *zap.Logger) (*SESSender, error) {
	if cfg.From == "" {
		return nil, errors.New("email.from is not set")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSESSender(sesv2.NewFromConfig(awsCfg), cfg.From, logger), nil
}

func newSESSender(client sesAPI, from string, logger *zap.Logger) *SESSender {
	return &SESSender{
		client:  client,
		from:    from,
		breaker: newBreaker("ses", logger),
		logger:  logger,
	}
}

func (s *SESSender) Send(ctx context.Context, to, subject, body string) error {
	start := time.Now()
	err := s.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(s.from),
			Destination: &types.Destination{
				ToAddresses: []string{to},
			},
			Content: &types.EmailContent{
				Simple: &types.Message{
					Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
					Body: &types.Body{
						Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
					},
				},
			},
		})
		return err
	})
	metrics.RecordSenderLatency("email", statusLabel(err), time.Since(start))
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

// newBreaker trips after consecutive failures of one upstream.
func newBreaker(name string, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	cfg := circuitbreaker.DefaultConfig()
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Sender circuit breaker state changed",
			zap.String("sender", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return circuitbreaker.NewCircuitBreaker(cfg)
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		return "circuit_open"
	default:
		return "error"
	}
}
