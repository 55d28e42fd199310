package notify

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"volunteer-manager/internal/model"
	"volunteer-manager/pkg/logger"
	"volunteer-manager/pkg/metrics"
	"volunteer-manager/pkg/otel"
	"volunteer-manager/pkg/trace"
)

// PublicationStore is implemented by repository.PublicationRepository.
type PublicationStore interface {
	Insert(ctx context.Context, p *model.Publication) (int64, error)
}

// SubscriberSource is implemented by repository.SubscriptionRepository.
type SubscriberSource interface {
	SubscribersFor(ctx context.Context, t model.SubscriptionType, typeID *int64) ([]model.Recipient, error)
}

// Request describes one publication.
type Request struct {
	SourceUserID *int64
	TypeID       *int64
	Message      Message
}

// Failure is a delivery step that errored during fanout.
type Failure struct {
	UserID  int64         `json:"user_id,omitempty"`
	Channel model.Channel `json:"channel,omitempty"`
	Error   string        `json:"error"`
}

// Report summarises a publication fanout.
type Report struct {
	PublicationID int64     `json:"publication_id"`
	Subscribers   int       `json:"subscribers"`
	Delivered     int       `json:"delivered"`
	Skipped       int       `json:"skipped"`
	Failures      []Failure `json:"failures,omitempty"`
}

const (
	outcomeDelivered = "scheduled"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// Publisher records publications and fans them out to subscribers.
type Publisher struct {
	publications PublicationStore
	subscribers  SubscriberSource
	deps         Deps
	logger       *zap.Logger
}

func NewPublisher(publications PublicationStore, subscribers SubscriberSource, deps Deps, logger *zap.Logger) *Publisher {
	return &Publisher{
		publications: publications,
		subscribers:  subscribers,
		deps:         deps,
		logger:       logger,
	}
}

// Publish records the publication and delivers it on every enabled channel of
// every subscriber. Only a failure to record the publication is returned;
// later failures are logged and delivery continues.
func (p *Publisher) Publish(ctx context.Context, req Request) (int64, error) {
	report, err := p.PublishReport(ctx, req)
	return report.PublicationID, err
}

// PublishReport is Publish returning the per-channel outcome.
func (p *Publisher) PublishReport(ctx context.Context, req Request) (report Report, err error) {
	if req.Message == nil {
		return report, errors.New("publication without message")
	}
	subType := req.Message.SubscriptionType()
	if !subType.Valid() {
		return report, fmt.Errorf("%w: %q", ErrUnknownType, subType)
	}

	ctx, _ = trace.Ensure(ctx)
	ctx, span := otel.StartSpan(ctx, "notify.publish")
	span.SetAttributes(attribute.String("publication.type", string(subType)))
	defer func() { otel.EndSpan(span, err) }()

	log := logger.WithTrace(ctx, p.logger).With(zap.String("type", string(subType)))

	pub := &model.Publication{UserID: req.SourceUserID, Type: subType, TypeID: req.TypeID}
	id, err := p.publications.Insert(ctx, pub)
	if err != nil {
		log.Error("Failed to record publication", zap.Error(err))
		return report, fmt.Errorf("record publication: %w", err)
	}
	report.PublicationID = id
	span.SetAttributes(attribute.Int64("publication.id", id))
	log = log.With(zap.Int64("publication_id", id))

	recipients, err := p.subscribers.SubscribersFor(ctx, subType, req.TypeID)
	if err != nil {
		log.Error("Failed to load subscribers", zap.Error(err))
		report.Failures = append(report.Failures, Failure{Error: err.Error()})
		return report, nil
	}
	report.Subscribers = len(recipients)
	if len(recipients) == 0 {
		log.Info("Publication has no subscribers")
		return report, nil
	}

	drv, err := newDriver(subType, p.deps, req.SourceUserID)
	if err == nil {
		err = drv.Init(ctx)
	}
	if err != nil {
		log.Error("Failed to initialise driver", zap.Error(err))
		report.Failures = append(report.Failures, Failure{Error: err.Error()})
		return report, nil
	}

	for _, r := range recipients {
		for _, channel := range model.Channels() {
			if !r.Channels.Enabled(channel) {
				continue
			}
			ok, err := deliver(ctx, drv, channel, id, r, req.Message)
			switch {
			case err != nil:
				log.Warn("Channel delivery failed",
					zap.Int64("user_id", r.UserID),
					zap.String("channel", string(channel)),
					zap.Error(err),
				)
				metrics.IncrementPublicationDelivery(string(subType), string(channel), outcomeFailed)
				report.Failures = append(report.Failures, Failure{UserID: r.UserID, Channel: channel, Error: err.Error()})
			case ok:
				metrics.IncrementPublicationDelivery(string(subType), string(channel), outcomeDelivered)
				report.Delivered++
			default:
				metrics.IncrementPublicationDelivery(string(subType), string(channel), outcomeSkipped)
				report.Skipped++
			}
		}
	}

	log.Info("Publication delivered",
		zap.Int("subscribers", report.Subscribers),
		zap.Int("delivered", report.Delivered),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failures)),
	)
	return report, nil
}

// deliver dispatches to the driver method for channel. A panicking driver is
// reported as an error for that channel only.
func deliver(ctx context.Context, drv Driver, channel model.Channel, pubID int64, r model.Recipient, msg Message) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok, err = false, fmt.Errorf("driver panic: %v\n%s", rec, debug.Stack())
		}
	}()

	switch channel {
	case model.ChannelEmail:
		return drv.PublishEmail(ctx, pubID, r, msg)
	case model.ChannelNotification:
		return drv.PublishNotification(ctx, pubID, r, msg)
	case model.ChannelSMS:
		return drv.PublishSms(ctx, pubID, r, msg)
	case model.ChannelWhatsapp:
		return drv.PublishWhatsapp(ctx, pubID, r, msg)
	}
	return false, fmt.Errorf("unknown channel %q", channel)
}
