package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	mqcontracts "volunteer-manager/contracts/mq"
	"volunteer-manager/pkg/trace"
	"volunteer-manager/pkg/util"
)

// OnceGuard is implemented by *util.Deduper.
type OnceGuard interface {
	AcquireOnce(ctx context.Context, handler string, id int64) bool
	Release(ctx context.Context, handler string, id int64)
}

// DeliveryMarker is implemented by repository.NotificationRepository.
type DeliveryMarker interface {
	MarkDelivered(ctx context.Context, id int64) error
}

// Broadcaster pushes a payload to the user's live connections.
type Broadcaster interface {
	Broadcast(ctx context.Context, userID int64, payload []byte) error
}

// RedisBroadcaster publishes on the notifications:<user_id> pub/sub channel.
type RedisBroadcaster struct {
	rdb *redis.Client
}

func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

func ChannelFor(userID int64) string {
	return fmt.Sprintf("notifications:%d", userID)
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, userID int64, payload []byte) error {
	return b.rdb.Publish(ctx, ChannelFor(userID), payload).Err()
}

const deliverHandlerName = "notification_deliver"

type NotificationDeliverHandler struct {
	notifications DeliveryMarker
	broadcaster   Broadcaster
	deduper       OnceGuard
	logger        *zap.Logger
}

func NewNotificationDeliverHandler(
	notifications DeliveryMarker,
	broadcaster Broadcaster,
	deduper OnceGuard,
	logger *zap.Logger,
) *NotificationDeliverHandler {
	return &NotificationDeliverHandler{
		notifications: notifications,
		broadcaster:   broadcaster,
		deduper:       deduper,
		logger:        logger,
	}
}

// HandleNotificationCreated 推送站内通知并标记为已投递
func (h *NotificationDeliverHandler) HandleNotificationCreated(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.NotificationCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// JSON decode 错误 - 不可重试
		h.logger.Error("Failed to unmarshal notification created payload (non-retryable)", zap.Error(err))
		return nil
	}
	if p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := h.logger.With(
		zap.Int64("notification_id", p.NotificationID),
		zap.Int64("user_id", p.UserID),
		zap.String("trace_id", p.TraceID),
	)

	// Redis 去重
	if !h.deduper.AcquireOnce(ctx, deliverHandlerName, p.NotificationID) {
		log.Info("Duplicate notification event skipped")
		return nil
	}

	if err := h.deliver(ctx, p, raw); err != nil {
		isRetryable, errType := util.IsRetryableError(err)
		log.Error("Failed to deliver notification",
			zap.String("error_type", errType),
			zap.Bool("retryable", isRetryable),
			zap.Error(err),
		)
		if !isRetryable {
			return nil // 不可重试错误，ack 掉
		}
		h.deduper.Release(ctx, deliverHandlerName, p.NotificationID)
		return err // 可重试错误，nack 并重试
	}

	log.Info("Notification delivered")
	return nil
}

func (h *NotificationDeliverHandler) deliver(ctx context.Context, p mqcontracts.NotificationCreatedPayload, raw json.RawMessage) error {
	if err := h.broadcaster.Broadcast(ctx, p.UserID, raw); err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	if err := h.notifications.MarkDelivered(ctx, p.NotificationID); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}
