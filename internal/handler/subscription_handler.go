package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"volunteer-manager/internal/model"
)

type SubscriptionStore interface {
	ListForUser(ctx context.Context, userID int64) ([]model.Subscription, error)
	Upsert(ctx context.Context, s model.Subscription) error
}

type NotificationStore interface {
	ListForUser(ctx context.Context, userID int64, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
}

// UserHandler serves the signed-in user's subscriptions and notifications.
type UserHandler struct {
	subscriptions SubscriptionStore
	notifications NotificationStore
	logger        *zap.Logger
}

func NewUserHandler(subscriptions SubscriptionStore, notifications NotificationStore, logger *zap.Logger) *UserHandler {
	return &UserHandler{subscriptions: subscriptions, notifications: notifications, logger: logger}
}

// GetSubscriptions handles GET /subscriptions
func (h *UserHandler) GetSubscriptions(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	list, err := h.subscriptions.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list subscriptions", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch subscriptions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": list})
}

// PutSubscription handles PUT /subscriptions
func (h *UserHandler) PutSubscription(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req struct {
		Type     model.SubscriptionType `json:"type" binding:"required"`
		TypeID   *int64                 `json:"type_id"`
		Channels model.ChannelFlags     `json:"channels"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown subscription type"})
		return
	}
	if !req.Type.Scoped() {
		req.TypeID = nil
	}

	sub := model.Subscription{UserID: userID, Type: req.Type, TypeID: req.TypeID, Channels: req.Channels}
	if err := h.subscriptions.Upsert(c.Request.Context(), sub); err != nil {
		h.logger.Error("Failed to save subscription", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// GetNotifications handles GET /notifications
func (h *UserHandler) GetNotifications(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	list, err := h.notifications.ListForUser(c.Request.Context(), userID, queryInt(c, "limit", 50, 200))
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// MarkNotificationRead handles POST /notifications/:id/read
func (h *UserHandler) MarkNotificationRead(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), userID, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		h.logger.Error("Failed to mark notification read", zap.Int64("notification_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}
