package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"volunteer-manager/internal/model"
	"volunteer-manager/internal/notify"
)

type PublicationReader interface {
	Get(ctx context.Context, id int64) (*model.Publication, error)
	List(ctx context.Context, limit, offset int) ([]model.Publication, error)
}

type ReportPublisher interface {
	PublishReport(ctx context.Context, req notify.Request) (notify.Report, error)
}

type DeliveryReader interface {
	List(ctx context.Context, channel model.Channel, limit, offset int) ([]model.Delivery, error)
}

type PublicationHandler struct {
	publications PublicationReader
	deliveries   DeliveryReader
	publisher    ReportPublisher
	logger       *zap.Logger
}

func NewPublicationHandler(publications PublicationReader, deliveries DeliveryReader, publisher ReportPublisher, logger *zap.Logger) *PublicationHandler {
	return &PublicationHandler{
		publications: publications,
		deliveries:   deliveries,
		publisher:    publisher,
		logger:       logger,
	}
}

// ListPublications handles GET /admin/publications
func (h *PublicationHandler) ListPublications(c *gin.Context) {
	list, err := h.publications.List(c.Request.Context(), queryInt(c, "limit", 50, 500), queryInt(c, "offset", 0, 0))
	if err != nil {
		h.logger.Error("Failed to list publications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch publications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publications": list})
}

// GetPublication handles GET /admin/publications/:id
func (h *PublicationHandler) GetPublication(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.publications.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "publication not found"})
			return
		}
		h.logger.Error("Failed to load publication", zap.Int64("publication_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch publication"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publication": p})
}

// SendTest handles POST /admin/publications/test
// 向 Test 类型的订阅者发送测试消息
func (h *PublicationHandler) SendTest(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	report, err := h.publisher.PublishReport(c.Request.Context(), notify.Request{
		SourceUserID: &userID,
		Message:      notify.TestMessage{Message: req.Message},
	})
	if err != nil {
		h.logger.Error("Failed to publish test message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"report": report})
}

// Publish handles POST /admin/publications
// 按订阅类型解析消息并向订阅者分发
func (h *PublicationHandler) Publish(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req struct {
		Type    model.SubscriptionType `json:"type" binding:"required"`
		TypeID  *int64                 `json:"type_id"`
		Message json.RawMessage        `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	msg, err := notify.DecodeMessage(req.Type, req.Message)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	typeID := req.TypeID
	if typeID == nil {
		typeID = notify.ScopeID(msg)
	}

	report, err := h.publisher.PublishReport(c.Request.Context(), notify.Request{
		SourceUserID: &userID,
		TypeID:       typeID,
		Message:      msg,
	})
	if err != nil {
		h.logger.Error("Failed to publish message",
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"report": report})
}

// ListDeliveries handles GET /admin/deliveries?channel=
func (h *PublicationHandler) ListDeliveries(c *gin.Context) {
	channel := model.Channel(c.Query("channel"))
	if channel != "" && !channel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
		return
	}

	list, err := h.deliveries.List(c.Request.Context(), channel, queryInt(c, "limit", 100, 1000), queryInt(c, "offset", 0, 0))
	if err != nil {
		h.logger.Error("Failed to list deliveries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch deliveries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": list})
}
