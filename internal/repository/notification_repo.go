package repository

import (
	"context"

	"go.uber.org/zap"

	mqcontracts "volunteer-manager/contracts/mq"
	"volunteer-manager/internal/model"
	"volunteer-manager/pkg/outbox"
	"volunteer-manager/pkg/trace"
)

type NotificationRepository struct {
	db     DB
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewNotificationRepository(db DB, outboxRepo *outbox.Repository, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, outbox: outboxRepo, logger: logger}
}

// Create writes the notification and a notification.created outbox event atomically.
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
        INSERT INTO notifications (notification_user_id, notification_publication_id,
                                   notification_title, notification_body, notification_url)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''))
        RETURNING notification_id, notification_created
    `, n.UserID, n.PublicationID, n.Title, n.Body, n.URL).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return 0, err
	}

	payload := mqcontracts.NotificationCreatedPayload{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Title:          n.Title,
		Body:           n.Body,
		URL:            n.URL,
		TraceID:        trace.FromContext(ctx),
		CreatedAt:      n.CreatedAt,
	}
	if n.PublicationID != nil {
		payload.PublicationID = *n.PublicationID
	}
	if err := outbox.InsertEventInTx(ctx, tx, r.outbox, "notification", &n.ID, mqcontracts.RoutingKeyNotificationCreated, payload); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	r.logger.Debug("Notification created",
		zap.Int64("notification_id", n.ID),
		zap.Int64("user_id", n.UserID),
	)
	return n.ID, nil
}

// MarkDelivered flags the notification as pushed to the user's live channel.
func (r *NotificationRepository) MarkDelivered(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE notifications SET notification_delivered = TRUE WHERE notification_id = $1
    `, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// MarkRead flags a notification owned by userID as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id int64) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE notifications SET notification_read = TRUE
        WHERE notification_id = $1 AND notification_user_id = $2
    `, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) ListForUser(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
        SELECT notification_id, notification_user_id, notification_publication_id, notification_title,
               notification_body, COALESCE(notification_url, ''), notification_delivered,
               notification_read, notification_created
        FROM notifications
        WHERE notification_user_id = $1
        ORDER BY notification_id DESC
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.PublicationID,
			&n.Title,
			&n.Body,
			&n.URL,
			&n.Delivered,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}
