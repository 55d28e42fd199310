package repository

import (
	"context"

	"go.uber.org/zap"

	"volunteer-manager/internal/model"
)

type SubscriptionRepository struct {
	db     DB
	logger *zap.Logger
}

func NewSubscriptionRepository(db DB, logger *zap.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, logger: logger}
}

// SubscribersFor returns every non-revoked user subscribed to the given type
// with at least one channel enabled. typeID only narrows scoped types.
func (r *SubscriptionRepository) SubscribersFor(ctx context.Context, subType model.SubscriptionType, typeID *int64) ([]model.Recipient, error) {
	var scope *int64
	if subType.Scoped() {
		scope = typeID
	}

	query := `
        SELECT u.user_id,
               u.first_name || ' ' || u.last_name,
               COALESCE(NULLIF(u.display_name, ''), u.first_name),
               COALESCE(u.email_address, ''),
               COALESCE(u.phone_number, ''),
               s.subscription_channel_email,
               s.subscription_channel_notification,
               s.subscription_channel_sms,
               s.subscription_channel_whatsapp
        FROM subscriptions s
        JOIN users u ON u.user_id = s.subscription_user_id
        WHERE s.subscription_type = $1
        AND ($2::BIGINT IS NULL OR s.subscription_type_id = $2)
        AND u.user_state <> 'revoked'
        AND (s.subscription_channel_email OR s.subscription_channel_notification
             OR s.subscription_channel_sms OR s.subscription_channel_whatsapp)
    `
	rows, err := r.db.Query(ctx, query, subType, scope)
	if err != nil {
		r.logger.Error("Failed to query subscribers",
			zap.String("type", string(subType)),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		var rc model.Recipient
		if err := rows.Scan(
			&rc.UserID,
			&rc.Name,
			&rc.ShortName,
			&rc.EmailAddress,
			&rc.PhoneNumber,
			&rc.Channels.Email,
			&rc.Channels.Notification,
			&rc.Channels.SMS,
			&rc.Channels.WhatsApp,
		); err != nil {
			return nil, err
		}
		recipients = append(recipients, rc)
	}
	return recipients, rows.Err()
}

// Upsert creates or replaces the user's channel flags for (type, type id).
func (r *SubscriptionRepository) Upsert(ctx context.Context, s model.Subscription) error {
	query := `
        INSERT INTO subscriptions (subscription_user_id, subscription_type, subscription_type_id,
                                   subscription_channel_email, subscription_channel_notification,
                                   subscription_channel_sms, subscription_channel_whatsapp)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (subscription_user_id, subscription_type, (COALESCE(subscription_type_id, 0)))
        DO UPDATE SET subscription_channel_email = EXCLUDED.subscription_channel_email,
                      subscription_channel_notification = EXCLUDED.subscription_channel_notification,
                      subscription_channel_sms = EXCLUDED.subscription_channel_sms,
                      subscription_channel_whatsapp = EXCLUDED.subscription_channel_whatsapp
    `
	_, err := r.db.Exec(ctx, query,
		s.UserID,
		s.Type,
		s.TypeID,
		s.Channels.Email,
		s.Channels.Notification,
		s.Channels.SMS,
		s.Channels.WhatsApp,
	)
	if err != nil {
		r.logger.Error("Failed to upsert subscription",
			zap.Int64("user_id", s.UserID),
			zap.String("type", string(s.Type)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *SubscriptionRepository) ListForUser(ctx context.Context, userID int64) ([]model.Subscription, error) {
	rows, err := r.db.Query(ctx, `
        SELECT subscription_user_id, subscription_type, subscription_type_id,
               subscription_channel_email, subscription_channel_notification,
               subscription_channel_sms, subscription_channel_whatsapp
        FROM subscriptions
        WHERE subscription_user_id = $1
        ORDER BY subscription_type, subscription_type_id NULLS FIRST
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		if err := rows.Scan(
			&s.UserID,
			&s.Type,
			&s.TypeID,
			&s.Channels.Email,
			&s.Channels.Notification,
			&s.Channels.SMS,
			&s.Channels.WhatsApp,
		); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
