package repository

import (
	"context"

	"volunteer-manager/internal/model"
)

type DeliveryRepository struct {
	db DB
}

func NewDeliveryRepository(db DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) Insert(ctx context.Context, d *model.Delivery) error {
	query := `
        INSERT INTO deliveries (delivery_task_id, delivery_channel, delivery_recipient,
                                delivery_source_user_id, delivery_target_user_id,
                                delivery_publication_id, delivery_error)
        VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
        RETURNING delivery_id, delivery_created
    `
	return r.db.QueryRow(ctx, query,
		d.TaskID,
		d.Channel,
		d.Recipient,
		d.SourceUserID,
		d.TargetUserID,
		d.PublicationID,
		d.Error,
	).Scan(&d.ID, &d.CreatedAt)
}

// List returns the outbound message log, newest first. An empty channel lists all.
func (r *DeliveryRepository) List(ctx context.Context, channel model.Channel, limit, offset int) ([]model.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
        SELECT delivery_id, delivery_task_id, delivery_channel, delivery_recipient,
               delivery_source_user_id, delivery_target_user_id, delivery_publication_id,
               COALESCE(delivery_error, ''), delivery_created
        FROM deliveries
        WHERE ($1::TEXT = '' OR delivery_channel = $1)
        ORDER BY delivery_id DESC
        LIMIT $2 OFFSET $3
    `, string(channel), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.Delivery{}
	for rows.Next() {
		var d model.Delivery
		if err := rows.Scan(
			&d.ID,
			&d.TaskID,
			&d.Channel,
			&d.Recipient,
			&d.SourceUserID,
			&d.TargetUserID,
			&d.PublicationID,
			&d.Error,
			&d.CreatedAt,
		); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}
