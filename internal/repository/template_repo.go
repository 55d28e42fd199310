package repository

import (
	"context"

	"volunteer-manager/internal/model"
)

type TemplateRepository struct {
	db DB
}

func NewTemplateRepository(db DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// ForType returns the templates configured for a subscription type, keyed by channel.
func (r *TemplateRepository) ForType(ctx context.Context, subType model.SubscriptionType) (map[model.Channel]model.Template, error) {
	rows, err := r.db.Query(ctx, `
        SELECT template_type, template_channel, template_title, template_body, COALESCE(template_content_sid, '')
        FROM subscription_templates
        WHERE template_type = $1
    `, subType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := map[model.Channel]model.Template{}
	for rows.Next() {
		var t model.Template
		if err := rows.Scan(&t.Type, &t.Channel, &t.Title, &t.Body, &t.ContentSID); err != nil {
			return nil, err
		}
		templates[t.Channel] = t
	}
	return templates, rows.Err()
}
