package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"volunteer-manager/internal/model"
)

type PublicationRepository struct {
	db DB
}

func NewPublicationRepository(db DB) *PublicationRepository {
	return &PublicationRepository{db: db}
}

// Insert records a publication and returns its id.
func (r *PublicationRepository) Insert(ctx context.Context, p *model.Publication) (int64, error) {
	query := `
        INSERT INTO publications (publication_user_id, publication_type, publication_type_id)
        VALUES ($1, $2, $3)
        RETURNING publication_id, publication_created
    `
	if err := r.db.QueryRow(ctx, query, p.UserID, p.Type, p.TypeID).Scan(&p.ID, &p.CreatedAt); err != nil {
		return 0, err
	}
	return p.ID, nil
}

func (r *PublicationRepository) Get(ctx context.Context, id int64) (*model.Publication, error) {
	var p model.Publication
	err := r.db.QueryRow(ctx, `
        SELECT publication_id, publication_user_id, publication_type, publication_type_id, publication_created
        FROM publications
        WHERE publication_id = $1
    `, id).Scan(&p.ID, &p.UserID, &p.Type, &p.TypeID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PublicationRepository) List(ctx context.Context, limit, offset int) ([]model.Publication, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
        SELECT publication_id, publication_user_id, publication_type, publication_type_id, publication_created
        FROM publications
        ORDER BY publication_id DESC
        LIMIT $1 OFFSET $2
    `, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pubs := []model.Publication{}
	for rows.Next() {
		var p model.Publication
		if err := rows.Scan(&p.ID, &p.UserID, &p.Type, &p.TypeID, &p.CreatedAt); err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	return pubs, rows.Err()
}
