package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"volunteer-manager/internal/model"
)

type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `
        SELECT user_id, first_name, last_name, COALESCE(display_name, ''), COALESCE(email_address, ''),
               COALESCE(phone_number, ''), COALESCE(password_hash, ''), user_role, user_state, created_at
        FROM users
        WHERE lower(email_address) = lower($1)
    `
	var u model.User
	err := r.db.QueryRow(ctx, query, email).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.DisplayName, &u.EmailAddress,
		&u.PhoneNumber, &u.PasswordHash, &u.Role, &u.State, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
