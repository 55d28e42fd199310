package model

import "time"

const UserStateRevoked = "revoked"

type User struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	DisplayName  string    `json:"display_name,omitempty"`
	EmailAddress string    `json:"email_address,omitempty"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
}
