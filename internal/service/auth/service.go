package auth

import (
	"context"
	"errors"
	"time"

	"volunteer-manager/internal/model"
	"volunteer-manager/internal/util"
	"volunteer-manager/pkg/rbac"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// UserFinder is implemented by repository.UserRepository.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

type Service struct {
	users     UserFinder
	jwtSecret string
	ttl       time.Duration
}

func NewService(users UserFinder, jwtSecret string, ttl time.Duration) *Service {
	return &Service{
		users:     users,
		jwtSecret: jwtSecret,
		ttl:       ttl,
	}
}

// Login checks user credentials and returns JWT.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if u.State == model.UserStateRevoked || u.PasswordHash == "" {
		return "", ErrInvalidCredentials
	}
	if !util.CheckPassword(password, u.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	role := u.Role
	if !rbac.IsKnownRole(role) {
		role = rbac.RoleVolunteer
	}
	return util.GenerateJWT(u.ID, role, s.jwtSecret, s.ttl)
}
