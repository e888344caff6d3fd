// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carterperez-dev/judge/session-backend/internal/auth"
	"github.com/carterperez-dev/judge/session-backend/internal/core"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// VerifyCredentials runs the password check even for unknown usernames so
// both failure modes take the same time and return the same error.
func (s *Service) VerifyCredentials(
	ctx context.Context,
	username, password string,
) (*auth.Principal, error) {
	var hash *string

	user, err := s.repo.GetByUsername(ctx, normalizeUsername(username))
	switch {
	case errors.Is(err, core.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		hash = &user.PasswordHash
	}

	ok, err := core.VerifyPasswordTimingSafe(password, hash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok || user == nil {
		return nil, auth.ErrInvalidCredentials
	}

	return toPrincipal(user), nil
}

func (s *Service) PrincipalByID(
	ctx context.Context,
	id string,
) (*auth.Principal, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return toPrincipal(user), nil
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.GetByUsername(ctx, normalizeUsername(username))
}

func (s *Service) Create(ctx context.Context, req CreateUserRequest) (*User, error) {
	passwordHash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		ID:           uuid.New().String(),
		Username:     normalizeUsername(req.Username),
		DisplayName:  req.DisplayName,
		PasswordHash: passwordHash,
		Role:         req.Role,
		Rating:       req.Rating,
	}
	if user.DisplayName == "" {
		user.DisplayName = req.Username
	}
	if user.Role == "" {
		user.Role = RoleUser
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func toPrincipal(u *User) *auth.Principal {
	return &auth.Principal{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		Rating:      u.Rating,
	}
}

var _ auth.UserProvider = (*Service)(nil)
