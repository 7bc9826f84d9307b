package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"driftwood/itemvault/internal/model"
	"driftwood/itemvault/internal/repository"
	"driftwood/itemvault/pkg/crypto"
)

type UserService interface {
	Create(ctx context.Context, email, username, password string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	SoftDelete(ctx context.Context, id, actor string) error
	SetAdminStatus(ctx context.Context, id string, admin bool) error
}

type userService struct {
	users repository.Repository[model.User]
}

func NewUserService(users repository.Repository[model.User]) UserService {
	return &userService{users: users}
}

func (s *userService) Create(ctx context.Context, email, username, password string) (*model.User, error) {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		CreatedAt:    time.Now().UTC(),
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *userService) List(ctx context.Context) ([]model.User, error) {
	return s.users.Scan(ctx)
}

func (s *userService) SoftDelete(ctx context.Context, id, actor string) error {
	return s.users.SoftDelete(ctx, id, actor)
}

// SetAdminStatus flips the admin flag in place; the store rejects the write
// when the user is gone or tombstoned.
func (s *userService) SetAdminStatus(ctx context.Context, id string, admin bool) error {
	return s.users.UpdateFields(ctx, id, map[string]any{"admin": admin})
}
