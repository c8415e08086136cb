package repository

import (
	"context"

	"github.com/febriansr/authgate/internal/domain"
)

type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
}

type UserRepository interface {
	// Create inserts an unverified user. Returns domain.ErrDuplicateEmail
	// when the store's unique index on the lowercased email fires.
	Create(ctx context.Context, params CreateUserParams) (*domain.User, error)

	// FindByEmail matches case-insensitively.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	FindByID(ctx context.Context, id string) (*domain.User, error)

	// MarkEmailVerified flips email_verified to true.
	MarkEmailVerified(ctx context.Context, userID string) error

	List(ctx context.Context) ([]*domain.User, error)
}
