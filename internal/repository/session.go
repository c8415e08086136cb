package repository

import (
	"context"
	"time"

	"github.com/febriansr/authgate/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*domain.Session, error)

	// FindByTokenHash returns the stored row regardless of expiry; callers
	// decide what an expired row means.
	FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)

	// Renew pushes expires_at forward and touches updated_at.
	Renew(ctx context.Context, id string, expiresAt time.Time) error

	// DeleteByTokenHash returns domain.ErrSessionNotFound when no row matched.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteExpired removes sessions past their expiry, returning the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
