package repository

import (
	"context"
	"time"
)

type VerificationTokenRepository interface {
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error

	// Consume atomically deletes a non-expired token and marks the owning
	// user verified in one transaction, returning the user ID. A replay or
	// an expired token yields domain.ErrTokenInvalid.
	Consume(ctx context.Context, tokenHash string, now time.Time) (userID string, err error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
