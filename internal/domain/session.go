package domain

import (
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the server-side record behind the opaque cookie token.
// The raw token never touches the database: the row keys on its SHA-256
// hash. UpdatedAt tracks the last sliding renewal.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at the given
// instant. Rows may outlive their expiry until the purger runs, so every
// read path must check this.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
