// Package identity owns the credential records behind the clinic accounts:
// email, password hash and password reset tokens. Profile data lives in the
// clinic package; the two are joined by the subject id.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no identity matches.
	ErrNotFound = errors.New("identity: not found")
	// ErrAlreadyExists is returned when the email is already registered. The
	// storage unique constraint is the authoritative duplicate signal; callers
	// must not pre-check with a lookup.
	ErrAlreadyExists = errors.New("identity: already exists")
	// ErrTokenExpired is returned for reset tokens past their deadline.
	ErrTokenExpired = errors.New("identity: reset token expired")
)

// Identity is one credential record.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ResetToken is a single-use password reset grant.
type ResetToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Gateway abstracts credential storage.
type Gateway interface {
	// Create inserts a fresh identity. A duplicate email surfaces as
	// ErrAlreadyExists straight from the insert.
	Create(ctx context.Context, id, email, passwordHash string) (*Identity, error)
	Find(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	UpdateEmail(ctx context.Context, id, email string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error

	CreateResetToken(ctx context.Context, userID string, ttl time.Duration) (*ResetToken, error)
	// ConsumeResetToken validates and burns the token, returning the user it
	// belongs to.
	ConsumeResetToken(ctx context.Context, token string) (string, error)
}
