package repository

import (
	"context"
	"time"

	"fitclub-access/internal/user/domain"
)

// Repository defines persistence for user accounts and their reset-token
// fields. Lookups return (nil, nil) for missing rows; errors are reserved for
// database failures.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, userType domain.Type, email string) (*domain.User, error)
	// GetByResetToken returns the user in the given partition whose stored
	// reset token equals token, regardless of expiry. The caller decides
	// between invalid and expired.
	GetByResetToken(ctx context.Context, userType domain.Type, token string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// SetResetToken stores a new reset token on the user row, unconditionally
	// overwriting any prior token, and stamps the request time.
	SetResetToken(ctx context.Context, userID, token string, expiresAt, requestedAt time.Time) error
	// ConsumeResetToken atomically verifies and clears the token in a single
	// conditional update: the new password hash is written, and the token
	// fields cleared, only if the stored token still equals token. Returns
	// false when the token was already consumed or superseded, so a token can
	// never be used twice even under concurrent resets.
	ConsumeResetToken(ctx context.Context, userID, token, newPasswordHash string, changedAt time.Time) (bool, error)
	// ClearExpiredResetTokens removes token fields from every user whose token
	// expired before now and returns the affected users for audit logging.
	ClearExpiredResetTokens(ctx context.Context, now time.Time) ([]*domain.User, error)
}
