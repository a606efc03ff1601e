package repository

import (
	"context"

	"fitclub-access/internal/audit/domain"
)

// Repository defines persistence for password-reset audit entries.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	// ListRecent returns entries newest first, paginated by limit and offset.
	ListRecent(ctx context.Context, limit, offset int32) ([]*domain.Entry, error)
	// ListByUser returns a user's entries newest first.
	ListByUser(ctx context.Context, userID string, limit int32) ([]*domain.Entry, error)
}
