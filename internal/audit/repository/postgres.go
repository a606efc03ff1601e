package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitclub-access/internal/audit/domain"
)

// PostgresRepository persists audit entries with pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an audit repository over the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create appends one audit entry. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_reset_audit (id, user_id, user_type, email, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.UserType, e.Email, string(e.Action), e.Details, e.CreatedAt)
	return err
}

// ListRecent returns audit entries newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit, offset int32) ([]*domain.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, user_type, email, action, details, created_at
		FROM password_reset_audit
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListByUser returns a user's audit entries newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int32) ([]*domain.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, user_type, email, action, details, created_at
		FROM password_reset_audit
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]*domain.Entry, error) {
	var out []*domain.Entry
	for rows.Next() {
		var (
			e      domain.Entry
			action string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserType, &e.Email, &action, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = domain.Action(action)
		out = append(out, &e)
	}
	return out, rows.Err()
}
