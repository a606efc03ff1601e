package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitclub-access/internal/user/domain"
)

const userColumns = `id, user_type, email, name, role, password_hash, is_active,
	reset_password_token, reset_password_expires, reset_password_requested_at,
	password_changed_at, created_at, updated_at`

// PostgresRepository persists users with pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a user repository over the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the user for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email in the given partition, or
// nil if not found. Email comparison is case-insensitive.
func (r *PostgresRepository) GetByEmail(ctx context.Context, userType domain.Type, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_type = $1 AND lower(email) = lower($2)`,
		string(userType), email)
	return scanUser(row)
}

// GetByResetToken returns the user holding the given reset token in the given
// partition, or nil if no row matches. Expiry is not checked here.
func (r *PostgresRepository) GetByResetToken(ctx context.Context, userType domain.Type, token string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_type = $1 AND reset_password_token = $2`,
		string(userType), token)
	return scanUser(row)
}

// Create persists the user. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, user_type, email, name, role, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, string(u.Type), u.Email, u.Name, u.Role, u.PasswordHash, u.IsActive, u.CreatedAt, u.UpdatedAt)
	return err
}

// SetResetToken overwrites the user's reset-token fields. Any prior pending
// token is invalidated as a side effect.
func (r *PostgresRepository) SetResetToken(ctx context.Context, userID, token string, expiresAt, requestedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET reset_password_token = $2,
		    reset_password_expires = $3,
		    reset_password_requested_at = $4,
		    updated_at = $4
		WHERE id = $1`,
		userID, token, expiresAt, requestedAt)
	return err
}

// ConsumeResetToken writes the new password hash and clears the token fields
// in one conditional update keyed on the current token value. The WHERE clause
// is the compare-and-clear: when two resets race the same token, exactly one
// update matches a row.
func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, userID, token, newPasswordHash string, changedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $3,
		    reset_password_token = NULL,
		    reset_password_expires = NULL,
		    password_changed_at = $4,
		    updated_at = $4
		WHERE id = $1 AND reset_password_token = $2`,
		userID, token, newPasswordHash, changedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClearExpiredResetTokens clears token fields for every user whose token
// expired before now, across both partitions, and returns the affected users.
func (r *PostgresRepository) ClearExpiredResetTokens(ctx context.Context, now time.Time) ([]*domain.User, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE users
		SET reset_password_token = NULL,
		    reset_password_expires = NULL,
		    updated_at = $1
		WHERE reset_password_token IS NOT NULL AND reset_password_expires < $1
		RETURNING `+userColumns,
		now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u           domain.User
		userType    string
		resetToken  *string
		resetExp    *time.Time
		requestedAt *time.Time
		changedAt   *time.Time
	)
	err := row.Scan(&u.ID, &userType, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.IsActive,
		&resetToken, &resetExp, &requestedAt, &changedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Type = domain.Type(userType)
	if resetToken != nil {
		u.ResetPasswordToken = *resetToken
	}
	u.ResetPasswordExpires = resetExp
	u.ResetPasswordRequestedAt = requestedAt
	u.PasswordChangedAt = changedAt
	return &u, nil
}
