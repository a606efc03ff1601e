package domain

import (
	"errors"
	"time"
)

// Type partitions accounts: club members on one side, staff (trainers and
// admins) on the other. Email uniqueness and reset-token lookups are scoped
// per partition.
type Type string

const (
	TypeStaff  Type = "staff"
	TypeMember Type = "member"
)

// ParseType validates a user-type tag from the API surface.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeStaff, TypeMember:
		return Type(s), nil
	}
	return "", errors.New("user type must be staff or member")
}

// User is an account record. The reset-token fields live directly on the user
// row: a user holds at most one live reset token at a time, and issuing a new
// one overwrites the old.
type User struct {
	ID           string
	Type         Type
	Email        string
	Name         string
	Role         string // member, trainer, or admin
	PasswordHash string
	IsActive     bool

	ResetPasswordToken       string     // empty when no pending token
	ResetPasswordExpires     *time.Time // nil when no pending token
	ResetPasswordRequestedAt *time.Time
	PasswordChangedAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate validates the user for persistence.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Type != TypeStaff && u.Type != TypeMember {
		return errors.New("user type must be staff or member")
	}
	if u.Role == "" {
		u.Role = "member"
	}
	return nil
}

// HasLiveResetToken reports whether the user holds a reset token that has not
// yet expired at the given instant. A token expires once its expiry instant is
// in the past; an expired token still stored on the row is treated as absent.
func (u *User) HasLiveResetToken(now time.Time) bool {
	return u.ResetPasswordToken != "" && u.ResetPasswordExpires != nil && !u.ResetPasswordExpires.Before(now)
}
