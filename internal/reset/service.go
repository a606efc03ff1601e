// Package reset implements the password-reset token lifecycle: per-user
// single-use tokens with a one-hour expiry, issued on request, verified
// read-only, and consumed atomically on reset.
package reset

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"fitclub-access/internal/audit"
	auditdomain "fitclub-access/internal/audit/domain"
	"fitclub-access/internal/mailer"
	"fitclub-access/internal/security"
	userdomain "fitclub-access/internal/user/domain"
	userrepo "fitclub-access/internal/user/repository"
)

// DefaultTokenTTL is how long a reset token stays valid after issuance.
const DefaultTokenTTL = time.Hour

// Sentinel errors for the reset flow. The HTTP layer maps ErrNotFound and
// ErrDeactivated to the same generic response so reset requests cannot be used
// to enumerate accounts; the distinction survives only in the audit log.
var (
	ErrNotFound     = errors.New("account not found")
	ErrDeactivated  = errors.New("account is deactivated")
	ErrInvalidToken = errors.New("invalid reset token")
	ErrExpiredToken = errors.New("reset token has expired")
)

// RequestResult is the outcome of a successful RequestReset. Token is the raw
// reset token; it is handed back to the caller so dev/test flows can complete
// a reset without email delivery, and the HTTP layer must expose it only when
// the dev flag is enabled.
type RequestResult struct {
	UserID    string
	Email     string
	Name      string
	Token     string
	ExpiresAt time.Time
}

// VerifyResult identifies the user holding a valid token.
type VerifyResult struct {
	UserID string
	Email  string
	Name   string
}

// Service drives the reset-token state machine against the user repository.
type Service struct {
	users       userrepo.Repository
	auditor     audit.Recorder
	hasher      *security.Hasher
	mail        mailer.Mailer
	tokenTTL    time.Duration
	linkBaseURL string
	nowF        func() time.Time
}

// NewService returns a reset Service. tokenTTL <= 0 selects DefaultTokenTTL;
// linkBaseURL is the public page the emailed link points at.
func NewService(users userrepo.Repository, auditor audit.Recorder, hasher *security.Hasher, mail mailer.Mailer, tokenTTL time.Duration, linkBaseURL string) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	if mail == nil {
		mail = mailer.Noop{}
	}
	return &Service{
		users:       users,
		auditor:     auditor,
		hasher:      hasher,
		mail:        mail,
		tokenTTL:    tokenTTL,
		linkBaseURL: linkBaseURL,
		nowF:        time.Now().UTC,
	}
}

// RequestReset issues a fresh reset token for the account with the given email
// in the given partition. Any prior pending token is unconditionally
// overwritten, which invalidates it even if unused. The new token is persisted
// on the user record, emailed out-of-band, and audit-logged as requested.
//
// Not-found and deactivated accounts return ErrNotFound / ErrDeactivated and
// log a failed entry; callers must not surface the difference publicly.
func (s *Service) RequestReset(ctx context.Context, email string, userType userdomain.Type) (*RequestResult, error) {
	now := s.nowF()
	u, err := s.users.GetByEmail(ctx, userType, email)
	if err != nil {
		return nil, fmt.Errorf("reset: lookup by email: %w", err)
	}
	if u == nil {
		s.record(ctx, "", userType, email, auditdomain.ActionFailed, "reset requested for unknown email")
		return nil, ErrNotFound
	}
	if !u.IsActive {
		s.record(ctx, u.ID, userType, email, auditdomain.ActionFailed, "reset requested for deactivated account")
		return nil, ErrDeactivated
	}

	token, err := security.GenerateToken(32)
	if err != nil {
		return nil, err
	}
	expiresAt := now.Add(s.tokenTTL)
	if err := s.users.SetResetToken(ctx, u.ID, token, expiresAt, now); err != nil {
		return nil, fmt.Errorf("reset: store token: %w", err)
	}
	s.record(ctx, u.ID, userType, u.Email, auditdomain.ActionRequested, "reset token issued")

	if err := s.mail.SendResetEmail(ctx, u.Email, u.Name, s.resetLink(token, userType)); err != nil {
		// The token is already live; a delivery failure is logged but the
		// request still succeeds so a retry reuses the normal path.
		log.Printf("reset: send email to %s failed: %v", u.Email, err)
	}

	return &RequestResult{
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyToken checks a token without consuming it, so a reset page can be
// pre-validated before the user submits a new password. Expired tokens fail
// with ErrExpiredToken, distinct from ErrInvalidToken, so callers can offer
// "request a new one" messaging.
func (s *Service) VerifyToken(ctx context.Context, token string, userType userdomain.Type) (*VerifyResult, error) {
	u, err := s.lookupToken(ctx, token, userType)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{UserID: u.ID, Email: u.Email, Name: u.Name}, nil
}

// ResetPassword re-verifies the token and consumes it: the new password hash
// is written and the token cleared in one conditional update keyed on the
// token's current value, so a token can never be used twice even when two
// requests race. Success stamps password_changed_at and logs completed.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string, userType userdomain.Type) error {
	// Re-verify rather than trusting an earlier VerifyToken call; time has
	// passed and the token may have expired or been superseded.
	u, err := s.lookupToken(ctx, token, userType)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return fmt.Errorf("reset: hash password: %w", err)
	}
	consumed, err := s.users.ConsumeResetToken(ctx, u.ID, token, hash, s.nowF())
	if err != nil {
		return fmt.Errorf("reset: consume token: %w", err)
	}
	if !consumed {
		// Lost the race: the token was consumed or superseded between the
		// verify read and the conditional update.
		s.record(ctx, u.ID, userType, u.Email, auditdomain.ActionFailed, "token consumed concurrently")
		return ErrInvalidToken
	}
	s.record(ctx, u.ID, userType, u.Email, auditdomain.ActionCompleted, "password reset completed")
	return nil
}

// CleanupExpiredTokens clears stale token fields across both partitions and
// logs an expired entry per cleaned user. Returns the number cleaned. Invoked
// periodically by the sweep worker.
func (s *Service) CleanupExpiredTokens(ctx context.Context) (int, error) {
	cleaned, err := s.users.ClearExpiredResetTokens(ctx, s.nowF())
	if err != nil {
		return 0, fmt.Errorf("reset: clear expired tokens: %w", err)
	}
	for _, u := range cleaned {
		s.record(ctx, u.ID, u.Type, u.Email, auditdomain.ActionExpired, "unused reset token expired")
	}
	return len(cleaned), nil
}

func (s *Service) lookupToken(ctx context.Context, token string, userType userdomain.Type) (*userdomain.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	u, err := s.users.GetByResetToken(ctx, userType, token)
	if err != nil {
		return nil, fmt.Errorf("reset: lookup by token: %w", err)
	}
	if u == nil || !security.TokenEqual(u.ResetPasswordToken, token) {
		s.record(ctx, "", userType, "", auditdomain.ActionFailed, "unknown reset token presented")
		return nil, ErrInvalidToken
	}
	if u.ResetPasswordExpires == nil || u.ResetPasswordExpires.Before(s.nowF()) {
		s.record(ctx, u.ID, userType, u.Email, auditdomain.ActionExpired, "expired reset token presented")
		return nil, ErrExpiredToken
	}
	return u, nil
}

func (s *Service) record(ctx context.Context, userID string, userType userdomain.Type, email string, action auditdomain.Action, details string) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, userID, string(userType), email, action, details)
}

func (s *Service) resetLink(token string, userType userdomain.Type) string {
	base := s.linkBaseURL
	if base == "" {
		base = "/reset-password"
	}
	return base + "?token=" + url.QueryEscape(token) + "&user_type=" + string(userType)
}
