// Package mailer delivers password-reset email. The reset service depends on
// the Mailer interface; delivery is the out-of-band channel for reset tokens,
// which production responses never include directly.
package mailer

import "context"

// Mailer sends a password-reset email carrying the reset link.
type Mailer interface {
	SendResetEmail(ctx context.Context, toEmail, toName, resetLink string) error
}

// Noop discards email. Used in tests and when no provider is configured; the
// dev token-return flag is the only way to complete a reset in that setup.
type Noop struct{}

// SendResetEmail discards the message.
func (Noop) SendResetEmail(ctx context.Context, toEmail, toName, resetLink string) error {
	return nil
}
