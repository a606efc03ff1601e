package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGrid implements Mailer over the SendGrid v3 API.
type SendGrid struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendGrid returns a Mailer that sends through SendGrid with the given API
// key and sender identity.
func NewSendGrid(apiKey, fromEmail, fromName string) *SendGrid {
	return &SendGrid{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// SendResetEmail sends the reset link to the user. Returns an error on API
// failure or a non-2xx response.
func (s *SendGrid) SendResetEmail(ctx context.Context, toEmail, toName, resetLink string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	subject := "Reset your club account password"
	plain := "We received a request to reset your password.\n\n" +
		"Open this link within the next hour to choose a new one:\n" + resetLink + "\n\n" +
		"If you did not request this, you can ignore this email."
	html := "<p>We received a request to reset your password.</p>" +
		"<p><a href=\"" + resetLink + "\">Choose a new password</a> (the link expires in one hour).</p>" +
		"<p>If you did not request this, you can ignore this email.</p>"
	message := mail.NewSingleEmail(from, subject, to, plain, html)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("mailer: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mailer: sendgrid responded %d", resp.StatusCode)
	}
	return nil
}
