package notify

import (
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/mail.v2"
)

// EmailSink delivers one notification message per recipient.
type EmailSink interface {
	SendEmail(subject, body string, to []string) error
}

// SMTPEmailSink relays outbound notification email through an authenticated
// SMTP relay. Every message opens its own connection via
// mail.Dialer.DialAndSend; connections are not pooled or reused. STARTTLS
// follows the mail.Dialer default policy.
type SMTPEmailSink struct {
	dialer  *mail.Dialer
	from    string
	replyTo string
	logger  *slog.Logger
}

// NewSMTPEmailSink builds a sink that relays through host:port using the
// given credentials. from is used as the envelope and header From address.
// replyTo, if non-empty, is set as the Reply-To header on every message.
func NewSMTPEmailSink(host string, port int, username, password, from, replyTo string, logger *slog.Logger) *SMTPEmailSink {
	d := mail.NewDialer(host, port, username, password)
	return &SMTPEmailSink{dialer: d, from: from, replyTo: replyTo, logger: logger}
}

// SendEmail sends one message per recipient so a single bad address can't
// prevent delivery to the rest. A per-recipient error is logged and the loop
// continues; once every recipient has been tried, the per-recipient errors
// are returned joined (nil if all succeeded).
func (s *SMTPEmailSink) SendEmail(subject, body string, to []string) error {
	var errs []error
	for _, recipient := range to {
		m := mail.NewMessage()
		m.SetHeader("From", s.from)
		m.SetHeader("To", recipient)
		if s.replyTo != "" {
			m.SetHeader("Reply-To", s.replyTo)
		}
		m.SetHeader("Subject", subject)
		m.SetBody("text/plain", body)

		if err := s.dialer.DialAndSend(m); err != nil {
			s.logger.Error("failed to send email", slog.String("to", recipient), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("send email to %s: %w", recipient, err))
			continue
		}
		s.logger.Info("sent email", slog.String("to", recipient))
	}
	return errors.Join(errs...)
}
