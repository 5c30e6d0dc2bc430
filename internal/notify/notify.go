// Package notify delivers maintenance notifications by email.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/landlord/config"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// DefaultFrom is used when neither a sender nor an SMTP username is configured.
const DefaultFrom = "maintenance@system.com"

type dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailSender sends plain-text email to a fixed recipient over SMTP.
type EmailSender struct {
	client    dialer
	from      string
	recipient string
	logger    *zap.Logger
}

// NewEmailSender builds an SMTP sender from cfg.
func NewEmailSender(cfg config.NotificationConfig, logger *zap.Logger) (*EmailSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return newEmailSender(client, from, cfg.Recipient, logger), nil
}

func newEmailSender(client dialer, from, recipient string, logger *zap.Logger) *EmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(from) == "" {
		from = DefaultFrom
	}
	return &EmailSender{client: client, from: from, recipient: recipient, logger: logger.Named("notify")}
}

// Send delivers one message and reports "Email sent to <recipient>".
func (s *EmailSender) Send(ctx context.Context, subject, body string) (string, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return "", fmt.Errorf("invalid sender %q: %w", s.from, err)
	}
	if err := msg.To(s.recipient); err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", s.recipient, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	s.logger.Info("notification sent", zap.String("recipient", s.recipient), zap.String("subject", subject))
	return "Email sent to " + s.recipient, nil
}

// LogSender records notifications in the log instead of delivering them. It
// stands in when no SMTP host is configured.
type LogSender struct {
	recipient string
	logger    *zap.Logger
}

func NewLogSender(recipient string, logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{recipient: recipient, logger: logger.Named("notify")}
}

func (s *LogSender) Send(_ context.Context, subject, body string) (string, error) {
	s.logger.Info("notification not delivered, no smtp transport configured",
		zap.String("recipient", s.recipient),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)))
	return fmt.Sprintf("Email to %s recorded (delivery disabled)", s.recipient), nil
}
