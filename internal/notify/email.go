package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"taskpulse/pkg/config"
)

// ErrDeliveryUnavailable marks a failed durable fallback delivery. It is
// logged and bounded-retried, never allowed to block the consumer loop.
var ErrDeliveryUnavailable = errors.New("fallback delivery unavailable")

// FallbackSender is the durable delivery path used when a user has no
// live channel.
type FallbackSender interface {
	Send(ctx context.Context, userID int64, subject, body string) error
}

// UserEmailStore resolves a user's email address.
type UserEmailStore interface {
	GetEmail(ctx context.Context, userID int64) (string, error)
}

// EmailSender delivers reminders over SMTP.
type EmailSender struct {
	cfg    config.SMTPConfig
	users  UserEmailStore
	logger *zap.Logger
}

func NewEmailSender(cfg config.SMTPConfig, users UserEmailStore, logger *zap.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, users: users, logger: logger}
}

func (s *EmailSender) Send(ctx context.Context, userID int64, subject, body string) error {
	to, err := s.users.GetEmail(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: resolving recipient: %v", ErrDeliveryUnavailable, err)
	}

	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		s.cfg.From, to, subject, body,
	)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryUnavailable, err)
	}

	s.logger.Info("Fallback email sent",
		zap.Int64("user_id", userID),
		zap.String("subject", subject),
	)
	return nil
}
