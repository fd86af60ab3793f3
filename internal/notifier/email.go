package notifier

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/riverguard/parametric-api/internal/model"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type emailSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewEmailSender delivers over SMTP via gomail.
func NewEmailSender(cfg SMTPConfig) Sender {
	return &emailSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *emailSender) Send(_ context.Context, job *model.NotificationJob) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", job.Recipient)
	m.SetHeader("Subject", job.Subject)
	m.SetBody("text/html", job.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}
