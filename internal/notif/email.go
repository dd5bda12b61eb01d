package notif

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"dealroom/internal/config"
)

// SMTPEmailService sends through the configured SMTP relay.
type SMTPEmailService struct {
	cfg config.EmailConfig
}

func NewSMTPEmailService(cfg *config.Config) *SMTPEmailService {
	return &SMTPEmailService{cfg: cfg.Email}
}

func (s *SMTPEmailService) SendEmail(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s <%s>", s.cfg.FromName, s.cfg.FromEmail),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	return smtp.SendMail(addr, auth, s.cfg.FromEmail, []string{to}, []byte(msg))
}

// LogEmailService is used when SMTP is disabled (local development).
type LogEmailService struct {
	log *slog.Logger
}

func NewLogEmailService(log *slog.Logger) *LogEmailService {
	return &LogEmailService{log: log}
}

func (s *LogEmailService) SendEmail(to, subject, body string) error {
	s.log.Info("email (smtp disabled)", "to", to, "subject", subject)
	return nil
}
