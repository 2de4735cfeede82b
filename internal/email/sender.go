package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"furadapt/api/internal/config"
)

// Sender delivers a fully formatted message, headers included.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// SMTPSender implements Sender using net/smtp.
type SMTPSender struct {
	from string
	auth smtp.Auth
	addr string
}

// NewSMTPSender returns an SMTP sender, or a LoggingSender when no SMTP host is configured.
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		zap.L().Info("SMTP host not configured, using logging email sender")
		return &LoggingSender{}
	}

	var auth smtp.Auth
	if cfg.SmtpUsername != "" {
		auth = smtp.PlainAuth("", cfg.SmtpUsername, cfg.SmtpPassword, cfg.SmtpHost)
	}
	return &SMTPSender{
		from: cfg.SmtpFromAddress,
		auth: auth,
		addr: fmt.Sprintf("%s:%d", cfg.SmtpHost, cfg.SmtpPort),
	}
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := smtp.SendMail(s.addr, s.auth, s.from, to, rawMessage); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}
	zap.L().Info("Email sent via SMTP", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

// LoggingSender only logs. Useful in development.
type LoggingSender struct{}

func (s *LoggingSender) Send(_ context.Context, to []string, subject string, rawMessage []byte) error {
	zap.L().Info("Email logged instead of sent",
		zap.Strings("to", to),
		zap.String("subject", subject),
		zap.ByteString("raw", rawMessage),
	)
	return nil
}
