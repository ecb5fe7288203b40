package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/pribylovaa/study-accounts-service/internal/config"
)

// SMTPMailer отправляет письма через внешний SMTP-релей.
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTP создаёт отправщик поверх настроек из конфигурации.
func NewSMTP(cfg config.SMTPConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &SMTPMailer{
		addr: cfg.Addr(),
		from: cfg.From,
		auth: auth,
	}
}

// Send отправляет письмо. Ретраев нет: политика повторов — забота релея.
func (m *SMTPMailer) Send(_ context.Context, msg Message) error {
	const op = "mailer.smtp.Send"

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		m.from, msg.Recipient, msg.Subject(), msg.Body())

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{msg.Recipient}, []byte(body)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Проверка на соответствие интерфейсу Mailer.
var _ Mailer = (*SMTPMailer)(nil)
