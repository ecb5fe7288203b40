package mailer

import (
	"context"
	"log/slog"

	"github.com/pribylovaa/study-accounts-service/internal/pkg/redact"
)

// LogMailer пишет письма в лог вместо отправки.
// Используется в локальной разработке, когда SMTP не сконфигурирован.
type LogMailer struct {
	log *slog.Logger
}

// NewLog создаёт лог-отправщик.
func NewLog(log *slog.Logger) *LogMailer {
	if log == nil {
		log = slog.Default()
	}

	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.log.InfoContext(ctx, "mail_skipped_no_smtp",
		slog.String("recipient", redact.Email(msg.Recipient)),
		slog.String("subject", msg.Subject()),
	)

	return nil
}

// Проверка на соответствие интерфейсу Mailer.
var _ Mailer = (*LogMailer)(nil)
