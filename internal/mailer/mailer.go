// mailer — канал уведомлений workflow-процессов.
// Со стороны сервиса отправка fire-and-forget: ошибка доставки
// поднимается наверх, но не откатывает уже выполненные мутации кэша.
package mailer

import (
	"context"
	"strings"

	"github.com/pribylovaa/study-accounts-service/internal/models"
)

// Message — описание письма: шаблон, получатель и именованные подстановки.
// Плоская immutable-структура; билдер здесь не нужен.
type Message struct {
	Template      models.EmailTemplate
	Recipient     string
	Substitutions map[string]string
}

// Mailer — контракт канала уведомлений.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Subject возвращает тему письма с развёрнутыми подстановками.
func (m Message) Subject() string {
	return substitute(m.Template.Subject, m.Substitutions)
}

// Body возвращает тело письма с развёрнутыми подстановками.
func (m Message) Body() string {
	return substitute(m.Template.Body, m.Substitutions)
}

// substitute разворачивает вхождения ${name} по карте подстановок.
// Неизвестные плейсхолдеры остаются как есть.
func substitute(text string, subs map[string]string) string {
	if len(subs) == 0 {
		return text
	}

	pairs := make([]string, 0, len(subs)*2)
	for name, value := range subs {
		pairs = append(pairs, "${"+name+"}", value)
	}

	return strings.NewReplacer(pairs...).Replace(text)
}
