// service содержит бизнес-логику workflow-процессов аккаунтов:
// выпуск и потребление одноразовых токенов подтверждения e-mail и сброса
// пароля, регистрацию участников и генерацию ростера исследования.
//
// Основные аспекты:
//   - Service не хранит состояния запроса; экземпляр безопасен для
//     конкурентного использования при потокобезопасных storage/cache/mailer.
//   - Единственный владелец времени жизни токена — TTL-кэш: запись создаётся
//     с TTL на выпуске, атомарно изымается на потреблении (cache.Take) и
//     уничтожается кэшем по истечении TTL, если так и не была потреблена.
//   - Ошибки возвращаются наверх и маппятся транспортом на HTTP-статусы
//     (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"

	"github.com/pribylovaa/study-accounts-service/internal/cache"
	"github.com/pribylovaa/study-accounts-service/internal/config"
	"github.com/pribylovaa/study-accounts-service/internal/mailer"
	"github.com/pribylovaa/study-accounts-service/internal/storage"
)

var (
	// ErrInvalidArgument — вызывающий код передал пустые/нулевые обязательные
	// поля. Это дефект вызывающего кода, не пользовательский ввод.
	// Транспорт: 400.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTokenExpired — токен отсутствует в кэше на момент потребления.
	// Покрывает три неразличимых по дизайну случая: никогда не выпускался,
	// истёк по TTL, уже потреблён. Транспорт: 400.
	ErrTokenExpired = errors.New("token has expired (or already been used)")

	// ErrAccountNotFound — валидный непросроченный токен ссылается на аккаунт,
	// которого больше нет. Нарушен инвариант «жизнь токена ⊆ жизни аккаунта»,
	// это серверный сбой, а не ошибка запроса. Транспорт: 500.
	ErrAccountNotFound = errors.New("account referenced by token not found")

	// ErrStudyGone — валидный непросроченный токен ссылается на исследование,
	// которого больше нет. Как и ErrAccountNotFound, это нарушение инварианта
	// «жизнь токена ⊆ жизни сущности», серверный сбой. Транспорт: 500.
	ErrStudyGone = errors.New("study referenced by token not found")

	// ErrStudyNotFound — исследование с таким идентификатором не настроено.
	// Возвращается только там, где идентификатор пришёл от вызывающего.
	// Транспорт: 404 (идентификаторы исследований публичны).
	ErrStudyNotFound = errors.New("study not found")

	// ErrInvalidEmail — e-mail имеет некорректный формат.
	// Транспорт: 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политикам сложности.
	// Транспорт: 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой.
	// Транспорт: 400.
	ErrEmptyPassword = errors.New("password is empty")
)

// Service описывает бизнес-логику сервиса аккаунтов.
type Service struct {
	storage storage.Storage
	tokens  cache.TokenCache
	mailer  mailer.Mailer
	cfg     config.WorkflowConfig
	roster  config.RosterConfig
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, tokens cache.TokenCache, mailer mailer.Mailer, cfg config.WorkflowConfig, roster config.RosterConfig) *Service {
	return &Service{
		storage: storage,
		tokens:  tokens,
		mailer:  mailer,
		cfg:     cfg,
		roster:  roster,
	}
}
