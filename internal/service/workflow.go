package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pribylovaa/study-accounts-service/internal/mailer"
	"github.com/pribylovaa/study-accounts-service/internal/models"
	"github.com/pribylovaa/study-accounts-service/internal/pkg/log"
	"github.com/pribylovaa/study-accounts-service/internal/pkg/redact"
	"github.com/pribylovaa/study-accounts-service/internal/storage"
)

// SendEmailVerification выпускает токен подтверждения e-mail и отправляет
// письмо со ссылкой. Предполагается, что аккаунт уже создан и подтверждение
// требуется (здесь это не перепроверяется).
//
// Побочные эффекты: одна запись в кэш (TTL = cfg.TokenTTL), одна отправка
// письма. Повторный вызов выпускает второй независимый валидный токен;
// ранее выпущенные не инвалидируются.
func (s *Service) SendEmailVerification(ctx context.Context, study *models.Study, accountID uuid.UUID, email string) error {
	const op = "service.workflow.SendEmailVerification"

	if study == nil || accountID == uuid.Nil || strings.TrimSpace(email) == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	lg := log.From(ctx)

	data, err := newVerificationData(study.ID, accountID.String())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	payload, err := marshalPayload(data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sptoken := createTimeLimitedToken()
	if err := s.tokens.Set(ctx, sptoken, payload, s.cfg.TokenTTL); err != nil {
		lg.Error("verification_token_save_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := mailer.Message{
		Template:  study.VerifyEmailTemplate,
		Recipient: email,
		Substitutions: map[string]string{
			urlToken:       s.actionURL(verifyEmailURL, study.ID, sptoken),
			studyNameToken: study.Name,
			supportToken:   study.SupportEmail,
		},
	}

	// Токен уже в кэше: сбой отправки не откатывает запись, только поднимается.
	if err := s.mailer.Send(ctx, msg); err != nil {
		lg.Error("verification_mail_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(email)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("verification_token_sent",
		slog.String("study_id", study.ID),
		slog.String("sptoken", redact.Token(sptoken)),
		slog.String("email", redact.Email(email)),
	)

	return nil
}

// ResendEmailVerification повторно выпускает токен подтверждения, начиная
// с e-mail участника. На неизвестный e-mail молча завершается успехом:
// по результату вызова нельзя отличить «аккаунта нет» от «письмо ушло»
// (см. accountOrNone).
func (s *Service) ResendEmailVerification(ctx context.Context, studyID, email string) error {
	const op = "service.workflow.ResendEmailVerification"

	if strings.TrimSpace(studyID) == "" || strings.TrimSpace(email) == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	study, err := s.studyByID(ctx, studyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	account, err := s.accountOrNone(ctx, studyID, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if account == nil {
		return nil
	}

	return s.SendEmailVerification(ctx, study, account.ID, email)
}

// VerifyEmail потребляет токен подтверждения: атомарно изымает payload из
// кэша, находит аккаунт и переводит его в статус ENABLED. Токен одноразовый:
// повторное потребление вернёт ErrTokenExpired.
//
// Отсутствие аккаунта или исследования по валидному токену — фатальное
// нарушение целостности (ErrAccountNotFound/ErrStudyGone), а не
// пользовательская ошибка.
func (s *Service) VerifyEmail(ctx context.Context, sptoken string) (*models.Account, error) {
	const op = "service.workflow.VerifyEmail"

	if strings.TrimSpace(sptoken) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	lg := log.From(ctx)

	raw, ok, err := s.tokens.Take(ctx, sptoken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		lg.Warn("verification_token_miss",
			slog.String("op", op),
			slog.String("sptoken", redact.Token(sptoken)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	var data verificationData
	if err := unmarshalPayload(raw, &data); err != nil {
		return nil, fmt.Errorf("%s: corrupt verification payload: %w", op, err)
	}

	accountID, err := uuid.Parse(data.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%s: corrupt verification payload: %w", op, err)
	}

	study, err := s.storage.StudyByID(ctx, data.StudyID)
	if err != nil {
		// Исследование из валидного токена обязано существовать: его пропажа —
		// такой же серверный сбой, как и пропажа аккаунта, а не 404.
		if errors.Is(err, storage.ErrNotFound) {
			lg.Error("verification_study_gone",
				slog.String("op", op),
				slog.String("study_id", data.StudyID),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrStudyGone)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	account, err := s.storage.AccountByID(ctx, study.ID, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Error("verification_account_gone",
				slog.String("op", op),
				slog.String("study_id", study.ID),
				slog.String("account_id", accountID.String()),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	account.Status = models.StatusEnabled
	if err := s.storage.UpdateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("email_verified",
		slog.String("study_id", study.ID),
		slog.String("account_id", account.ID.String()),
	)

	return account, nil
}

// NotifyAccountExists отправляет участнику письмо о том, что аккаунт уже
// существует, со ссылкой на сброс пароля. Вызывается безусловно (коллизия
// регистрации): вызывающий уже знает, что e-mail занят, скрывать нечего.
func (s *Service) NotifyAccountExists(ctx context.Context, study *models.Study, email string) error {
	const op = "service.workflow.NotifyAccountExists"

	if study == nil || strings.TrimSpace(email) == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	if err := s.sendResetRelatedEmail(ctx, study, email, study.AccountExistsTemplate); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RequestResetPassword выпускает токен сброса пароля, начиная с e-mail.
// На неизвестный e-mail молча завершается успехом — инвариант един для всех
// публичных точек входа «начать workflow по адресу».
func (s *Service) RequestResetPassword(ctx context.Context, studyID, email string) error {
	const op = "service.workflow.RequestResetPassword"

	if strings.TrimSpace(studyID) == "" || strings.TrimSpace(email) == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	study, err := s.studyByID(ctx, studyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	account, err := s.accountOrNone(ctx, studyID, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if account == nil {
		return nil
	}

	if err := s.sendResetRelatedEmail(ctx, study, email, study.ResetPasswordTemplate); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ResetPassword потребляет токен сброса и делегирует смену пароля хранилищу.
// Ответственность сервиса заканчивается на «ровно один живой аккаунт по ровно
// одному ещё валидному токену»; валидация и хэширование пароля — контракт
// хранилища и validatePassword.
func (s *Service) ResetPassword(ctx context.Context, sptoken, studyID, newPassword string) error {
	const op = "service.workflow.ResetPassword"

	if strings.TrimSpace(sptoken) == "" || strings.TrimSpace(studyID) == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	lg := log.From(ctx)

	raw, ok, err := s.tokens.Take(ctx, resetCacheKey(sptoken, studyID))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		lg.Warn("reset_token_miss",
			slog.String("op", op),
			slog.String("study_id", studyID),
			slog.String("sptoken", redact.Token(sptoken)),
		)
		return fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	var data resetData
	if err := unmarshalPayload(raw, &data); err != nil {
		return fmt.Errorf("%s: corrupt reset payload: %w", op, err)
	}

	study, err := s.storage.StudyByID(ctx, studyID)
	if err != nil {
		// Токен уже изъят и валиден, исследование обязано существовать.
		if errors.Is(err, storage.ErrNotFound) {
			lg.Error("reset_study_gone",
				slog.String("op", op),
				slog.String("study_id", studyID),
			)
			return fmt.Errorf("%s: %w", op, ErrStudyGone)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	account, err := s.storage.AccountByEmail(ctx, study.ID, data.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Error("reset_account_gone",
				slog.String("op", op),
				slog.String("study_id", study.ID),
				slog.String("email", redact.Email(data.Email)),
			)
			return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.ChangePassword(ctx, study.ID, account.ID, newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("password_reset",
		slog.String("study_id", study.ID),
		slog.String("account_id", account.ID.String()),
	)

	return nil
}

// sendResetRelatedEmail — общая часть RequestResetPassword и
// NotifyAccountExists: выпуск токена, запись в кэш под ключом
// "<sptoken>:<studyID>" и письмо по переданному шаблону.
// Письмо дополнительно несёт окно истечения в целых часах.
func (s *Service) sendResetRelatedEmail(ctx context.Context, study *models.Study, email string, template models.EmailTemplate) error {
	const op = "service.workflow.sendResetRelatedEmail"

	lg := log.From(ctx)

	payload, err := marshalPayload(resetData{StudyID: study.ID, Email: email})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sptoken := createTimeLimitedToken()
	if err := s.tokens.Set(ctx, resetCacheKey(sptoken, study.ID), payload, s.cfg.TokenTTL); err != nil {
		lg.Error("reset_token_save_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := mailer.Message{
		Template:  template,
		Recipient: email,
		Substitutions: map[string]string{
			urlToken:       s.actionURL(resetPasswordURL, study.ID, sptoken),
			expWindowToken: s.expirationWindowHours(),
			studyNameToken: study.Name,
			supportToken:   study.SupportEmail,
		},
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		lg.Error("reset_mail_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(email)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("reset_token_sent",
		slog.String("study_id", study.ID),
		slog.String("sptoken", redact.Token(sptoken)),
		slog.String("email", redact.Email(email)),
	)

	return nil
}

// accountOrNone — единая точка политики enumeration-safety: отсутствие
// аккаунта по e-mail — это (nil, nil), а не ошибка. Все публичные точки
// входа, начинающиеся с адреса, обязаны ходить через неё, чтобы «молчаливый
// успех» не дублировался по call-site'ам.
func (s *Service) accountOrNone(ctx context.Context, studyID, email string) (*models.Account, error) {
	account, err := s.storage.AccountByEmail(ctx, studyID, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return account, nil
}

// studyByID — lookup исследования с маппингом ErrNotFound -> ErrStudyNotFound.
// Только для точек входа, где идентификатор пришёл от вызывающего; на путях
// потребления токена пропажа исследования маппится в ErrStudyGone.
func (s *Service) studyByID(ctx context.Context, studyID string) (*models.Study, error) {
	study, err := s.storage.StudyByID(ctx, studyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrStudyNotFound
		}

		return nil, err
	}

	return study, nil
}
