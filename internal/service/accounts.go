package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/study-accounts-service/internal/models"
	"github.com/pribylovaa/study-accounts-service/internal/pkg/log"
	"github.com/pribylovaa/study-accounts-service/internal/pkg/redact"
	"github.com/pribylovaa/study-accounts-service/internal/storage"
)

// SignUpParams — параметры регистрации участника.
type SignUpParams struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Attributes map[string]string
}

// CreateAccount регистрирует участника исследования: создаёт аккаунт в
// статусе UNVERIFIED и запускает workflow подтверждения e-mail.
//
// Поверхность ответа enumeration-safe: если e-mail уже зарегистрирован,
// вызов завершается тем же успехом, а вместо письма с подтверждением уходит
// NotifyAccountExists — снаружи обе ветки неразличимы.
func (s *Service) CreateAccount(ctx context.Context, studyID string, params SignUpParams) error {
	const op = "service.accounts.CreateAccount"

	lg := log.From(ctx)

	study, err := s.studyByID(ctx, studyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	normEmail, err := validateEmail(params.Email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(params.Password); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	existing, err := s.accountOrNone(ctx, study.ID, normEmail)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil {
		return s.NotifyAccountExists(ctx, study, normEmail)
	}

	hashedPassword, err := hashPassword(params.Password)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:           uuid.New(),
		StudyID:      study.ID,
		Email:        normEmail,
		FirstName:    strings.TrimSpace(params.FirstName),
		LastName:     strings.TrimSpace(params.LastName),
		PasswordHash: hashedPassword,
		Status:       models.StatusUnverified,
		Attributes:   params.Attributes,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveAccount(ctx, account); err != nil {
		// Гонка двух регистраций на один адрес: ведём себя как в ветке existing.
		if errors.Is(err, storage.ErrAlreadyExists) {
			return s.NotifyAccountExists(ctx, study, normEmail)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("account_created",
		slog.String("study_id", study.ID),
		slog.String("account_id", account.ID.String()),
		slog.String("email", redact.Email(normEmail)),
	)

	return s.SendEmailVerification(ctx, study, account.ID, normEmail)
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.accounts.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.accounts.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.accounts.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}
