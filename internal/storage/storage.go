package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/pribylovaa/study-accounts-service/internal/models"
)

var (
	// ErrNotFound — запись не найдена (аккаунт/исследование).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (study_id, email).
	ErrAlreadyExists = errors.New("already exists")
	// ErrConcurrentModification — optimistic lock: версия записи устарела.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// AccountStorage выполняет операции над аккаунтами участников.
type AccountStorage interface {
	// SaveAccount создаёт новый аккаунт.
	SaveAccount(ctx context.Context, account *models.Account) error
	// AccountByEmail находит аккаунт по (study, email).
	AccountByEmail(ctx context.Context, studyID, email string) (*models.Account, error)
	// AccountByID находит аккаунт по (study, id).
	AccountByID(ctx context.Context, studyID string, id uuid.UUID) (*models.Account, error)
	// UpdateAccount обновляет аккаунт с проверкой версии (optimistic lock).
	// При успехе инкрементирует account.Version.
	UpdateAccount(ctx context.Context, account *models.Account) error
	// ChangePassword меняет пароль аккаунта. Хэширование — на стороне хранилища.
	ChangePassword(ctx context.Context, studyID string, id uuid.UUID, newPassword string) error
	// AccountsByStudy возвращает все аккаунты исследования (для ростера),
	// отсортированные по email.
	AccountsByStudy(ctx context.Context, studyID string) ([]*models.Account, error)
}

// StudyStorage выполняет операции над конфигурацией исследований.
type StudyStorage interface {
	// StudyByID находит исследование по идентификатору.
	StudyByID(ctx context.Context, id string) (*models.Study, error)
}

// Storage задает контракт работы с БД.
type Storage interface {
	AccountStorage
	StudyStorage
	Close()
}
