package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus — статус аккаунта участника.
type AccountStatus string

const (
	// StatusUnverified — аккаунт создан, e-mail ещё не подтверждён.
	StatusUnverified AccountStatus = "UNVERIFIED"
	// StatusEnabled — e-mail подтверждён, аккаунт активен.
	StatusEnabled AccountStatus = "ENABLED"
	// StatusDisabled — аккаунт отключён администратором.
	StatusDisabled AccountStatus = "DISABLED"
)

// Account - аккаунт участника в рамках одного исследования.
// Version используется для optimistic locking при обновлениях.
type Account struct {
	ID           uuid.UUID
	StudyID      string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Status       AccountStatus
	Attributes   map[string]string
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
