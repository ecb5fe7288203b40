package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/study-accounts-service/internal/models"
	"github.com/pribylovaa/study-accounts-service/internal/storage"
)

const accountColumns = `
	id, study_id, email, first_name, last_name,
	password_hash, status, attributes, version, created_at, updated_at
`

// SaveAccount создаёт новый аккаунт в БД.
func (s *Storage) SaveAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.postgres.SaveAccount"

	attrs, err := marshalAttributes(account.Attributes)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `
		INSERT INTO accounts(id, study_id, email, first_name, last_name,
		                     password_hash, status, attributes, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.Exec(ctx, query,
		account.ID,
		account.StudyID,
		account.Email,
		account.FirstName,
		account.LastName,
		account.PasswordHash,
		string(account.Status),
		attrs,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AccountByEmail находит аккаунт по (study, email).
func (s *Storage) AccountByEmail(ctx context.Context, studyID, email string) (*models.Account, error) {
	const op = "storage.postgres.AccountByEmail"

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE study_id = $1 AND email = $2
	`

	account, err := scanAccount(s.db.QueryRow(ctx, query, studyID, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

// AccountByID находит аккаунт по (study, id).
func (s *Storage) AccountByID(ctx context.Context, studyID string, id uuid.UUID) (*models.Account, error) {
	const op = "storage.postgres.AccountByID"

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE study_id = $1 AND id = $2
	`

	account, err := scanAccount(s.db.QueryRow(ctx, query, studyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

// UpdateAccount обновляет аккаунт с проверкой версии.
// Возвращает:
//
//	nil — запись обновлена, account.Version инкрементирован;
//	ErrConcurrentModification — запись существует, но версия устарела;
//	ErrNotFound — запись не найдена.
func (s *Storage) UpdateAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.postgres.UpdateAccount"

	attrs, err := marshalAttributes(account.Attributes)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	const upd = `
		UPDATE accounts
		SET email = $1, first_name = $2, last_name = $3, status = $4,
		    attributes = $5, version = version + 1, updated_at = $6
		WHERE study_id = $7 AND id = $8 AND version = $9
		RETURNING version
	`

	var version int
	err = s.db.QueryRow(ctx, upd,
		account.Email,
		account.FirstName,
		account.LastName,
		string(account.Status),
		attrs,
		time.Now().UTC(),
		account.StudyID,
		account.ID,
		account.Version,
	).Scan(&version)
	if err == nil {
		account.Version = version
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, err)
	}

	const sel = `
		SELECT 1
		FROM accounts
		WHERE study_id = $1 AND id = $2
	`

	var one int
	err = s.db.QueryRow(ctx, sel, account.StudyID, account.ID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return fmt.Errorf("%s: %w", op, storage.ErrConcurrentModification)
}

// ChangePassword меняет пароль аккаунта. Хэширование (bcrypt) выполняется здесь:
// контракт хранилища — наружу plain-пароль не возвращается и не сохраняется.
func (s *Storage) ChangePassword(ctx context.Context, studyID string, id uuid.UUID, newPassword string) error {
	const op = "storage.postgres.ChangePassword"

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `
		UPDATE accounts
		SET password_hash = $1, version = version + 1, updated_at = $2
		WHERE study_id = $3 AND id = $4
	`

	cmdTag, err := s.db.Exec(ctx, query, string(hash), time.Now().UTC(), studyID, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// AccountsByStudy возвращает все аккаунты исследования, отсортированные по email.
func (s *Storage) AccountsByStudy(ctx context.Context, studyID string) ([]*models.Account, error) {
	const op = "storage.postgres.AccountsByStudy"

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE study_id = $1
		ORDER BY email
	`

	rows, err := s.db.Query(ctx, query, studyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return accounts, nil
}

// scanAccount читает одну строку accounts; attributes хранится как JSONB.
func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		account models.Account
		status  string
		attrs   []byte
	)

	err := row.Scan(
		&account.ID,
		&account.StudyID,
		&account.Email,
		&account.FirstName,
		&account.LastName,
		&account.PasswordHash,
		&status,
		&attrs,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Status = models.AccountStatus(status)
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &account.Attributes); err != nil {
			return nil, err
		}
	}

	return &account, nil
}

func marshalAttributes(attrs map[string]string) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}

	return json.Marshal(attrs)
}
