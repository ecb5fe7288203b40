package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pribylovaa/study-accounts-service/internal/models"
	"github.com/pribylovaa/study-accounts-service/internal/storage"
)

// StudyByID находит исследование по идентификатору.
func (s *Storage) StudyByID(ctx context.Context, id string) (*models.Study, error) {
	const op = "storage.postgres.StudyByID"

	query := `
		SELECT id, name, support_email, profile_attributes,
		       verify_email_subject, verify_email_body,
		       reset_password_subject, reset_password_body,
		       account_exists_subject, account_exists_body
		FROM studies
		WHERE id = $1
	`

	var (
		study models.Study
		attrs []byte
	)

	err := s.db.QueryRow(ctx, query, id).Scan(
		&study.ID,
		&study.Name,
		&study.SupportEmail,
		&attrs,
		&study.VerifyEmailTemplate.Subject,
		&study.VerifyEmailTemplate.Body,
		&study.ResetPasswordTemplate.Subject,
		&study.ResetPasswordTemplate.Body,
		&study.AccountExistsTemplate.Subject,
		&study.AccountExistsTemplate.Body,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &study.ProfileAttributes); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &study, nil
}
