package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pribylovaa/study-accounts-service/internal/mailer"
	"github.com/pribylovaa/study-accounts-service/internal/models"
	"github.com/pribylovaa/study-accounts-service/internal/pkg/log"
)

// StartRoster проверяет исследование и запускает фоновую генерацию ростера
// участников. Сам обход выполняется вне контекста запроса: вызывающий
// получает ответ сразу, письмо с ростером уходит на адрес поддержки
// исследования по завершении.
func (s *Service) StartRoster(ctx context.Context, studyID string) error {
	const op = "service.roster.StartRoster"

	if strings.TrimSpace(studyID) == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	study, err := s.studyByID(ctx, studyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	lg := log.From(ctx)

	go func() {
		// Отвязываемся от дедлайна запроса, но сохраняем request-scoped логгер.
		bgCtx := log.Into(context.Background(), lg)
		if err := s.buildRoster(bgCtx, study); err != nil {
			lg.Error("roster_failed",
				slog.String("study_id", study.ID),
				slog.String("err", err.Error()),
			)
		}
	}()

	return nil
}

// buildRoster собирает CSV-ростер участников исследования и отправляет его
// на адрес поддержки. Обход аккаунтов ограничен по скорости
// (roster.PerAccountDelay на запись), чтобы фоновая задача не конкурировала
// с рабочей нагрузкой за БД.
func (s *Service) buildRoster(ctx context.Context, study *models.Study) error {
	const op = "service.roster.buildRoster"

	lg := log.From(ctx)

	accounts, err := s.storage.AccountsByStudy(ctx, study.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"email", "first_name", "last_name", "status"}
	header = append(header, study.ProfileAttributes...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ticker := time.NewTicker(s.roster.PerAccountDelay)
	defer ticker.Stop()

	count := 0
	for _, account := range accounts {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-ticker.C:
		}

		// В ростер попадают только подтверждённые участники.
		if account.Status != models.StatusEnabled {
			continue
		}

		row := []string{account.Email, account.FirstName, account.LastName, string(account.Status)}
		for _, attribute := range study.ProfileAttributes {
			// Присутствует значение или нет — колонка есть всегда.
			row = append(row, account.Attributes[attribute])
		}

		if err := w.Write(row); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		count++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := mailer.Message{
		Template: models.EmailTemplate{
			Subject: fmt.Sprintf("Participant roster for %s (%d enrolled)", study.Name, count),
			Body:    buf.String(),
		},
		Recipient: study.SupportEmail,
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("roster_sent",
		slog.String("study_id", study.ID),
		slog.Int("participants", count),
	)

	return nil
}
