package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/study-accounts-service/internal/cache"
	"github.com/pribylovaa/study-accounts-service/internal/config"
	"github.com/pribylovaa/study-accounts-service/internal/mailer"
	"github.com/pribylovaa/study-accounts-service/internal/models"
	"github.com/pribylovaa/study-accounts-service/internal/storage"
	"github.com/pribylovaa/study-accounts-service/mocks"
)

func testWorkflowCfg() config.WorkflowConfig {
	return config.WorkflowConfig{
		BaseURL:  "https://ws.example.com",
		TokenTTL: 2 * time.Hour,
	}
}

func testRosterCfg() config.RosterConfig {
	return config.RosterConfig{PerAccountDelay: time.Millisecond}
}

func testStudy() *models.Study {
	return &models.Study{
		ID:           "study-x",
		Name:         "Study X",
		SupportEmail: "support@example.com",
		VerifyEmailTemplate: models.EmailTemplate{
			Subject: "Verify your email for ${studyName}",
			Body:    "Follow ${url} to verify.",
		},
		ResetPasswordTemplate: models.EmailTemplate{
			Subject: "Reset your password for ${studyName}",
			Body:    "Follow ${url} within ${expirationWindow} hours.",
		},
		AccountExistsTemplate: models.EmailTemplate{
			Subject: "Account already exists for ${studyName}",
			Body:    "Reset via ${url}, valid ${expirationWindow} hours.",
		},
	}
}

// newSvcMem — сервис поверх реального in-memory кэша и моков storage/mailer.
func newSvcMem(t *testing.T) (*Service, *cache.MemoryCache, *mocks.MockStorage, *mocks.MockMailer, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	ml := mocks.NewMockMailer(ctrl)
	mem := cache.NewMemoryCache()
	svc := New(st, mem, ml, testWorkflowCfg(), testRosterCfg())
	return svc, mem, st, ml, ctrl
}

// newSvcMockCache — сервис, где кэш тоже мок (для проверки ключей/TTL).
func newSvcMockCache(t *testing.T) (*Service, *mocks.MockTokenCache, *mocks.MockStorage, *mocks.MockMailer, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	ml := mocks.NewMockMailer(ctrl)
	tc := mocks.NewMockTokenCache(ctrl)
	svc := New(st, tc, ml, testWorkflowCfg(), testRosterCfg())
	return svc, tc, st, ml, ctrl
}

// sptokenFromMessage достаёт sptoken и study из action-URL письма.
func sptokenFromMessage(t *testing.T, msg mailer.Message) (sptoken, study string) {
	t.Helper()
	raw, ok := msg.Substitutions["url"]
	require.True(t, ok, "message must carry ${url}")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get("sptoken"), u.Query().Get("study")
}

func TestSendEmailVerification_OK(t *testing.T) {
	t.Parallel()

	svc, mem, _, ml, ctrl := newSvcMem(t)
	defer ctrl.Finish()

	ctx := context.Background()
	accountID := uuid.New()

	var sent mailer.Message
	ml.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg mailer.Message) error {
			sent = msg
			return nil
		})

	require.NoError(t, svc.SendEmailVerification(ctx, testStudy(), accountID, "a@example.com"))

	require.Equal(t, "a@example.com", sent.Recipient)
	sptoken, study := sptokenFromMessage(t, sent)
	require.Equal(t, "study-x", study)
	require.Len(t, sptoken, 32)

	// Payload в кэше: {study_id, account_id}.
	raw, ok, err := mem.Get(ctx, sptoken)
	require.NoError(t, err)
	require.True(t, ok)

	var data verificationData
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	require.Equal(t, "study-x", data.StudyID)
	require.Equal(t, accountID.String(), data.AccountID)
}

func TestSendEmailVerification_InvalidArgs(t *testing.T) {
	t.Parallel()

	svc, _, _, _, ctrl := newSvcMem(t)
	defer ctrl.Finish()

	ctx := context.Background()

	err := svc.SendEmailVerification(ctx, nil, uuid.New(), "a@example.com")
	require.ErrorIs(t, err, ErrInvalidArgument)

	err = svc.SendEmailVerification(ctx, testStudy(), uuid.Nil, "a@example.com")
	require.ErrorIs(t, err, ErrInvalidArgument)

	err = svc.SendEmailVerification(ctx, testStudy(), uuid.New(), "   ")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSendEmailVerification_TwoTokensAreIndependent(t *testing.T) {
	t.Parallel()

	svc, mem, _, ml, ctrl := newSvcMem(t)
	defer ctrl.Finish()

	ctx := context.Background()
	accountID := uuid.New()

	var sptokens []string
	ml.EXPECT().Send(gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, msg mailer.Message) error {
			sptoken, _ := sptokenFromMessage(t, msg)
			sptokens = append(sptokens, sptoken)
			return nil
		})

	require.NoError(t, svc.SendEmailVerification(ctx, testStudy(), accountID, "a@example.com"))
	require.NoError(t, svc.SendEmailVerification(ctx, testStudy(), accountID, "a@example.com"))

	require.Len(t, sptokens, 2)
	require.NotEqual(t, sptokens[0], sptokens[1])

	// Каждый токен живёт независимо и изымается ровно один раз.
	for _, sptoken := range sptokens {
		_, ok, err := mem.Take(ctx, sptoken)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = mem.Take(ctx, sptoken)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestVerifyEmail_OK_ThenSecondConsumptionFails(t *testing.T) {
	t.Parallel()

	svc, _, st, ml, ctrl := newSvcMem(t)
	defer ctrl.Finish()

	ctx := context.Background()
	study := testStudy()
	accountID := uuid.New()

	var sent mailer.Message
	ml.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg mailer.Message) error {
			sent = msg
			return nil
		})

	require.NoError(t, svc.SendEmailVerification(ctx, study, accountID, "a@example.com"))
	sptoken, _ := sptokenFromMessage(t, sent)

	account := &models.Account{
		ID:      accountID,
		StudyID: study.ID,
		Email:   "a@example.com",
		Status:  models.StatusUnverified,
		Version: 1,
	}

	st.EXPECT().StudyByID(gomock.Any(), study.ID).Return(study, nil)
	st.EXPECT().AccountByID(gomock.Any(), study.ID, accountID).Return(account, nil)
	st.EXPECT().UpdateAccount(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a *models.Account) error {
			require.Equal(t, models.StatusEnabled, a.Status)
			return nil
		})

	got, err := svc.VerifyEmail(ctx, sptoken)
	require.NoError(t, err)
	require.Equal(t, models.StatusEnabled, got.Status)

	// Токен одноразовый: повторное потребление — ErrTokenExpired,
	// обращений к storage больше нет.
	_, err = svc.VerifyEmail(ctx, sptoken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyEmail_UnknownToken(t *testing.T) {
	t.Parallel()

	svc, _, _, _, ctrl := newSvcMem(t)
	defer ctrl.Finish()

	_, err := svc.VerifyEmail(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyEmail_BlankToken(t *testing.T) {
	t.Parallel()

	svc, _, _, _, ctrl := newSvcMem(t)
	defer ctrl.Finish()

	_, err := svc.VerifyEmail(context.Background(), "  ")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestVerifyEmail_AccountGone_IsFatal(t *testing.T) {
	t.Parallel()

	svc, mem, st, _, ctrl := newSvcMem(t)
	defer ctrl.Finish()

	ctx := context.Background()
	study := testStudy()
	accountID := uuid.New()

	payload, err := json.Marshal(verificationData{StudyID: study.ID, AccountID: accountID.String()})
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, "sometoken", string(payload), time.Hour))

	st.EXPECT().StudyByID(gomock.Any(), study.ID).Return(study, nil)
	st.EXPECT().AccountByID(gomock.Any(), study.ID, accountID).Return(nil, storage.ErrNotFound)

	_, err = svc.VerifyEmail(ctx, "sometoken")
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.NotErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyEmail_StudyGone_IsFatal(t *testing.T) {
	t.Parallel()

	svc, mem, st, _, ctrl := newSvcMem(t)
	defer ctrl.Finish()

	ctx := context.Background()
	accountID := uuid.New()

	payload, err := json.Marshal(verificationData{StudyID: "study-x", AccountID: accountID.String()})
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, "sometoken", string(payload), time.Hour))

	st.EXPECT().StudyByID(gomock.Any(), "study-x").Return(nil, storage.ErrNotFound)

	// Пропажа исследования по валидному токену — серверный сбой,
	// а не «исследование не найдено» для клиента.
	_, err = svc.VerifyEmail(ctx, "sometoken")
	require.ErrorIs(t, err, ErrStudyGone)
	require.NotErrorIs(t, err, ErrStudyNotFound)
}

func TestResendEmailVerification_UnknownEmail_SilentSuccess(t *testing.T) {
	t.Parallel()

	// Кэш и mailer — моки без EXPECT: любой вызов провалит тест.
	svc, _, st, _, ctrl := newSvcMockCache(t)
	defer ctrl.Finish()

	st.EXPECT().StudyByID(gomock.Any(), "study-x").Return(testStudy(), nil)
	st.EXPECT().AccountByEmail(gomock.Any(), "study-x", "ghost@example.com").
		Return(nil, storage.ErrNotFound)

	require.NoError(t, svc.ResendEmailVerification(context.Background(), "study-x", "ghost@example.com"))
}

func TestResendEmailVerification_KnownEmail_IssuesToken(t *testing.T) {
	t.Parallel()

	svc, tc, st, ml, ctrl := newSvcMockCache(t)
	defer ctrl.Finish()

	study := testStudy()
	account := &models.Account{ID: uuid.New(), StudyID: study.ID, Email: "a@example.com"}

	st.EXPECT().StudyByID(gomock.Any(), study.ID).Return(study, nil)
	st.EXPECT().AccountByEmail(gomock.Any(), study.ID, "a@example.com").Return(account, nil)

	var storedKey string
	tc.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), 2*time.Hour).
		DoAndReturn(func(_ context.Context, key, _ string, _ time.Duration) error {
			storedKey = key
			return nil
		})

	ml.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg mailer.Message) error {
			sptoken, studyParam := sptokenFromMessage(t, msg)
			require.Equal(t, storedKey, sptoken)
			require.Equal(t, study.ID, studyParam)
			return nil
		})

	require.NoError(t, svc.ResendEmailVerification(context.Background(), study.ID, "a@example.com"))
}

func TestResendEmailVerification_UnknownStudy(t *testing.T) {
	t.Parallel()

	svc, _, st, _, ctrl := newSvcMockCache(t)
	defer ctrl.Finish()

	st.EXPECT().StudyByID(gomock.Any(), "nope").Return(nil, storage.ErrNotFound)

	err := svc.ResendEmailVerification(context.Background(), "nope", "a@example.com")
	require.ErrorIs(t, err, ErrStudyNotFound)
}

func TestRequestResetPassword_UnknownEmail_SilentSuccess(t *testing.T) {
	t.Parallel()

	svc, _, st, _, ctrl := newSvcMockCache(t)
	defer ctrl.Finish()

	st.EXPECT().StudyByID(gomock.Any(), "study-x").Return(testStudy(), nil)
	st.EXPECT().AccountByEmail(gomock.Any(), "study-x", "ghost@example.com").
		Return(nil, storage.ErrNotFound)

	require.NoError(t, svc.RequestResetPassword(context.Background(), "study-x", "ghost@example.com"))
}

func TestRequestResetPassword_OK(t *testing.T) {
	t.Parallel()

	svc, tc, st, ml, ctrl := newSvcMockCache(t)
	defer ctrl.Finish()

	study := testStudy()
	account := &models.Account{ID: uuid.New(), StudyID: study.ID, Email: "a@example.com"}

	st.EXPECT().StudyByID(gomock.Any(), study.ID).Return(study, nil)
	st.EXPECT().AccountByEmail(gomock.Any(), study.ID, "a@example.com").Return(account, nil)

	var storedKey, storedValue string
	tc.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), 2*time.Hour).
		DoAndReturn(func(_ context.Context, key, value string, _ time.Duration) error {
			storedKey, storedValue = key, value
			return nil
		})

	var sent mailer.Message
	ml.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg mailer.Message) error {
			sent = msg
			return nil
		})

	require.NoError(t, svc.RequestResetPassword(context.Background(), study.ID, "a@example.com"))

	// Ключ — "<sptoken>:<studyID>", payload — единый JSON-кодек.
	sptoken, _ := sptokenFromMessage(t, sent)
	require.Equal(t, sptoken+":"+study.ID, storedKey)

	var data resetData
	require.NoError(t, json.Unmarshal([]byte(storedValue), &data))
	require.Equal(t, study.ID, data.StudyID)
	require.Equal(t, "a@example.com", data.Email)

	// Окно истечения — в целых часах.
	require.Equal(t, "2", sent.Substitutions["expirationWindow"])
	require.Equal(t, study.ResetPasswordTemplate, sent.Template)
}

func TestNotifyAccountExists_SendsUnconditionally(t *testing.T) {
	t.Parallel()

	svc, tc, _, ml, ctrl := newSvcMockCache(t)
	defer ctrl.Finish()

	study := testStudy()

	tc.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), 2*time.Hour).Return(nil)
	ml.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg mailer.Message) error {
			require.Equal(t, study.AccountExistsTemplate, msg.Template)
			require.Equal(t, "taken@example.com", msg.Recipient)
			return nil
		})

	require.NoError(t, svc.NotifyAccountExists(context.Background(), study, "taken@example.com"))
}

func TestResetPassword_OK(t *testing.T) {
	t.Parallel()

	svc, tc, st, _, ctrl := newSvcMockCache(t)
	defer ctrl.Finish()

	study := testStudy()
	account := &models.Account{ID: uuid.New(), StudyID: study.ID, Email: "a@example.com"}

	payload, err := json.Marshal(resetData{StudyID: study.ID, Email: "a@example.com"})
	require.NoError(t, err)

	tc.EXPECT().Take(gomock.Any(), "tok123:study-x").Return(string(payload), true, nil)
	st.EXPECT().StudyByID(gomock.Any(), study.ID).Return(study, nil)
	st.EXPECT().AccountByEmail(gomock.Any(), study.ID, "a@example.com").Return(account, nil)
	st.EXPECT().ChangePassword(gomock.Any(), study.ID, account.ID, "NewPassw0rd!").Return(nil)

	require.NoError(t, svc.ResetPassword(context.Background(), "tok123", "study-x", "NewPassw0rd!"))
}

func TestResetPassword_TokenMiss(t *testing.T) {
	t.Parallel()

	svc, tc, _, _, ctrl := newSvcMockCache(t)
	defer ctrl.Finish()

	tc.EXPECT().Take(gomock.Any(), "tok123:study-x").Return("", false, nil)

	err := svc.ResetPassword(context.Background(), "tok123", "study-x", "NewPassw0rd!")
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestResetPassword_WeakPassword_BeforeCacheAccess(t *testing.T) {
	t.Parallel()

	// Кэш — мок без EXPECT: слабый пароль отклоняется до обращения к кэшу,
	// токен при этом не потребляется.
	svc, _, _, _, ctrl := newSvcMockCache(t)
	defer ctrl.Finish()

	err := svc.ResetPassword(context.Background(), "tok123", "study-x", "weak")
	require.ErrorIs(t, err, ErrWeakPassword)

	err = svc.ResetPassword(context.Background(), "tok123", "study-x", "")
	require.ErrorIs(t, err, ErrEmptyPassword)
}

func TestResetPassword_AccountGone_IsFatal(t *testing.T) {
	t.Parallel()

	svc, tc, st, _, ctrl := newSvcMockCache(t)
	defer ctrl.Finish()

	study := testStudy()

	payload, err := json.Marshal(resetData{StudyID: study.ID, Email: "gone@example.com"})
	require.NoError(t, err)

	tc.EXPECT().Take(gomock.Any(), "tok123:study-x").Return(string(payload), true, nil)
	st.EXPECT().StudyByID(gomock.Any(), study.ID).Return(study, nil)
	st.EXPECT().AccountByEmail(gomock.Any(), study.ID, "gone@example.com").
		Return(nil, storage.ErrNotFound)

	err = svc.ResetPassword(context.Background(), "tok123", "study-x", "NewPassw0rd!")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestResetPassword_StudyGone_IsFatal(t *testing.T) {
	t.Parallel()

	svc, tc, st, _, ctrl := newSvcMockCache(t)
	defer ctrl.Finish()

	payload, err := json.Marshal(resetData{StudyID: "study-x", Email: "a@example.com"})
	require.NoError(t, err)

	tc.EXPECT().Take(gomock.Any(), "tok123:study-x").Return(string(payload), true, nil)
	st.EXPECT().StudyByID(gomock.Any(), "study-x").Return(nil, storage.ErrNotFound)

	err = svc.ResetPassword(context.Background(), "tok123", "study-x", "NewPassw0rd!")
	require.ErrorIs(t, err, ErrStudyGone)
	require.NotErrorIs(t, err, ErrStudyNotFound)
}

func TestMailerFailure_DoesNotRollBackToken(t *testing.T) {
	t.Parallel()

	svc, mem, _, ml, ctrl := newSvcMem(t)
	defer ctrl.Finish()

	ctx := context.Background()

	var sent mailer.Message
	ml.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg mailer.Message) error {
			sent = msg
			return errors.New("smtp down")
		})

	err := svc.SendEmailVerification(ctx, testStudy(), uuid.New(), "a@example.com")
	require.Error(t, err)

	// Токен уже создан и продолжает жить: мутация кэша не откатывается.
	sptoken, _ := sptokenFromMessage(t, sent)
	_, ok, getErr := mem.Get(ctx, sptoken)
	require.NoError(t, getErr)
	require.True(t, ok)
}
