package service

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Имена подстановок в шаблонах писем и форматы action-URL.
const (
	urlToken       = "url"
	expWindowToken = "expirationWindow"
	studyNameToken = "studyName"
	supportToken   = "supportEmail"

	verifyEmailURL   = "%s/mobile/verifyEmail.html?study=%s&sptoken=%s"
	resetPasswordURL = "%s/mobile/resetPassword.html?study=%s&sptoken=%s"
)

// verificationData — payload токена подтверждения e-mail.
type verificationData struct {
	StudyID   string `json:"study_id"`
	AccountID string `json:"account_id"`
}

// resetData — payload токена сброса пароля. Кодек единый с verificationData:
// обе ветки хранят в кэше JSON (в отличие от исходной несимметричной схемы
// «JSON для верификации, голая строка для сброса»).
type resetData struct {
	StudyID string `json:"study_id"`
	Email   string `json:"email"`
}

// newVerificationData валидирует обязательные поля payload при конструировании.
func newVerificationData(studyID, accountID string) (verificationData, error) {
	const op = "service.token.newVerificationData"

	if strings.TrimSpace(studyID) == "" || strings.TrimSpace(accountID) == "" {
		return verificationData{}, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	return verificationData{StudyID: studyID, AccountID: accountID}, nil
}

// createTimeLimitedToken возвращает новый одноразовый токен: криптостойкий
// uuid без разделителей (32 hex-символа). Токен — capability, не идентификатор;
// никакой структуры потребители в нём не предполагают.
func createTimeLimitedToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// resetCacheKey — ключ кэша для токена сброса: "<sptoken>:<studyID>".
func resetCacheKey(sptoken, studyID string) string {
	return sptoken + ":" + studyID
}

// actionURL собирает внешний URL действия; идентификатор исследования
// percent-кодируется.
func (s *Service) actionURL(format, studyID, sptoken string) string {
	return fmt.Sprintf(format, s.cfg.BaseURL, url.QueryEscape(studyID), sptoken)
}

// expirationWindowHours — TTL токена в целых часах для текста письма.
func (s *Service) expirationWindowHours() string {
	return strconv.Itoa(int(s.cfg.TokenTTL.Hours()))
}

func marshalPayload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func unmarshalPayload(raw string, v any) error {
	return json.Unmarshal([]byte(raw), v)
}
