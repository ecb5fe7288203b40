// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает доменную ошибку сервисного слоя, на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Особые случаи:
//   - ErrTokenExpired — клиентская ошибка (400): токен не существует, истёк
//     или уже потреблён; эти три случая неразличимы намеренно.
//   - ErrAccountNotFound / ErrStudyGone — серверные ошибки (500): валидный
//     токен ссылается на пропавший аккаунт или исследование; наружу уходит
//     нейтральное "internal error", детали — только в логи.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/study-accounts-service/internal/service"
)

// APIError — единый формат ошибки для клиента.
// Code — короткий стабильный код для машиночитаемой обработки.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует доменную ошибку в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil — это программная ошибка вызова: возвращаем 500/internal,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг;
//   - неизвестная ошибка — 500/internal (без утечки деталей).
func ToHTTP(err error) (int, ErrorResponse) {
	switch {
	case err == nil:
		return response(http.StatusInternalServerError, "internal", "internal error")

	case errors.Is(err, service.ErrInvalidArgument):
		return response(http.StatusBadRequest, "invalid_argument", "invalid argument")

	case errors.Is(err, service.ErrInvalidEmail):
		return response(http.StatusBadRequest, "invalid_email", "invalid email format")

	case errors.Is(err, service.ErrEmptyPassword):
		return response(http.StatusBadRequest, "empty_password", "password is empty")

	case errors.Is(err, service.ErrWeakPassword):
		return response(http.StatusBadRequest, "weak_password", "password does not meet the strength policy")

	case errors.Is(err, service.ErrTokenExpired):
		return response(http.StatusBadRequest, "token_expired", "token has expired (or already been used)")

	case errors.Is(err, service.ErrStudyNotFound):
		return response(http.StatusNotFound, "study_not_found", "study not found")

	default:
		// Сюда попадают и ErrAccountNotFound/ErrStudyGone: нарушение инварианта —
		// серверный сбой, клиенту об устройстве payload знать не нужно.
		return response(http.StatusInternalServerError, "internal", "internal error")
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func response(status int, code, msg string) (int, ErrorResponse) {
	return status, ErrorResponse{Error: APIError{Code: code, Message: msg}}
}
