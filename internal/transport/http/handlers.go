package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pribylovaa/study-accounts-service/internal/errors"
	"github.com/pribylovaa/study-accounts-service/internal/service"
)

// Handlers агрегирует зависимости HTTP-слоя.
type Handlers struct {
	svc *service.Service
}

func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{svc: svc}
}

type signUpRequest struct {
	Email      string            `json:"email"`
	Password   string            `json:"password"`
	FirstName  string            `json:"first_name"`
	LastName   string            `json:"last_name"`
	Attributes map[string]string `json:"attributes"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyEmailRequest struct {
	Sptoken string `json:"sptoken"`
}

type resetPasswordRequest struct {
	Sptoken  string `json:"sptoken"`
	Study    string `json:"study"`
	Password string `json:"password"`
}

// okResponse — пустой успешный ответ; одинаков для всех enumeration-safe
// веток, чтобы форма ответа не выдавала существование аккаунта.
type okResponse struct {
	Ok bool `json:"ok"`
}

// CreateAccount — регистрация участника. Отвечает 201 и для новой
// регистрации, и для коллизии e-mail (во втором случае уходит письмо
// «аккаунт уже существует»).
func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var in signUpRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	err := h.svc.CreateAccount(r.Context(), chi.URLParam(r, "study"), service.SignUpParams{
		Email:      in.Email,
		Password:   in.Password,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Attributes: in.Attributes,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, okResponse{Ok: true})
}

// ResendEmailVerification — повторный выпуск токена подтверждения по e-mail.
func (h *Handlers) ResendEmailVerification(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	if err := h.svc.ResendEmailVerification(r.Context(), chi.URLParam(r, "study"), in.Email); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{Ok: true})
}

// VerifyEmail — потребление токена подтверждения e-mail.
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var in verifyEmailRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	if _, err := h.svc.VerifyEmail(r.Context(), in.Sptoken); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{Ok: true})
}

// RequestResetPassword — выпуск токена сброса пароля по e-mail.
func (h *Handlers) RequestResetPassword(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	if err := h.svc.RequestResetPassword(r.Context(), chi.URLParam(r, "study"), in.Email); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{Ok: true})
}

// ResetPassword — потребление токена сброса и смена пароля.
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in resetPasswordRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), in.Sptoken, in.Study, in.Password); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{Ok: true})
}

// StartRoster — запуск фоновой генерации ростера; отвечает 202 сразу.
func (h *Handlers) StartRoster(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.StartRoster(r.Context(), chi.URLParam(r, "study")); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, okResponse{Ok: true})
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}
