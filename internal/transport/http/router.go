// transport/http содержит REST-эндпоинты сервиса аккаунтов.
// Здесь выполняется только маппинг данных и ошибок доменного слоя (service) в HTTP.
// Вся валидация и бизнес-логика находятся в пакете service.
//
// Принципы:
//   - Контекст запроса прокидывается в сервис без потерь;
//   - Ошибки сервиса явно транслируются в HTTP-статусы (см. internal/errors):
//   - ErrInvalidArgument/ErrInvalidEmail/ErrWeakPassword/ErrEmptyPassword -> 400;
//   - ErrTokenExpired -> 400 (несуществующий/истёкший/потреблённый токен — один случай);
//   - ErrStudyNotFound -> 404 (только когда идентификатор пришёл от вызывающего);
//   - иные ошибки (включая ErrAccountNotFound и ErrStudyGone) -> 500 c единым безопасным сообщением;
//   - Enumeration-safety: ручки, начинающиеся с e-mail (signup, resend,
//     requestResetPassword), отвечают одинаково вне зависимости от того,
//     существует аккаунт или нет.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/study-accounts-service/internal/service"
	"github.com/pribylovaa/study-accounts-service/internal/transport/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc *service.Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := NewHandlers(svc)

	registerRoutes(root, h)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *Handlers) {
	// workflow: выпуск токенов (точки входа по e-mail — enumeration-safe).
	r.Post("/studies/{study}/accounts", h.CreateAccount)
	r.Post("/studies/{study}/accounts/resendEmailVerification", h.ResendEmailVerification)
	r.Post("/studies/{study}/requestResetPassword", h.RequestResetPassword)

	// workflow: потребление токенов.
	r.Post("/verifyEmail", h.VerifyEmail)
	r.Post("/resetPassword", h.ResetPassword)

	// фоновые задачи.
	r.Post("/studies/{study}/roster", h.StartRoster)
}
