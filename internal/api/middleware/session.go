// session.go — проверка браузерной сессии консоли (зашифрованный cookie).
package middleware

import (
	"log/slog"
	"net/http"

	apierrors "github.com/sitfuturz/newAdminCircle-sub000/internal/api/errors"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/session"
)

// CookieAuth — middleware для запросов браузера с cookie сессии.
// Сессия создаётся обменом bearer-токена на POST /ui/session.
type CookieAuth struct {
	manager *session.Manager
	logger  *slog.Logger
}

// NewCookieAuth создаёт middleware проверки cookie сессии.
func NewCookieAuth(manager *session.Manager, logger *slog.Logger) *CookieAuth {
	return &CookieAuth{
		manager: manager,
		logger:  logger.With(slog.String("component", "cookie_auth")),
	}
}

// Middleware возвращает HTTP middleware, помещающий сессию из cookie в контекст.
func (ca *CookieAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			values, err := ca.manager.FromRequest(r)
			if err != nil {
				ca.logger.Debug("Ошибка чтения сессии",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				// Повреждённый или просроченный cookie — очищаем
				ca.manager.ClearCookie(w)
				apierrors.Unauthorized(w, "Сессия недействительна")
				return
			}
			if values == nil {
				apierrors.Unauthorized(w, "Сессия отсутствует")
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithStore(r.Context(), values)))
		})
	}
}
