// session.go — обмен bearer-токена на cookie сессии консоли и выход.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/sitfuturz/newAdminCircle-sub000/internal/api/errors"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/api/middleware"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/scope"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/session"
)

// Authenticator проверяет bearer-токен и возвращает значения сессии.
// Реализуется middleware.JWTAuth.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (session.Values, error)
}

// SessionHandler — обработчик /ui/session.
type SessionHandler struct {
	auth     Authenticator
	sessions *session.Manager
	logger   *slog.Logger
}

// NewSessionHandler создаёт обработчик сессии консоли.
func NewSessionHandler(auth Authenticator, sessions *session.Manager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		auth:     auth,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "ui.session")),
	}
}

// HandleCreate обрабатывает POST /ui/session.
// Проверяет bearer-токен и записывает зашифрованный cookie сессии.
// Ответ — область видимости пользователя.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.BearerToken(r)
	if err != nil {
		apierrors.Unauthorized(w, err.Error())
		return
	}

	values, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		h.logger.Debug("Отказ в создании сессии",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		apierrors.Unauthorized(w, err.Error())
		return
	}

	if err := h.sessions.SetCookie(w, values); err != nil {
		h.logger.Error("Ошибка записи cookie сессии", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось создать сессию")
		return
	}

	sc := scope.Resolve(values)
	h.logger.Info("Сессия консоли создана",
		slog.String("actor", sc.Actor),
		slog.String("role", sc.Role),
	)
	writeJSON(w, http.StatusOK, sc)
}

// HandleDelete обрабатывает DELETE /ui/session — выход.
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, _ *http.Request) {
	h.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
