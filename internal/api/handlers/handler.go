// handler.go — основной обработчик REST API консоли.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/sitfuturz/newAdminCircle-sub000/internal/api/errors"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/scope"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/service"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/session"
)

// APIHandler — обработчик REST API Referral Console.
type APIHandler struct {
	health  *HealthHandler
	records *service.RecordService
	options *service.OptionsService
	exports *service.ExportService
	logger  *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	records *service.RecordService,
	options *service.OptionsService,
	exports *service.ExportService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:  health,
		records: records,
		options: options,
		exports: exports,
		logger:  logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// scopeOf вычисляет область видимости из сессии запроса.
// Ошибка разбора сессии логируется и даёт самую узкую область.
func (h *APIHandler) scopeOf(r *http.Request) scope.Scope {
	sc, err := scope.TryResolve(session.FromContext(r.Context()))
	if err != nil {
		h.logger.Debug("Сессия не разобрана, применена узкая область видимости",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
	}
	return sc
}

// writeError отвечает ошибкой сервисного слоя; внутренние ошибки логируются.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apierrors.FromError(w, err) {
		h.logger.Error("Ошибка обработки запроса",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// pagingParams — параметры пагинации из query string.
type pagingParams struct {
	Page  *int
	Limit *int
}

// reservedParams — параметры запроса, не являющиеся фильтрами.
var reservedParams = map[string]bool{"page": true, "limit": true, "format": true}

// bindPaging разбирает page и limit. Отсутствующий параметр — 0
// (значение по умолчанию в сервисе).
func bindPaging(q url.Values) (page, limit int, err error) {
	var params pagingParams
	if err := runtime.BindQueryParameter("form", true, false, "page", q, &params.Page); err != nil {
		return 0, 0, fmt.Errorf("%w: page: %v", service.ErrValidation, err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &params.Limit); err != nil {
		return 0, 0, fmt.Errorf("%w: limit: %v", service.ErrValidation, err)
	}
	if params.Page != nil {
		if *params.Page < 1 {
			return 0, 0, fmt.Errorf("%w: page должен быть >= 1", service.ErrValidation)
		}
		page = *params.Page
	}
	if params.Limit != nil {
		if *params.Limit < 1 {
			return 0, 0, fmt.Errorf("%w: limit должен быть >= 1", service.ErrValidation)
		}
		limit = *params.Limit
	}
	return page, limit, nil
}

// queryFilters собирает фильтры из query string: все параметры,
// кроме зарезервированных. Повторный параметр — последнее значение.
func queryFilters(q url.Values) map[string]string {
	filters := make(map[string]string, len(q))
	for k, vals := range q {
		if reservedParams[k] || len(vals) == 0 {
			continue
		}
		filters[k] = vals[len(vals)-1]
	}
	return filters
}
