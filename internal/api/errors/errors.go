// Пакет errors — конструкторы стандартных ошибок Referral Console.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/apiclient"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/export"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/service"
)

// Коды ошибок.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeExportFailed       = "EXPORT_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// BackendUnavailable — 502 backend организации недоступен или ответил ошибкой.
func BackendUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeBackendUnavailable, message)
}

// ExportFailed — 502 не удалось собрать полный набор записей для отчёта.
func ExportFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeExportFailed, message)
}

// InternalError — 500 внутренняя ошибка сервера.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromError подбирает HTTP-ответ по ошибке сервисного слоя.
// Возвращает true, если ошибка внутренняя (500) и её стоит залогировать.
func FromError(w http.ResponseWriter, err error) bool {
	var aggErr *export.AggregationError
	var fetchErr *apiclient.FetchError

	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrUnsupportedFormat):
		ValidationError(w, err.Error())
	case errors.Is(err, service.ErrUnknownResource),
		errors.Is(err, service.ErrNotFound):
		NotFound(w, err.Error())
	case errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusUnauthorized:
		Unauthorized(w, "backend не принял токен")
	case errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusForbidden:
		Forbidden(w, "backend отказал в доступе")
	case errors.As(err, &aggErr):
		ExportFailed(w, err.Error())
	case fetchErr != nil:
		BackendUnavailable(w, err.Error())
	default:
		InternalError(w, "внутренняя ошибка сервера")
		return true
	}
	return false
}
