// errors.go — типизированные ошибки клиента backend.
package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Категории ошибок запроса к backend.
var (
	// ErrTransport — сетевая ошибка или ошибка подготовки запроса.
	ErrTransport = errors.New("ошибка транспорта backend")
	// ErrStatus — backend вернул HTTP 4xx/5xx.
	ErrStatus = errors.New("backend вернул ошибочный статус")
	// ErrDecode — ответ не удалось привести к странице.
	ErrDecode = errors.New("некорректный ответ backend")
)

// FetchError — ошибка получения страницы. Kind — одна из категорий выше,
// Err — исходная ошибка.
type FetchError struct {
	Endpoint   string
	Kind       error
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("backend %s: статус %d: %s", e.Endpoint, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("backend %s: %v: %v", e.Endpoint, e.Kind, e.Err)
	default:
		return fmt.Sprintf("backend %s: %v", e.Endpoint, e.Kind)
	}
}

// Unwrap позволяет errors.Is сопоставлять и категорию, и исходную ошибку.
func (e *FetchError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ClientError — backend отклонил запрос (4xx).
func (e *FetchError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// ServerError — ошибка на стороне backend (5xx).
func (e *FetchError) ServerError() bool {
	return e.StatusCode >= 500
}

// Unauthorized — backend не принял токен (401/403).
func (e *FetchError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
