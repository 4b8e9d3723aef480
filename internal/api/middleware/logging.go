// logging.go — middleware логирования входящих HTTP-запросов через slog.
// Кроме статуса, размера и длительности пишет шаблон маршрута chi,
// ресурс и представление из параметров пути и число строк экспорта.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// ExportRowsHeader — заголовок ответа экспорта с числом строк файла.
const ExportRowsHeader = "X-Export-Rows"

// responseWriter — обёртка для перехвата статус-кода ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter
// (Flush для SSE).
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestLogger возвращает middleware, логирующий каждый HTTP-запрос.
// Уровень зависит от статус-кода: INFO (1xx-3xx), WARN (4xx), ERROR (5xx).
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			if wrapped.statusCode >= 500 {
				level = slog.LevelError
			} else if wrapped.statusCode >= 400 {
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			attrs = append(attrs, routeAttrs(r)...)
			if rows, err := strconv.Atoi(wrapped.Header().Get(ExportRowsHeader)); err == nil {
				attrs = append(attrs, slog.Int("export_rows", rows))
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}

// routeAttrs — шаблон маршрута и параметры ресурса/представления.
// Контекст маршрута chi заполняется при маршрутизации, поэтому
// читается после обработки запроса.
func routeAttrs(r *http.Request) []slog.Attr {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if pattern := rctx.RoutePattern(); pattern != "" {
		attrs = append(attrs, slog.String("route", pattern))
	}
	if res := rctx.URLParam("resource"); res != "" {
		attrs = append(attrs, slog.String("resource", res))
	}
	if strings.HasPrefix(rctx.RoutePattern(), "/ui/views/") {
		if id := rctx.URLParam("id"); id != "" {
			attrs = append(attrs, slog.String("view_id", id))
		}
	} else if id := rctx.URLParam("id"); id != "" {
		attrs = append(attrs, slog.String("export_id", id))
	}
	return attrs
}
