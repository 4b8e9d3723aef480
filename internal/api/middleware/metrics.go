// metrics.go — Prometheus HTTP метрики Referral Console.
// Регистрирует метрики: rc_http_requests_total, rc_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rc_http_requests_total",
			Help: "Общее количество HTTP-запросов к Referral Console",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rc_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Referral Console в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет переменные сегменты пути шаблонами для
// ограничения кардинальности метрик.
// /api/v1/resources/referrals/export → /api/v1/resources/{resource}/export
// /ui/views/5f0c.../page/3 → /ui/views/{id}/page/{n}
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/me/scope", "/api/v1/resources", "/api/v1/exports",
		"/ui/session", "/ui/views":
		return path
	}

	prefixes := []struct {
		prefix string
		result string
	}{
		{"/api/v1/resources/", "/api/v1/resources/{resource}"},
		{"/api/v1/exports/", "/api/v1/exports/{id}"},
		{"/ui/views/", "/ui/views/{id}"},
	}

	for _, p := range prefixes {
		rest, ok := strings.CutPrefix(path, p.prefix)
		if !ok || rest == "" {
			continue
		}
		_, suffix, found := strings.Cut(rest, "/")
		if !found {
			return p.result
		}
		switch {
		case suffix == "options", suffix == "export", suffix == "filter",
			suffix == "reset", suffix == "events", suffix == "table":
			return p.result + "/" + suffix
		case strings.HasPrefix(suffix, "page/"):
			return p.result + "/page/{n}"
		default:
			return p.result + "/{other}"
		}
	}

	return "/{other}"
}
