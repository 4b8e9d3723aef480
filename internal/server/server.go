// Пакет server — HTTP-сервер Referral Console с graceful shutdown.
// Без TLS — TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/api/handlers"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/api/middleware"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/config"
	uihandlers "github.com/sitfuturz/newAdminCircle-sub000/internal/ui/handlers"
)

// Server — HTTP-сервер Referral Console.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Handlers — обработчики всех маршрутов.
type Handlers struct {
	API     *handlers.APIHandler
	Views   *uihandlers.ViewsHandler
	Session *uihandlers.SessionHandler
}

// Auth — middleware аутентификации. nil отключает проверку (для тестов).
type Auth struct {
	JWT    *middleware.JWTAuth
	Cookie *middleware.CookieAuth
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, auth Auth) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(logger, h, auth),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
		cfg:    cfg,
	}
}

// NewRouter собирает маршруты консоли.
// Health и metrics — без аутентификации; /api/v1 — bearer JWT;
// /ui/views — cookie сессии, созданный на POST /ui/session.
func NewRouter(logger *slog.Logger, h Handlers, auth Auth) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.API.HealthLive)
	router.Get("/health/ready", h.API.HealthReady)
	router.Get("/metrics", h.API.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		if auth.JWT != nil {
			r.Use(auth.JWT.Middleware())
		}
		r.Get("/me/scope", h.API.GetScope)
		r.Get("/resources", h.API.ListResources)
		r.Get("/resources/{resource}", h.API.ListRecords)
		r.Get("/resources/{resource}/options", h.API.GetOptions)
		r.Get("/resources/{resource}/export", h.API.ExportRecords)
		r.Get("/exports", h.API.ListExports)
		r.Get("/exports/{id}", h.API.GetExport)
	})

	router.Route("/ui", func(r chi.Router) {
		r.Post("/session", h.Session.HandleCreate)
		r.Delete("/session", h.Session.HandleDelete)

		r.Route("/views", func(r chi.Router) {
			if auth.Cookie != nil {
				r.Use(auth.Cookie.Middleware())
			}
			r.Post("/", h.Views.HandleCreate)
			r.Get("/{id}", h.Views.HandleGet)
			r.Delete("/{id}", h.Views.HandleDelete)
			r.Patch("/{id}/filter", h.Views.HandleFilter)
			r.Post("/{id}/page/{n}", h.Views.HandlePage)
			r.Post("/{id}/reset", h.Views.HandleReset)
			r.Get("/{id}/events", h.Views.HandleEvents)
			r.Get("/{id}/table", h.Views.HandleTable)
		})
	})

	return router
}

// OnShutdown регистрирует функцию, вызываемую в начале graceful shutdown.
// Используется для закрытия представлений: SSE-потоки завершаются
// закрытием подписок, а не отключением клиента.
func (s *Server) OnShutdown(f func()) {
	s.httpServer.RegisterOnShutdown(f)
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
