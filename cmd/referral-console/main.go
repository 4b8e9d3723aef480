// Точка входа Referral Console — консоль администратора реферальной организации.
// Загружает конфигурацию, применяет миграции журнала экспорта, подключается
// к PostgreSQL, создаёт клиент REST API backend и сервисный слой (страницы,
// экспорт, варианты фильтров, живые представления), запускает topologymetrics
// и HTTP-сервер с JWT/cookie middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/api/handlers"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/api/middleware"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/apiclient"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/config"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/database"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/resource"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/export"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/report"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/repository"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/server"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/service"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/session"
	uihandlers "github.com/sitfuturz/newAdminCircle-sub000/internal/ui/handlers"
)

const jwksReadyTimeout = 5 * time.Second

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Referral Console запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("RC_DEPHEALTH_GROUP") == "" {
		logger.Warn("RC_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций журнала экспорта
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиент REST API backend: конверты ответов регистрируются по каталогу ресурсов
	httpClient, err := apiclient.NewHTTPClient(cfg.BackendCACertPath, cfg.BackendTimeout)
	if err != nil {
		logger.Error("Ошибка создания HTTP-клиента backend",
			slog.String("ca_cert", cfg.BackendCACertPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	catalog := resource.Builtin()
	registry := apiclient.NewRegistry()
	if err := catalog.RegisterEnvelopes(registry); err != nil {
		logger.Error("Ошибка регистрации конвертов ответов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	backend := apiclient.New(cfg.BackendURL, httpClient, registry, session.TokenFromContext, logger)
	logger.Info("Клиент backend создан",
		slog.String("url", cfg.BackendURL),
		slog.Int("resources", len(catalog.All())),
	)

	// 6. Repositories
	historyRepo := repository.NewExportHistoryRepository(pool)

	// 7. Services
	recordsSvc := service.NewRecordService(backend, catalog, cfg.PageSize, cfg.MaxPageSize, logger)
	aggregator := export.NewAggregator(cfg.ExportPageSize, cfg.ExportMaxPages, logger)
	exportSvc := service.NewExportService(
		recordsSvc, aggregator,
		report.NewRenderer(logger),
		historyRepo,
		logger,
	)
	optionsSvc := service.NewOptionsService(
		recordsSvc, aggregator,
		cfg.OptionsCacheSize, cfg.OptionsCacheTTL,
		logger,
	)
	viewsSvc := service.NewViewService(
		recordsSvc,
		cfg.ViewMax, cfg.ViewTTL, cfg.DebounceInterval,
		logger,
	)

	// 8. topologymetrics — мониторинг зависимостей (PostgreSQL + backend + JWKS)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"referral-console",
		cfg.DephealthGroup,
		service.DephealthTargets{
			DB:                pgDB,
			PostgresURL:       cfg.DatabaseURL(),
			BackendURL:        cfg.BackendURL,
			BackendHealthPath: cfg.BackendHealthPath,
			JWKSURL:           cfg.JWTJWKSURL,
		},
		cfg.DephealthCheckInterval,
		logger,
	)
	// nil *DephealthService нельзя передавать как интерфейс — он станет не-nil
	var deps handlers.DependencyReporter
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	} else {
		deps = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 9. Readiness checkers (PostgreSQL + JWKS)
	pgChecker := database.NewReadinessChecker(pool)
	jwksChecker := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, jwksReadyTimeout)
	healthHandler := handlers.NewHealthHandler(pgChecker, jwksChecker, deps)

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		nil,
		cfg.JWTIssuer,
		middleware.ClaimPaths{Role: cfg.JWTRoleClaim, Chapter: cfg.JWTChapterClaim},
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
		slog.String("role_claim", cfg.JWTRoleClaim),
		slog.String("chapter_claim", cfg.JWTChapterClaim),
	)

	// 11. Сессии UI — шифрованный cookie (AES-256-GCM)
	sessionMgr, err := session.NewManager(string(cfg.SessionSecret), cfg.SessionSecureCookie)
	if err != nil {
		logger.Error("Ошибка создания Session Manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Handlers
	h := server.Handlers{
		API:     handlers.NewAPIHandler(healthHandler, recordsSvc, optionsSvc, exportSvc, logger),
		Views:   uihandlers.NewViewsHandler(viewsSvc, cfg.SSEKeepalive, logger),
		Session: uihandlers.NewSessionHandler(jwtAuth, sessionMgr, logger),
	}
	auth := server.Auth{
		JWT:    jwtAuth,
		Cookie: middleware.NewCookieAuth(sessionMgr, logger),
	}

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h, auth)
	srv.OnShutdown(viewsSvc.Close)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	viewsSvc.Close()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Referral Console остановлен")
}
