// Пакет config — загрузка и валидация конфигурации Referral Console
// из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Referral Console.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL (журнал экспорта) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Backend организации ---

	// Базовый URL REST API backend
	BackendURL string
	// Таймаут одного запроса к backend
	BackendTimeout time.Duration
	// Путь к CA-сертификату backend (опционально)
	BackendCACertPath string
	// Путь health endpoint backend для topologymetrics
	BackendHealthPath string

	// --- JWT ---

	// URL JWKS endpoint
	JWTJWKSURL string
	// Ожидаемый issuer (опционально)
	JWTIssuer string
	// Допустимое расхождение часов
	JWTLeeway time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Claim с ролью пользователя
	JWTRoleClaim string
	// Claim с отделением пользователя
	JWTChapterClaim string

	// --- Сессия UI ---

	// Ключ шифрования cookie (32 байта)
	SessionSecret []byte
	// Флаг Secure для cookie
	SessionSecureCookie bool

	// --- Списки и экспорт ---

	// Размер страницы по умолчанию
	PageSize int
	// Максимальный размер страницы, запрашиваемый клиентом
	MaxPageSize int
	// Размер страницы при экспорте
	ExportPageSize int
	// Максимум страниц одного экспорта
	ExportMaxPages int

	// --- Представления ---

	// Интервал debounce фильтра
	DebounceInterval time.Duration
	// Время жизни неактивного представления
	ViewTTL time.Duration
	// Максимум одновременно открытых представлений
	ViewMax int
	// Интервал keepalive SSE
	SSEKeepalive time.Duration

	// --- Кэш вариантов фильтра ---

	OptionsCacheSize int
	OptionsCacheTTL  time.Duration

	// --- topologymetrics ---

	// Группа сервиса в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Перед чтением подгружается файл RC_ENV_FILE (по умолчанию .env), если он есть.
// Уже заданные переменные окружения файлом не перекрываются.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvDefault("RC_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	// RC_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("RC_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("RC_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("RC_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// RC_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("RC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("RC_LOG_LEVEL: %w", err)
	}

	// RC_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("RC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("RC_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("RC_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("RC_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("RC_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("RC_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("RC_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("RC_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("RC_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Backend ---

	// RC_BACKEND_URL — обязательный
	cfg.BackendURL, err = getEnvRequired("RC_BACKEND_URL")
	if err != nil {
		return nil, err
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	if u, perr := url.Parse(cfg.BackendURL); perr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("RC_BACKEND_URL: некорректный URL %q", cfg.BackendURL)
	}

	// RC_BACKEND_TIMEOUT — таймаут запроса к backend (по умолчанию 30s)
	cfg.BackendTimeout, err = getEnvDuration("RC_BACKEND_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RC_BACKEND_TIMEOUT: %w", err)
	}

	// RC_BACKEND_CA_CERT_PATH — CA-сертификат backend (опционально)
	cfg.BackendCACertPath = getEnvDefault("RC_BACKEND_CA_CERT_PATH", "")

	// RC_BACKEND_HEALTH_PATH — health endpoint backend (по умолчанию /health)
	cfg.BackendHealthPath = getEnvDefault("RC_BACKEND_HEALTH_PATH", "/health")
	if !strings.HasPrefix(cfg.BackendHealthPath, "/") {
		return nil, fmt.Errorf("RC_BACKEND_HEALTH_PATH: путь должен начинаться с /, получено %q", cfg.BackendHealthPath)
	}

	// --- JWT ---

	// RC_JWT_JWKS_URL — обязательный
	cfg.JWTJWKSURL, err = getEnvRequired("RC_JWT_JWKS_URL")
	if err != nil {
		return nil, err
	}
	cfg.JWTIssuer = getEnvDefault("RC_JWT_ISSUER", "")
	cfg.JWTLeeway, err = getEnvDuration("RC_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RC_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("RC_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RC_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTRoleClaim = getEnvDefault("RC_JWT_ROLE_CLAIM", "role")
	cfg.JWTChapterClaim = getEnvDefault("RC_JWT_CHAPTER_CLAIM", "chapter")

	// --- Сессия UI ---

	// RC_SESSION_SECRET — обязательный, ровно 32 байта (AES-256)
	secret, err := getEnvRequired("RC_SESSION_SECRET")
	if err != nil {
		return nil, err
	}
	if len(secret) != 32 {
		return nil, fmt.Errorf("RC_SESSION_SECRET: ожидается 32 байта, получено %d", len(secret))
	}
	cfg.SessionSecret = []byte(secret)
	cfg.SessionSecureCookie, err = getEnvBool("RC_SESSION_SECURE_COOKIE", true)
	if err != nil {
		return nil, fmt.Errorf("RC_SESSION_SECURE_COOKIE: %w", err)
	}

	// --- Списки и экспорт ---

	cfg.MaxPageSize, err = getEnvInt("RC_MAX_PAGE_SIZE", 200)
	if err != nil {
		return nil, fmt.Errorf("RC_MAX_PAGE_SIZE: %w", err)
	}
	if cfg.MaxPageSize < 1 || cfg.MaxPageSize > 10000 {
		return nil, fmt.Errorf("RC_MAX_PAGE_SIZE: значение %d вне допустимого диапазона 1-10000", cfg.MaxPageSize)
	}
	cfg.PageSize, err = getEnvInt("RC_PAGE_SIZE", 20)
	if err != nil {
		return nil, fmt.Errorf("RC_PAGE_SIZE: %w", err)
	}
	if cfg.PageSize < 1 || cfg.PageSize > cfg.MaxPageSize {
		return nil, fmt.Errorf("RC_PAGE_SIZE: значение %d вне допустимого диапазона 1-%d", cfg.PageSize, cfg.MaxPageSize)
	}
	cfg.ExportPageSize, err = getEnvInt("RC_EXPORT_PAGE_SIZE", 500)
	if err != nil {
		return nil, fmt.Errorf("RC_EXPORT_PAGE_SIZE: %w", err)
	}
	if cfg.ExportPageSize < 1 || cfg.ExportPageSize > 100000 {
		return nil, fmt.Errorf("RC_EXPORT_PAGE_SIZE: значение %d вне допустимого диапазона 1-100000", cfg.ExportPageSize)
	}
	cfg.ExportMaxPages, err = getEnvInt("RC_EXPORT_MAX_PAGES", 1000)
	if err != nil {
		return nil, fmt.Errorf("RC_EXPORT_MAX_PAGES: %w", err)
	}
	if cfg.ExportMaxPages < 1 {
		return nil, fmt.Errorf("RC_EXPORT_MAX_PAGES: значение %d должно быть положительным", cfg.ExportMaxPages)
	}

	// --- Представления ---

	// RC_DEBOUNCE_INTERVAL — debounce фильтра (по умолчанию 400ms)
	cfg.DebounceInterval, err = getEnvDuration("RC_DEBOUNCE_INTERVAL", 400*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("RC_DEBOUNCE_INTERVAL: %w", err)
	}
	if cfg.DebounceInterval <= 0 || cfg.DebounceInterval > 10*time.Second {
		return nil, fmt.Errorf("RC_DEBOUNCE_INTERVAL: значение %v вне допустимого диапазона (0, 10s]", cfg.DebounceInterval)
	}
	cfg.ViewTTL, err = getEnvDuration("RC_VIEW_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RC_VIEW_TTL: %w", err)
	}
	cfg.ViewMax, err = getEnvInt("RC_VIEW_MAX", 1000)
	if err != nil {
		return nil, fmt.Errorf("RC_VIEW_MAX: %w", err)
	}
	if cfg.ViewMax < 1 {
		return nil, fmt.Errorf("RC_VIEW_MAX: значение %d должно быть положительным", cfg.ViewMax)
	}
	cfg.SSEKeepalive, err = getEnvDuration("RC_SSE_KEEPALIVE", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RC_SSE_KEEPALIVE: %w", err)
	}
	if cfg.SSEKeepalive <= 0 {
		return nil, fmt.Errorf("RC_SSE_KEEPALIVE: значение %v должно быть положительным", cfg.SSEKeepalive)
	}

	// --- Кэш вариантов фильтра ---

	cfg.OptionsCacheSize, err = getEnvInt("RC_OPTIONS_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("RC_OPTIONS_CACHE_SIZE: %w", err)
	}
	if cfg.OptionsCacheSize < 1 {
		return nil, fmt.Errorf("RC_OPTIONS_CACHE_SIZE: значение %d должно быть положительным", cfg.OptionsCacheSize)
	}
	cfg.OptionsCacheTTL, err = getEnvDuration("RC_OPTIONS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RC_OPTIONS_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("RC_DEPHEALTH_GROUP", "referral-console")
	cfg.DephealthCheckInterval, err = getEnvDuration("RC_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RC_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("RC_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RC_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL (postgres://...) для topologymetrics.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadEnvFile подгружает переменные из файла. Отсутствующий файл не ошибка.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("RC_ENV_FILE: чтение %s: %w", path, err)
	}
	return nil
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
