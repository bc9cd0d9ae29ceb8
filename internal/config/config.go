// Пакет config — загрузка и валидация конфигурации Access Manager
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые значения AM_STORAGE_BACKEND.
const (
	StorageBackendPostgres = "postgres"
	StorageBackendMemory   = "memory"
)

// Допустимые значения AM_WEBHOOK_DISPATCH_MODE.
const (
	DispatchModeAwait    = "await"
	DispatchModeDetached = "detached"
)

// Config содержит все параметры конфигурации Access Manager.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Режим обслуживания (отображается в /status)
	Maintenance bool

	// --- Хранилище ---

	// Бэкенд хранилища подключений: postgres, memory
	StorageBackend string
	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Администратор и JWT ---

	// Учётные данные администратора для /api/v1/auth/token
	AdminUsername string
	AdminPassword string
	// Секрет подписи HS256-токенов
	JWTSecret string
	// Issuer выпускаемых и проверяемых токенов
	JWTIssuer string
	// URL JWKS endpoint (опционально, включает проверку RS256-токенов внешнего IdP)
	JWTJWKSURL string
	// Интервал обновления ключей JWKS
	JWTJWKSRefreshInterval time.Duration
	// Время жизни токена
	JWTTTL time.Duration
	// Время жизни токена при remember_me
	JWTRememberTTL time.Duration

	// --- Webhooks ---

	// Таймаут одного webhook-запроса
	WebhookTimeout time.Duration
	// Политика отправки: await, detached
	WebhookDispatchMode string
	// Размер и TTL кэша конфигураций webhook
	WebhookCacheSize int
	WebhookCacheTTL  time.Duration

	// --- Владелец (переменные шаблонов webhook) ---

	OwnerName  string
	OwnerEmail string
	OwnerPhone string

	// --- Срок действия доступа ---

	// Единица измерения expiry в запросах (по умолчанию час)
	ExpiryUnit time.Duration
	// Интервал очистки истёкших подключений (0 — отключено)
	ExpirySweepInterval time.Duration

	// --- topologymetrics ---

	// Имя группы в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// AM_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("AM_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("AM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("AM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// AM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AM_LOG_LEVEL: %w", err)
	}

	// AM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.HTTPReadTimeout, err = getEnvDuration("AM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("AM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("AM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// AM_MAINTENANCE — режим обслуживания (по умолчанию false)
	cfg.Maintenance, err = getEnvBool("AM_MAINTENANCE", false)
	if err != nil {
		return nil, fmt.Errorf("AM_MAINTENANCE: %w", err)
	}

	// --- Хранилище ---

	// AM_STORAGE_BACKEND — бэкенд хранилища (по умолчанию postgres)
	cfg.StorageBackend = getEnvDefault("AM_STORAGE_BACKEND", StorageBackendPostgres)
	if cfg.StorageBackend != StorageBackendPostgres && cfg.StorageBackend != StorageBackendMemory {
		return nil, fmt.Errorf("AM_STORAGE_BACKEND: недопустимое значение %q, допустимые: postgres, memory", cfg.StorageBackend)
	}

	if cfg.StorageBackend == StorageBackendPostgres {
		if err := loadDatabase(cfg); err != nil {
			return nil, err
		}
	}

	// --- Администратор и JWT ---

	cfg.AdminUsername, err = getEnvRequired("AM_ADMIN_USERNAME")
	if err != nil {
		return nil, err
	}
	cfg.AdminPassword, err = getEnvRequired("AM_ADMIN_PASSWORD")
	if err != nil {
		return nil, err
	}

	// AM_JWT_SECRET — обязательный, не короче 32 байт
	cfg.JWTSecret, err = getEnvRequired("AM_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("AM_JWT_SECRET: длина секрета должна быть не меньше 32 байт")
	}

	cfg.JWTIssuer = getEnvDefault("AM_JWT_ISSUER", "access-manager")
	cfg.JWTJWKSURL = getEnvDefault("AM_JWT_JWKS_URL", "")
	if cfg.JWTJWKSURL != "" {
		if _, err := url.ParseRequestURI(cfg.JWTJWKSURL); err != nil {
			return nil, fmt.Errorf("AM_JWT_JWKS_URL: некорректный URL %q", cfg.JWTJWKSURL)
		}
	}

	cfg.JWTJWKSRefreshInterval, err = getEnvDuration("AM_JWT_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AM_JWT_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// AM_JWT_TTL — время жизни токена (по умолчанию 24h)
	cfg.JWTTTL, err = getEnvDuration("AM_JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AM_JWT_TTL: %w", err)
	}

	// AM_JWT_REMEMBER_TTL — время жизни токена с remember_me (по умолчанию 60 дней)
	cfg.JWTRememberTTL, err = getEnvDuration("AM_JWT_REMEMBER_TTL", 60*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AM_JWT_REMEMBER_TTL: %w", err)
	}

	// --- Webhooks ---

	// AM_WEBHOOK_TIMEOUT — таймаут webhook-запроса (по умолчанию 10s)
	cfg.WebhookTimeout, err = getEnvDuration("AM_WEBHOOK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AM_WEBHOOK_TIMEOUT: %w", err)
	}
	if cfg.WebhookTimeout <= 0 {
		return nil, fmt.Errorf("AM_WEBHOOK_TIMEOUT: значение должно быть положительным")
	}

	// AM_WEBHOOK_DISPATCH_MODE — политика отправки (по умолчанию await)
	cfg.WebhookDispatchMode = getEnvDefault("AM_WEBHOOK_DISPATCH_MODE", DispatchModeAwait)
	if cfg.WebhookDispatchMode != DispatchModeAwait && cfg.WebhookDispatchMode != DispatchModeDetached {
		return nil, fmt.Errorf("AM_WEBHOOK_DISPATCH_MODE: недопустимое значение %q, допустимые: await, detached", cfg.WebhookDispatchMode)
	}

	cfg.WebhookCacheSize, err = getEnvInt("AM_WEBHOOK_CACHE_SIZE", 16)
	if err != nil {
		return nil, fmt.Errorf("AM_WEBHOOK_CACHE_SIZE: %w", err)
	}
	if cfg.WebhookCacheSize < 1 {
		return nil, fmt.Errorf("AM_WEBHOOK_CACHE_SIZE: значение должно быть не меньше 1")
	}
	cfg.WebhookCacheTTL, err = getEnvDuration("AM_WEBHOOK_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AM_WEBHOOK_CACHE_TTL: %w", err)
	}

	// --- Владелец ---

	cfg.OwnerName = getEnvDefault("AM_OWNER_NAME", "")
	cfg.OwnerEmail = getEnvDefault("AM_OWNER_EMAIL", "")
	cfg.OwnerPhone = getEnvDefault("AM_OWNER_PHONE", "")

	// --- Срок действия доступа ---

	// AM_EXPIRY_UNIT — единица expiry (по умолчанию 1h)
	cfg.ExpiryUnit, err = getEnvDuration("AM_EXPIRY_UNIT", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AM_EXPIRY_UNIT: %w", err)
	}
	if cfg.ExpiryUnit <= 0 {
		return nil, fmt.Errorf("AM_EXPIRY_UNIT: значение должно быть положительным")
	}

	// AM_EXPIRY_SWEEP_INTERVAL — интервал очистки (по умолчанию 0, отключено)
	cfg.ExpirySweepInterval, err = getEnvDuration("AM_EXPIRY_SWEEP_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("AM_EXPIRY_SWEEP_INTERVAL: %w", err)
	}
	if cfg.ExpirySweepInterval < 0 {
		return nil, fmt.Errorf("AM_EXPIRY_SWEEP_INTERVAL: значение не может быть отрицательным")
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("AM_DEPHEALTH_GROUP", "access-manager")
	cfg.DephealthCheckInterval, err = getEnvDuration("AM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// AM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("AM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadDatabase загружает параметры PostgreSQL.
func loadDatabase(cfg *Config) error {
	var err error

	// AM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("AM_DB_HOST")
	if err != nil {
		return err
	}

	// AM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("AM_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("AM_DB_PORT: %w", err)
	}

	// AM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("AM_DB_NAME")
	if err != nil {
		return err
	}

	// AM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("AM_DB_USER")
	if err != nil {
		return err
	}

	// AM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("AM_DB_PASSWORD")
	if err != nil {
		return err
	}

	// AM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("AM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("AM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
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
