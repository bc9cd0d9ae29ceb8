package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"AM_DB_HOST":        "localhost",
		"AM_DB_NAME":        "access",
		"AM_DB_USER":        "access",
		"AM_DB_PASSWORD":    "secret",
		"AM_ADMIN_USERNAME": "admin",
		"AM_ADMIN_PASSWORD": "admin-password",
		"AM_JWT_SECRET":     "0123456789abcdef0123456789abcdef",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8000 {
		t.Errorf("Port = %d, ожидается 8000", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.StorageBackend != StorageBackendPostgres {
		t.Errorf("StorageBackend = %q, ожидается postgres", cfg.StorageBackend)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.JWTIssuer != "access-manager" {
		t.Errorf("JWTIssuer = %q, ожидается access-manager", cfg.JWTIssuer)
	}
	if cfg.JWTTTL != 24*time.Hour {
		t.Errorf("JWTTTL = %v, ожидается 24h", cfg.JWTTTL)
	}
	if cfg.JWTRememberTTL != 60*24*time.Hour {
		t.Errorf("JWTRememberTTL = %v, ожидается 1440h", cfg.JWTRememberTTL)
	}
	if cfg.JWTJWKSRefreshInterval != time.Hour {
		t.Errorf("JWTJWKSRefreshInterval = %v, ожидается 1h", cfg.JWTJWKSRefreshInterval)
	}
	if cfg.WebhookTimeout != 10*time.Second {
		t.Errorf("WebhookTimeout = %v, ожидается 10s", cfg.WebhookTimeout)
	}
	if cfg.WebhookDispatchMode != DispatchModeAwait {
		t.Errorf("WebhookDispatchMode = %q, ожидается await", cfg.WebhookDispatchMode)
	}
	if cfg.ExpiryUnit != time.Hour {
		t.Errorf("ExpiryUnit = %v, ожидается 1h", cfg.ExpiryUnit)
	}
	if cfg.ExpirySweepInterval != 0 {
		t.Errorf("ExpirySweepInterval = %v, ожидается 0", cfg.ExpirySweepInterval)
	}
	if cfg.Maintenance {
		t.Error("Maintenance = true, ожидается false")
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MemoryBackendSkipsDatabase(t *testing.T) {
	setEnvs(t, map[string]string{
		"AM_STORAGE_BACKEND": "memory",
		"AM_ADMIN_USERNAME":  "admin",
		"AM_ADMIN_PASSWORD":  "admin-password",
		"AM_JWT_SECRET":      "0123456789abcdef0123456789abcdef",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.StorageBackend != StorageBackendMemory {
		t.Errorf("StorageBackend = %q, ожидается memory", cfg.StorageBackend)
	}
	if cfg.DBHost != "" {
		t.Errorf("DBHost = %q, ожидается пустая строка", cfg.DBHost)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["AM_PORT"] = "9001"
	envs["AM_LOG_LEVEL"] = "debug"
	envs["AM_LOG_FORMAT"] = "text"
	envs["AM_WEBHOOK_DISPATCH_MODE"] = "detached"
	envs["AM_WEBHOOK_TIMEOUT"] = "3s"
	envs["AM_EXPIRY_UNIT"] = "1m"
	envs["AM_EXPIRY_SWEEP_INTERVAL"] = "30s"
	envs["AM_OWNER_NAME"] = "Owner"
	envs["AM_MAINTENANCE"] = "true"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9001 {
		t.Errorf("Port = %d, ожидается 9001", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.WebhookDispatchMode != DispatchModeDetached {
		t.Errorf("WebhookDispatchMode = %q, ожидается detached", cfg.WebhookDispatchMode)
	}
	if cfg.WebhookTimeout != 3*time.Second {
		t.Errorf("WebhookTimeout = %v, ожидается 3s", cfg.WebhookTimeout)
	}
	if cfg.ExpiryUnit != time.Minute {
		t.Errorf("ExpiryUnit = %v, ожидается 1m", cfg.ExpiryUnit)
	}
	if cfg.ExpirySweepInterval != 30*time.Second {
		t.Errorf("ExpirySweepInterval = %v, ожидается 30s", cfg.ExpirySweepInterval)
	}
	if cfg.OwnerName != "Owner" {
		t.Errorf("OwnerName = %q, ожидается Owner", cfg.OwnerName)
	}
	if !cfg.Maintenance {
		t.Error("Maintenance = false, ожидается true")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"неизвестный бэкенд", "AM_STORAGE_BACKEND", "mongo", "AM_STORAGE_BACKEND"},
		{"некорректный порт", "AM_PORT", "abc", "AM_PORT"},
		{"порт вне диапазона", "AM_PORT", "70000", "AM_PORT"},
		{"уровень логов", "AM_LOG_LEVEL", "trace", "AM_LOG_LEVEL"},
		{"формат логов", "AM_LOG_FORMAT", "xml", "AM_LOG_FORMAT"},
		{"режим отправки", "AM_WEBHOOK_DISPATCH_MODE", "queue", "AM_WEBHOOK_DISPATCH_MODE"},
		{"таймаут webhook", "AM_WEBHOOK_TIMEOUT", "0s", "AM_WEBHOOK_TIMEOUT"},
		{"короткий секрет", "AM_JWT_SECRET", "short", "AM_JWT_SECRET"},
		{"SSL режим", "AM_DB_SSL_MODE", "prefer", "AM_DB_SSL_MODE"},
		{"отрицательный интервал", "AM_EXPIRY_SWEEP_INTERVAL", "-1m", "AM_EXPIRY_SWEEP_INTERVAL"},
		{"булево значение", "AM_MAINTENANCE", "maybe", "AM_MAINTENANCE"},
		{"JWKS URL", "AM_JWT_JWKS_URL", "not a url", "AM_JWT_JWKS_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() не вернул ошибку для %s=%q", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ошибка %q не содержит %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"AM_DB_HOST", "AM_DB_NAME", "AM_ADMIN_USERNAME", "AM_JWT_SECRET"} {
		t.Run(key, func(t *testing.T) {
			envs := minimalEnvs()
			delete(envs, key)
			setEnvs(t, envs)
			t.Setenv(key, "")

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() не вернул ошибку без %s", key)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("ошибка %q не содержит %s", err.Error(), key)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: 5433, DBName: "access", DBUser: "u", DBPassword: "p", DBSSLMode: "require",
	}
	want := "host=db port=5433 dbname=access user=u password=p sslmode=require"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", got, want)
	}
	if got := cfg.DatabaseURL(); got != "postgres://u@db:5433/access" {
		t.Errorf("DatabaseURL() = %q", got)
	}
}
