// Точка входа Access Manager — управление доступом к сервисам за reverse proxy.
// Загружает конфигурацию, выбирает хранилище (PostgreSQL или память),
// применяет миграции, создаёт сервисный слой, webhook dispatcher и API handlers,
// запускает фоновые задачи (очистка истёкших подключений, topologymetrics),
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/handlers"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/middleware"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/config"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/database"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/repository"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/server"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/service"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/webhook"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Access Manager запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage", cfg.StorageBackend),
		slog.String("webhook_dispatch", cfg.WebhookDispatchMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Хранилище
	var (
		connStore    repository.ConnectionStore
		serviceRepo  repository.ServiceRepository
		webhookRepo  repository.WebhookRepository
		storageCheck handlers.ReadinessChecker
		pgDB         *sql.DB
	)

	switch cfg.StorageBackend {
	case config.StorageBackendPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		// Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт через
		// существующий пул соединений
		pgDB = stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		connStore = repository.NewConnectionStore(pool)
		serviceRepo = repository.NewServiceRepository(pool)
		webhookRepo = repository.NewWebhookRepository(pool)
		storageCheck = database.NewReadinessChecker(pool)

	default:
		logger.Warn("Используется хранилище в памяти, данные не сохраняются между рестартами")
		memStore := repository.NewMemoryConnectionStore()
		connStore = memStore
		serviceRepo = repository.NewMemoryServiceRepository()
		webhookRepo = repository.NewMemoryWebhookRepository()
		storageCheck = memStore
	}

	// 4. Webhook: кэш конфигураций, dispatcher, notifier
	webhookSvc := service.NewWebhookService(webhookRepo, cfg.WebhookCacheSize, cfg.WebhookCacheTTL, logger)
	dispatcher := webhook.NewDispatcher(webhook.Options{
		Timeout:  cfg.WebhookTimeout,
		Detached: cfg.WebhookDispatchMode == config.DispatchModeDetached,
	}, logger)
	notifier := service.NewNotifier(webhookSvc, dispatcher, webhook.Owner{
		Name:  cfg.OwnerName,
		Email: cfg.OwnerEmail,
		Phone: cfg.OwnerPhone,
	}, logger)

	// 5. Services
	catalogSvc := service.NewCatalogService(serviceRepo, logger)
	connectionsSvc := service.NewConnectionService(connStore, catalogSvc, notifier, cfg.ExpiryUnit, logger)
	authSvc := service.NewAuthService(service.AuthConfig{
		Username:    cfg.AdminUsername,
		Password:    cfg.AdminPassword,
		Secret:      cfg.JWTSecret,
		Issuer:      cfg.JWTIssuer,
		TTL:         cfg.JWTTTL,
		RememberTTL: cfg.JWTRememberTTL,
	}, logger)

	// 6. Очистка истёкших подключений (опционально)
	if cfg.ExpirySweepInterval > 0 {
		sweeper := service.NewExpirySweeper(connectionsSvc, cfg.ExpirySweepInterval, logger)
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	// 7. topologymetrics — мониторинг зависимостей (PostgreSQL, IdP JWKS)
	var deps handlers.DependencyHealth
	if pgDB != nil || cfg.JWTJWKSURL != "" {
		dephealthSvc, dhErr := service.NewDephealthService(service.DephealthConfig{
			ServiceID:     "access-manager",
			Group:         cfg.DephealthGroup,
			DB:            pgDB,
			PostgresURL:   cfg.DatabaseURL(),
			JWKSURL:       cfg.JWTJWKSURL,
			CheckInterval: cfg.DephealthCheckInterval,
		}, logger)
		if dhErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dhErr.Error()),
			)
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		} else {
			defer dephealthSvc.Stop()
			deps = dephealthSvc
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 8. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTJWKSURL, cfg.JWTJWKSRefreshInterval, logger)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. HTTP-сервер
	healthHandler := handlers.NewHealthHandler(storageCheck, deps, cfg.Maintenance)
	apiHandler := handlers.NewAPIHandler(healthHandler, authSvc, catalogSvc, connectionsSvc, webhookSvc, logger)
	srv := server.New(cfg, logger, apiHandler, jwtAuth)

	runErr := srv.Run(ctx)

	// Дожидаемся webhook, отправленных в режиме detached
	dispatcher.Wait()

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Access Manager остановлен")
}
