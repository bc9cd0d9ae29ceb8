// webhooks.go — управление конфигурациями webhook.
// Конфигурации читаются при каждом событии, поэтому кэшируются в
// expirable LRU; любое изменение инвалидирует запись события.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/repository"
)

// Prometheus-метрики кэша webhook.
var (
	webhookCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "am_webhook_cache_hits_total",
		Help: "Общее количество попаданий в кэш конфигураций webhook.",
	})
	webhookCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "am_webhook_cache_misses_total",
		Help: "Общее количество промахов кэша конфигураций webhook.",
	})
)

// WebhookService — CRUD конфигураций webhook с кэшем по событию.
// В кэше хранится и отсутствие webhook (nil), чтобы не ходить в БД на каждое событие.
// generations увеличивается при каждом изменении события: Lookup не кладёт в кэш
// результат чтения, начатого до изменения.
type WebhookService struct {
	repo   repository.WebhookRepository
	cache  *expirable.LRU[model.Event, *model.WebhookConfig]
	logger *slog.Logger

	mu          sync.Mutex
	generations map[model.Event]uint64
}

// NewWebhookService создаёт сервис webhook.
// cacheSize — максимальное количество событий в кэше, cacheTTL — время жизни записи.
func NewWebhookService(repo repository.WebhookRepository, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *WebhookService {
	return &WebhookService{
		repo:   repo,
		cache:  expirable.NewLRU[model.Event, *model.WebhookConfig](cacheSize, nil, cacheTTL),
		logger: logger.With(slog.String("component", "webhook_service")),

		generations: make(map[model.Event]uint64),
	}
}

// Lookup возвращает webhook события или nil, если он не настроен.
func (s *WebhookService) Lookup(ctx context.Context, event model.Event) (*model.WebhookConfig, error) {
	if cfg, ok := s.cache.Get(event); ok {
		webhookCacheHitsTotal.Inc()
		return cfg, nil
	}
	webhookCacheMissesTotal.Inc()

	gen := s.generation(event)
	cfg, err := s.repo.Get(ctx, event)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("получение webhook: %w", err)
		}
		cfg = nil
	}

	s.mu.Lock()
	if s.generations[event] == gen {
		s.cache.Add(event, cfg)
	}
	s.mu.Unlock()
	return cfg, nil
}

func (s *WebhookService) generation(event model.Event) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[event]
}

// invalidate сбрасывает запись события после изменения в репозитории.
func (s *WebhookService) invalidate(event model.Event) {
	s.mu.Lock()
	s.generations[event]++
	s.cache.Remove(event)
	s.mu.Unlock()
}

// List возвращает все настроенные webhook.
func (s *WebhookService) List(ctx context.Context) ([]*model.WebhookConfig, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение списка webhook: %w", err)
	}
	return items, nil
}

// Get возвращает webhook события.
func (s *WebhookService) Get(ctx context.Context, event model.Event) (*model.WebhookConfig, error) {
	cfg, err := s.repo.Get(ctx, event)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: webhook для события %s не настроен", ErrNotFound, event)
		}
		return nil, fmt.Errorf("получение webhook: %w", err)
	}
	return cfg, nil
}

// Create добавляет webhook для события. ErrConflict, если он уже есть.
func (s *WebhookService) Create(ctx context.Context, cfg *model.WebhookConfig) (*model.WebhookConfig, error) {
	if err := validateWebhook(cfg); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, cfg); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: webhook для события %s уже существует", ErrConflict, cfg.Event)
		}
		return nil, fmt.Errorf("создание webhook: %w", err)
	}
	s.invalidate(cfg.Event)

	s.logger.Info("Webhook создан",
		slog.String("event", string(cfg.Event)),
		slog.String("method", cfg.Method),
	)
	return cfg, nil
}

// Update применяет частичное изменение к webhook события.
func (s *WebhookService) Update(ctx context.Context, event model.Event, patch model.WebhookPatch) (*model.WebhookConfig, error) {
	cfg, err := s.Get(ctx, event)
	if err != nil {
		return nil, err
	}
	patch.Apply(cfg)
	if err := validateWebhook(cfg); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, cfg); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: webhook для события %s не настроен", ErrNotFound, event)
		}
		return nil, fmt.Errorf("обновление webhook: %w", err)
	}
	s.invalidate(event)

	s.logger.Info("Webhook обновлён", slog.String("event", string(event)))
	return cfg, nil
}

// Delete удаляет webhook события.
func (s *WebhookService) Delete(ctx context.Context, event model.Event) error {
	if err := s.repo.Delete(ctx, event); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: webhook для события %s не настроен", ErrNotFound, event)
		}
		return fmt.Errorf("удаление webhook: %w", err)
	}
	s.invalidate(event)

	s.logger.Info("Webhook удалён", slog.String("event", string(event)))
	return nil
}

// validateWebhook проверяет метод и URL, нормализуя метод.
// URL проверяется только по схеме: остальная часть может быть шаблоном.
func validateWebhook(cfg *model.WebhookConfig) error {
	if _, err := model.ParseEvent(string(cfg.Event)); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	method, err := model.ParseMethod(cfg.Method)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	cfg.Method = method

	lower := strings.ToLower(cfg.URL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return fmt.Errorf("%w: url должен начинаться с http:// или https://", ErrValidation)
	}
	return nil
}
