// catalog.go — каталог внутренних сервисов, к которым запрашивается доступ.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/repository"
)

// CatalogService — CRUD каталога сервисов.
type CatalogService struct {
	repo   repository.ServiceRepository
	logger *slog.Logger
}

// NewCatalogService создаёт сервис каталога.
func NewCatalogService(repo repository.ServiceRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		logger: logger.With(slog.String("component", "catalog")),
	}
}

// Create регистрирует сервис. Незаданные адрес, порт и протокол
// заполняются значениями по умолчанию.
func (s *CatalogService) Create(ctx context.Context, svc *model.Service) (*model.Service, error) {
	if svc.InternalAddress == "" {
		svc.InternalAddress = model.DefaultServiceAddress
	}
	if svc.Port == 0 {
		svc.Port = model.DefaultServicePort
	}
	if svc.Protocol == "" {
		svc.Protocol = model.DefaultServiceProtocol
	}
	if err := validateService(svc); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, svc); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: сервис %q уже существует", ErrConflict, svc.Name)
		}
		return nil, fmt.Errorf("создание сервиса: %w", err)
	}

	s.logger.Info("Сервис зарегистрирован",
		slog.String("name", svc.Name),
		slog.String("address", net.JoinHostPort(svc.InternalAddress, fmt.Sprint(svc.Port))),
	)
	return svc, nil
}

// Get возвращает сервис по имени.
func (s *CatalogService) Get(ctx context.Context, name string) (*model.Service, error) {
	svc, err := s.repo.Get(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: сервис %q не найден", ErrNotFound, name)
		}
		return nil, fmt.Errorf("получение сервиса: %w", err)
	}
	return svc, nil
}

// List возвращает все сервисы каталога.
func (s *CatalogService) List(ctx context.Context) ([]*model.Service, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение списка сервисов: %w", err)
	}
	return items, nil
}

// Exists проверяет, зарегистрирован ли сервис.
func (s *CatalogService) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.repo.Get(ctx, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("проверка сервиса: %w", err)
}

// Update применяет частичное изменение. Пустой patch — ошибка валидации.
func (s *CatalogService) Update(ctx context.Context, name string, patch model.ServicePatch) (*model.Service, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: не задано ни одного поля для изменения", ErrValidation)
	}

	svc, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	patch.Apply(svc)
	if err := validateService(svc); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, name, svc); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: сервис %q не найден", ErrNotFound, name)
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: сервис %q уже существует", ErrConflict, svc.Name)
		}
		return nil, fmt.Errorf("обновление сервиса: %w", err)
	}

	s.logger.Info("Сервис обновлён",
		slog.String("name", name),
		slog.String("new_name", svc.Name),
	)
	return svc, nil
}

// Delete удаляет сервис из каталога.
func (s *CatalogService) Delete(ctx context.Context, name string) error {
	if err := s.repo.Delete(ctx, name); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: сервис %q не найден", ErrNotFound, name)
		}
		return fmt.Errorf("удаление сервиса: %w", err)
	}
	s.logger.Info("Сервис удалён", slog.String("name", name))
	return nil
}

func validateService(svc *model.Service) error {
	switch {
	case svc.Name == "" || len(svc.Name) > 200:
		return fmt.Errorf("%w: имя сервиса должно быть от 1 до 200 символов", ErrValidation)
	case svc.Description != nil && len(*svc.Description) > 200:
		return fmt.Errorf("%w: описание не длиннее 200 символов", ErrValidation)
	case net.ParseIP(svc.InternalAddress) == nil:
		return fmt.Errorf("%w: некорректный IP-адрес %q", ErrValidation, svc.InternalAddress)
	case svc.Port < 1 || svc.Port > 65535:
		return fmt.Errorf("%w: порт %d вне диапазона 1-65535", ErrValidation, svc.Port)
	case svc.Protocol != model.ProtocolHTTP && svc.Protocol != model.ProtocolHTTPS:
		return fmt.Errorf("%w: протокол должен быть http или https", ErrValidation)
	}
	return nil
}
