// connections.go — жизненный цикл заявок на доступ.
//
// Переходы:
//   - Create: → pending, событие pending.new
//   - Accept: pending → allowed (с вычислением ExpireAt), событие pending.accepted
//   - Deny: pending → denied (и ignored, если ignore), событие pending.denied
//   - Revoke: allowed → удалено, событие connection.revoked
//   - Unignore: ignored → удалено, без события
//
// Изменение хранилища фиксируется до отправки webhook; результат отправки
// не влияет на результат перехода.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/expiry"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/repository"
)

// Переходы (лейбл transition).
const (
	transitionCreate   = "create"
	transitionAccept   = "accept"
	transitionDeny     = "deny"
	transitionIgnore   = "ignore"
	transitionRevoke   = "revoke"
	transitionUnignore = "unignore"
	transitionExpire   = "expire"
)

// connectionTransitionsTotal — выполненные переходы жизненного цикла.
var connectionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "am_connection_transitions_total",
	Help: "Общее количество переходов жизненного цикла подключений",
}, []string{"transition"})

// EventNotifier — уведомления о переходах.
type EventNotifier interface {
	PendingNew(ctx context.Context, p *model.PendingConnection)
	PendingAccepted(ctx context.Context, a *model.AllowedConnection)
	PendingDenied(ctx context.Context, d *model.DeniedConnection)
	ConnectionRevoked(ctx context.Context, a *model.AllowedConnection)
}

// ServiceChecker проверяет наличие сервиса в каталоге.
type ServiceChecker interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// PendingInput — данные новой заявки на один сервис.
type PendingInput struct {
	IPAddress string
	Service   model.ServiceItem
	Contact   model.ContactMethods
	Note      *string
	Lat       *float64
	Lon       *float64
}

// AccessRequest — публичный запрос доступа к нескольким сервисам.
type AccessRequest struct {
	IPAddress string
	Services  []model.ServiceItem
	Contact   model.ContactMethods
	Note      *string
	Lat       *float64
	Lon       *float64
}

// ConnectionService — менеджер жизненного цикла подключений.
type ConnectionService struct {
	store      repository.ConnectionStore
	catalog    ServiceChecker
	notifier   EventNotifier
	expiryUnit time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewConnectionService создаёт менеджер жизненного цикла.
// expiryUnit — длительность одной единицы expiry в заявке.
func NewConnectionService(
	store repository.ConnectionStore,
	catalog ServiceChecker,
	notifier EventNotifier,
	expiryUnit time.Duration,
	logger *slog.Logger,
) *ConnectionService {
	return &ConnectionService{
		store:      store,
		catalog:    catalog,
		notifier:   notifier,
		expiryUnit: expiryUnit,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "connections")),
	}
}

// SetClock подменяет источник времени (тесты).
func (s *ConnectionService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateRequest создаёт заявку и отправляет pending.new.
// Повторные заявки с того же адреса не отсекаются.
func (s *ConnectionService) CreateRequest(ctx context.Context, in PendingInput) (*model.PendingConnection, error) {
	p := s.newPending(in)
	if err := s.store.CreatePending(ctx, p); err != nil {
		return nil, fmt.Errorf("создание заявки: %w", err)
	}
	s.pendingCreated(ctx, p)
	return p, nil
}

func (s *ConnectionService) newPending(in PendingInput) *model.PendingConnection {
	return &model.PendingConnection{
		ID:             model.NewID(s.now()),
		IPAddress:      in.IPAddress,
		Service:        in.Service,
		ContactMethods: in.Contact,
		Note:           in.Note,
		Lat:            in.Lat,
		Lon:            in.Lon,
	}
}

// pendingCreated вызывается после сохранения заявки.
func (s *ConnectionService) pendingCreated(ctx context.Context, p *model.PendingConnection) {
	connectionTransitionsTotal.WithLabelValues(transitionCreate).Inc()

	s.logger.Info("Заявка создана",
		slog.String("id", p.ID),
		slog.String("ip_address", p.IPAddress),
		slog.String("service", p.Service.Name),
	)

	s.notifier.PendingNew(ctx, p)
}

// RequestAccess принимает публичный запрос: создаёт заявку на каждый
// сервис из каталога. ErrBlocked для заблокированного адреса,
// ErrValidation, если ни один сервис не подошёл.
// Все сервисы проверяются до записи, заявки сохраняются одной транзакцией:
// при ошибке не остаётся ни заявок, ни отправленных pending.new.
func (s *ConnectionService) RequestAccess(ctx context.Context, req AccessRequest) ([]model.ServiceItem, error) {
	blocked, err := s.store.IsIgnored(ctx, req.IPAddress)
	if err != nil {
		return nil, fmt.Errorf("проверка блокировки: %w", err)
	}
	if blocked {
		s.logger.Info("Запрос от заблокированного адреса отклонён",
			slog.String("ip_address", req.IPAddress),
		)
		return nil, fmt.Errorf("%w: %s", ErrBlocked, req.IPAddress)
	}

	var requested []model.ServiceItem
	for _, item := range req.Services {
		ok, err := s.catalog.Exists(ctx, item.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Debug("Запрошен неизвестный сервис",
				slog.String("ip_address", req.IPAddress),
				slog.String("service", item.Name),
			)
			continue
		}
		requested = append(requested, item)
	}
	if len(requested) == 0 {
		return nil, fmt.Errorf("%w: не запрошено ни одного доступного сервиса", ErrValidation)
	}

	created := make([]*model.PendingConnection, 0, len(requested))
	err = s.store.InTx(ctx, func(repo repository.ConnectionRepository) error {
		created = created[:0]
		for _, item := range requested {
			p := s.newPending(PendingInput{
				IPAddress: req.IPAddress,
				Service:   item,
				Contact:   req.Contact,
				Note:      req.Note,
				Lat:       req.Lat,
				Lon:       req.Lon,
			})
			if err := repo.CreatePending(ctx, p); err != nil {
				return err
			}
			created = append(created, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("создание заявок: %w", err)
	}

	for _, p := range created {
		s.pendingCreated(ctx, p)
	}
	return requested, nil
}

// GetPending возвращает заявку, ожидающую решения.
func (s *ConnectionService) GetPending(ctx context.Context, id string) (*model.PendingConnection, error) {
	p, err := s.store.GetPending(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "заявка", id)
	}
	return p, nil
}

// Accept одобряет заявку: pending → allowed.
func (s *ConnectionService) Accept(ctx context.Context, id string) (*model.AllowedConnection, error) {
	var allowed *model.AllowedConnection
	err := s.store.InTx(ctx, func(repo repository.ConnectionRepository) error {
		p, err := repo.TakePending(ctx, id)
		if err != nil {
			return err
		}
		allowed = &model.AllowedConnection{
			ID:             p.ID,
			IPAddress:      p.IPAddress,
			ServiceName:    p.Service.Name,
			ExpireAt:       expiry.Compute(s.now(), p.Service.Expiry, s.expiryUnit),
			ContactMethods: p.ContactMethods,
		}
		return repo.InsertAllowed(ctx, allowed)
	})
	if err != nil {
		return nil, mapStoreError(err, "заявка", id)
	}
	connectionTransitionsTotal.WithLabelValues(transitionAccept).Inc()

	attrs := []any{
		slog.String("id", id),
		slog.String("ip_address", allowed.IPAddress),
		slog.String("service", allowed.ServiceName),
	}
	if allowed.ExpireAt != nil {
		attrs = append(attrs, slog.Time("expire_at", *allowed.ExpireAt))
	}
	s.logger.Info("Заявка одобрена", attrs...)

	s.notifier.PendingAccepted(ctx, allowed)
	return allowed, nil
}

// Deny отклоняет заявку: pending → denied. При ignore источник
// дополнительно блокируется (ignored) с тем же идентификатором.
func (s *ConnectionService) Deny(ctx context.Context, id string, ignore bool) (*model.DenyResult, error) {
	var denied *model.DeniedConnection
	err := s.store.InTx(ctx, func(repo repository.ConnectionRepository) error {
		p, err := repo.TakePending(ctx, id)
		if err != nil {
			return err
		}
		denied = &model.DeniedConnection{
			ID:             p.ID,
			IPAddress:      p.IPAddress,
			ServiceName:    p.Service.Name,
			ContactMethods: p.ContactMethods,
		}
		if err := repo.InsertDenied(ctx, denied); err != nil {
			return err
		}
		if !ignore {
			return nil
		}
		return repo.InsertIgnored(ctx, &model.IgnoredConnection{
			ID:             p.ID,
			IPAddress:      p.IPAddress,
			ServiceName:    p.Service.Name,
			ContactMethods: p.ContactMethods,
			Blocked:        true,
		})
	})
	if err != nil {
		return nil, mapStoreError(err, "заявка", id)
	}
	connectionTransitionsTotal.WithLabelValues(transitionDeny).Inc()
	if ignore {
		connectionTransitionsTotal.WithLabelValues(transitionIgnore).Inc()
	}

	s.logger.Info("Заявка отклонена",
		slog.String("id", id),
		slog.String("ip_address", denied.IPAddress),
		slog.String("service", denied.ServiceName),
		slog.Bool("ignored", ignore),
	)

	s.notifier.PendingDenied(ctx, denied)
	return &model.DenyResult{Denied: denied, Ignored: ignore}, nil
}

// Revoke отзывает одобренный доступ независимо от срока действия.
func (s *ConnectionService) Revoke(ctx context.Context, id string) (*model.AllowedConnection, error) {
	allowed, err := s.store.TakeAllowed(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "подключение", id)
	}
	connectionTransitionsTotal.WithLabelValues(transitionRevoke).Inc()

	s.logger.Info("Доступ отозван",
		slog.String("id", id),
		slog.String("ip_address", allowed.IPAddress),
		slog.String("service", allowed.ServiceName),
	)

	s.notifier.ConnectionRevoked(ctx, allowed)
	return allowed, nil
}

// Unignore снимает блокировку источника. Событие не отправляется.
func (s *ConnectionService) Unignore(ctx context.Context, id string) (*model.IgnoredConnection, error) {
	ignored, err := s.store.TakeIgnored(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "блокировка", id)
	}
	connectionTransitionsTotal.WithLabelValues(transitionUnignore).Inc()

	s.logger.Info("Блокировка снята",
		slog.String("id", id),
		slog.String("ip_address", ignored.IPAddress),
	)
	return ignored, nil
}

// PurgeExpired удаляет одобренные подключения с истёкшим сроком.
// Событие connection.revoked для них не отправляется.
func (s *ConnectionService) PurgeExpired(ctx context.Context) ([]*model.AllowedConnection, error) {
	removed, err := s.store.DeleteExpiredAllowed(ctx, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("удаление истёкших подключений: %w", err)
	}
	connectionTransitionsTotal.WithLabelValues(transitionExpire).Add(float64(len(removed)))
	return removed, nil
}

// ListPending возвращает заявки, ожидающие решения.
func (s *ConnectionService) ListPending(ctx context.Context, limit, offset int) ([]*model.PendingConnection, error) {
	items, err := s.store.ListPending(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение заявок: %w", err)
	}
	return items, nil
}

// ListAllowed возвращает одобренные подключения.
func (s *ConnectionService) ListAllowed(ctx context.Context, limit, offset int) ([]*model.AllowedConnection, error) {
	items, err := s.store.ListAllowed(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение подключений: %w", err)
	}
	return items, nil
}

// ListDenied возвращает отклонённые заявки.
func (s *ConnectionService) ListDenied(ctx context.Context, limit, offset int) ([]*model.DeniedConnection, error) {
	items, err := s.store.ListDenied(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение отклонённых заявок: %w", err)
	}
	return items, nil
}

// ListIgnored возвращает заблокированные источники.
func (s *ConnectionService) ListIgnored(ctx context.Context, limit, offset int) ([]*model.IgnoredConnection, error) {
	items, err := s.store.ListIgnored(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение блокировок: %w", err)
	}
	return items, nil
}

// mapStoreError переводит ошибки хранилища в ошибки сервисного слоя.
func mapStoreError(err error, what, id string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s %s", ErrConflict, what, id)
	}
	return fmt.Errorf("%s %s: %w", what, id, err)
}
