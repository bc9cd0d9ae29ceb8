package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
)

// ServiceRepository — CRUD для каталога сервисов (таблица services).
type ServiceRepository interface {
	// Create регистрирует сервис; ErrConflict при дубликате имени.
	Create(ctx context.Context, s *model.Service) error
	// Get возвращает сервис по имени.
	Get(ctx context.Context, name string) (*model.Service, error)
	// List возвращает все сервисы.
	List(ctx context.Context) ([]*model.Service, error)
	// Update перезаписывает сервис с именем name (имя может меняться).
	Update(ctx context.Context, name string, s *model.Service) error
	// Delete удаляет сервис.
	Delete(ctx context.Context, name string) error
}

// serviceRepo — реализация ServiceRepository.
type serviceRepo struct {
	db DBTX
}

// NewServiceRepository создаёт репозиторий каталога сервисов.
func NewServiceRepository(db DBTX) ServiceRepository {
	return &serviceRepo{db: db}
}

const serviceColumns = `name, description, internal_address, port, protocol, created_at, updated_at`

func scanService(row pgx.Row) (*model.Service, error) {
	s := &model.Service{}
	err := row.Scan(&s.Name, &s.Description, &s.InternalAddress, &s.Port, &s.Protocol,
		&s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *serviceRepo) Create(ctx context.Context, s *model.Service) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO services (name, description, internal_address, port, protocol)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		s.Name, s.Description, s.InternalAddress, s.Port, s.Protocol,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: сервис %q уже существует", ErrConflict, s.Name)
		}
		return fmt.Errorf("ошибка создания сервиса: %w", err)
	}
	return nil
}

func (r *serviceRepo) Get(ctx context.Context, name string) (*model.Service, error) {
	query := fmt.Sprintf(`SELECT %s FROM services WHERE name = $1`, serviceColumns)
	s, err := scanService(r.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сервиса: %w", err)
	}
	return s, nil
}

func (r *serviceRepo) List(ctx context.Context) ([]*model.Service, error) {
	query := fmt.Sprintf(`SELECT %s FROM services ORDER BY name`, serviceColumns)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка сервисов: %w", err)
	}
	defer rows.Close()

	var result []*model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования сервиса: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *serviceRepo) Update(ctx context.Context, name string, s *model.Service) error {
	err := r.db.QueryRow(ctx, `
		UPDATE services
		SET name = $2, description = $3, internal_address = $4, port = $5, protocol = $6,
			updated_at = NOW()
		WHERE name = $1
		RETURNING created_at, updated_at`,
		name, s.Name, s.Description, s.InternalAddress, s.Port, s.Protocol,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: сервис %q уже существует", ErrConflict, s.Name)
		}
		return fmt.Errorf("ошибка обновления сервиса: %w", err)
	}
	return nil
}

func (r *serviceRepo) Delete(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM services WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("ошибка удаления сервиса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
