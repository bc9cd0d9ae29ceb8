package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/webhook/template"
)

// WebhookRepository — CRUD для таблицы webhooks (одна запись на событие).
type WebhookRepository interface {
	// Get возвращает webhook по событию.
	Get(ctx context.Context, event model.Event) (*model.WebhookConfig, error)
	// List возвращает все webhook.
	List(ctx context.Context) ([]*model.WebhookConfig, error)
	// Create создаёт webhook; ErrConflict, если для события он уже есть.
	Create(ctx context.Context, w *model.WebhookConfig) error
	// Update перезаписывает webhook события; ErrNotFound, если его нет.
	Update(ctx context.Context, w *model.WebhookConfig) error
	// Delete удаляет webhook события; ErrNotFound, если его нет.
	Delete(ctx context.Context, event model.Event) error
}

// webhookRepo — реализация WebhookRepository.
type webhookRepo struct {
	db DBTX
}

// NewWebhookRepository создаёт репозиторий webhook.
func NewWebhookRepository(db DBTX) WebhookRepository {
	return &webhookRepo{db: db}
}

const webhookColumns = `event, method, url, headers, query_params, cookies, body, created_at, updated_at`

func scanWebhook(row pgx.Row) (*model.WebhookConfig, error) {
	w := &model.WebhookConfig{}
	var event string
	var headers, query, cookies, body []byte
	if err := row.Scan(&event, &w.Method, &w.URL, &headers, &query, &cookies, &body,
		&w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Event = model.Event(event)

	var err error
	if w.Headers, err = unmarshalStringMap(headers); err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}
	if w.QueryParams, err = unmarshalStringMap(query); err != nil {
		return nil, fmt.Errorf("query_params: %w", err)
	}
	if w.Cookies, err = unmarshalStringMap(cookies); err != nil {
		return nil, fmt.Errorf("cookies: %w", err)
	}
	if w.Body, err = template.Decode(body); err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}
	return w, nil
}

// webhookArgs подготавливает JSONB-аргументы webhook.
func webhookArgs(w *model.WebhookConfig) (headers, query, cookies, body []byte, err error) {
	if headers, err = marshalStringMap(w.Headers); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("headers: %w", err)
	}
	if query, err = marshalStringMap(w.QueryParams); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("query_params: %w", err)
	}
	if cookies, err = marshalStringMap(w.Cookies); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("cookies: %w", err)
	}
	if body, err = template.Encode(w.Body); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("body: %w", err)
	}
	return headers, query, cookies, body, nil
}

func (r *webhookRepo) Get(ctx context.Context, event model.Event) (*model.WebhookConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhooks WHERE event = $1`, webhookColumns)
	w, err := scanWebhook(r.db.QueryRow(ctx, query, string(event)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения webhook: %w", err)
	}
	return w, nil
}

func (r *webhookRepo) List(ctx context.Context) ([]*model.WebhookConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhooks ORDER BY event`, webhookColumns)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка webhook: %w", err)
	}
	defer rows.Close()

	var result []*model.WebhookConfig
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования webhook: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (r *webhookRepo) Create(ctx context.Context, w *model.WebhookConfig) error {
	headers, query, cookies, body, err := webhookArgs(w)
	if err != nil {
		return fmt.Errorf("ошибка сериализации webhook: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO webhooks (event, method, url, headers, query_params, cookies, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		string(w.Event), w.Method, w.URL, headers, query, cookies, body,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: webhook для события %s уже существует", ErrConflict, w.Event)
		}
		return fmt.Errorf("ошибка создания webhook: %w", err)
	}
	return nil
}

func (r *webhookRepo) Update(ctx context.Context, w *model.WebhookConfig) error {
	headers, query, cookies, body, err := webhookArgs(w)
	if err != nil {
		return fmt.Errorf("ошибка сериализации webhook: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		UPDATE webhooks
		SET method = $2, url = $3, headers = $4, query_params = $5, cookies = $6, body = $7,
			updated_at = NOW()
		WHERE event = $1
		RETURNING updated_at`,
		string(w.Event), w.Method, w.URL, headers, query, cookies, body,
	).Scan(&w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления webhook: %w", err)
	}
	return nil
}

func (r *webhookRepo) Delete(ctx context.Context, event model.Event) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhooks WHERE event = $1`, string(event))
	if err != nil {
		return fmt.Errorf("ошибка удаления webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
