// handler.go — основной обработчик API.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/errors"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/service"
)

// APIHandler — основной обработчик API Access Manager.
type APIHandler struct {
	health      *HealthHandler
	auth        *service.AuthService
	catalog     *service.CatalogService
	connections *service.ConnectionService
	webhooks    *service.WebhookService
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	auth *service.AuthService,
	catalog *service.CatalogService,
	connections *service.ConnectionService,
	webhooks *service.WebhookService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		auth:        auth,
		catalog:     catalog,
		connections: connections,
		webhooks:    webhooks,
		validate:    newValidator(),
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// GetStatus — статус сервиса (делегируется в HealthHandler).
func (h *APIHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.health.Status(w, r)
}

// --- Вспомогательные функции ---

// listResponse — ответ списочных endpoints.
type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newListResponse[T any](items []T, limit, offset int) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Limit: limit, Offset: offset}
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}

// parsePagination читает limit и offset из query-параметров.
func parsePagination(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	parse := func(name string) (*int, error) {
		raw := q.Get(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("параметр %s должен быть целым числом", name)
		}
		return &v, nil
	}

	limit, err := parse("limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := parse("offset")
	if err != nil {
		return 0, 0, err
	}
	l, o := paginationDefaults(limit, offset)
	return l, o, nil
}

// decodeJSON разбирает тело запроса в dst и проверяет теги validate.
// Пустое тело допустимо, если allowEmpty.
func (h *APIHandler) decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return fmt.Errorf("некорректный JSON: %w", err)
		}
	}
	return h.validateStruct(dst)
}

// validateStruct проверяет теги validate и формирует читаемое сообщение.
func (h *APIHandler) validateStruct(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, describeFieldError(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describeFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s: обязательное поле", field)
	case "max":
		return fmt.Sprintf("%s: максимум %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s: минимум %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s: допустимые значения %s", field, e.Param())
	case "ip":
		return fmt.Sprintf("%s: ожидается IP-адрес", field)
	case "email":
		return fmt.Sprintf("%s: некорректный email", field)
	case "latitude", "longitude":
		return fmt.Sprintf("%s: некорректная координата", field)
	default:
		return fmt.Sprintf("%s: не прошло проверку %s", field, e.Tag())
	}
}

// validID проверяет идентификатор записи из пути: 24 hex-символа.
func (h *APIHandler) validID(w http.ResponseWriter, id string) bool {
	if !model.IsValidID(id) {
		apierrors.ValidationError(w, "Некорректный идентификатор: ожидается строка из 24 hex-символов")
		return false
	}
	return true
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// Нераспознанные ошибки логируются и возвращаются как 500 с сообщением fallback.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	if apierrors.FromService(w, err) {
		return
	}
	h.logger.Error(fallback, slog.String("error", err.Error()))
	apierrors.InternalError(w, fallback)
}

// newValidator создаёт validator, использующий JSON-имена полей в сообщениях.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}
