// webhooks.go — обработчики /api/v1/admin/webhooks endpoints.
// Один webhook на событие: список, создание, частичное изменение, удаление.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/errors"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/webhook/template"
)

// webhookCreateBody — тело создания webhook.
// Строковые значения и body могут содержать переменные {{name}}.
type webhookCreateBody struct {
	Event       string            `json:"event" validate:"required"`
	Method      string            `json:"method" validate:"required"`
	URL         string            `json:"url" validate:"required,max=2048"`
	Headers     map[string]string `json:"headers"`
	QueryParams map[string]string `json:"query_params"`
	Cookies     map[string]string `json:"cookies"`
	Body        json.RawMessage   `json:"body"`
}

// webhookEditBody — тело частичного изменения (отсутствующие поля не меняются).
type webhookEditBody struct {
	Method      *string           `json:"method"`
	URL         *string           `json:"url" validate:"omitempty,max=2048"`
	Headers     map[string]string `json:"headers"`
	QueryParams map[string]string `json:"query_params"`
	Cookies     map[string]string `json:"cookies"`
	Body        json.RawMessage   `json:"body"`
}

// webhookResponse — представление webhook в API.
type webhookResponse struct {
	Event       model.Event       `json:"event"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	Cookies     map[string]string `json:"cookies,omitempty"`
	Body        any               `json:"body"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Message     string            `json:"message,omitempty"`
}

type webhookDeleteResponse struct {
	Event   model.Event `json:"event"`
	Message string      `json:"message"`
}

// ListWebhooks — GET /api/v1/admin/webhooks.
func (h *APIHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	configs, err := h.webhooks.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка webhook")
		return
	}

	items := make([]webhookResponse, len(configs))
	for i, c := range configs {
		items[i] = mapWebhook(c, "")
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateWebhook — POST /api/v1/admin/webhooks.
// 409, если для события webhook уже настроен.
func (h *APIHandler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var body webhookCreateBody
	if err := h.decodeJSON(r, &body, false); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	event, err := model.ParseEvent(body.Event)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	tmpl, err := template.Decode(body.Body)
	if err != nil {
		apierrors.ValidationError(w, "body: "+err.Error())
		return
	}

	created, err := h.webhooks.Create(r.Context(), &model.WebhookConfig{
		Event:       event,
		Method:      body.Method,
		URL:         body.URL,
		Headers:     body.Headers,
		QueryParams: body.QueryParams,
		Cookies:     body.Cookies,
		Body:        tmpl,
	})
	if err != nil {
		h.writeServiceError(w, err, "Ошибка создания webhook")
		return
	}

	writeJSON(w, http.StatusCreated, mapWebhook(created, "The webhook has been successfully created!"))
}

// UpdateWebhook — PATCH /api/v1/admin/webhooks/{event}.
func (h *APIHandler) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	event, ok := h.eventParam(w, r)
	if !ok {
		return
	}

	var body webhookEditBody
	if err := h.decodeJSON(r, &body, false); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	tmpl, err := template.Decode(body.Body)
	if err != nil {
		apierrors.ValidationError(w, "body: "+err.Error())
		return
	}

	updated, err := h.webhooks.Update(r.Context(), event, model.WebhookPatch{
		Method:      body.Method,
		URL:         body.URL,
		Headers:     body.Headers,
		QueryParams: body.QueryParams,
		Cookies:     body.Cookies,
		Body:        tmpl,
	})
	if err != nil {
		h.writeServiceError(w, err, "Ошибка изменения webhook")
		return
	}

	writeJSON(w, http.StatusOK, mapWebhook(updated, "The webhook has been successfully modified!"))
}

// DeleteWebhook — DELETE /api/v1/admin/webhooks/{event}.
func (h *APIHandler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	event, ok := h.eventParam(w, r)
	if !ok {
		return
	}

	if err := h.webhooks.Delete(r.Context(), event); err != nil {
		h.writeServiceError(w, err, "Ошибка удаления webhook")
		return
	}

	writeJSON(w, http.StatusOK, webhookDeleteResponse{
		Event:   event,
		Message: "The webhook has been successfully deleted!",
	})
}

// eventParam читает и проверяет событие из пути.
func (h *APIHandler) eventParam(w http.ResponseWriter, r *http.Request) (model.Event, bool) {
	event, err := model.ParseEvent(chi.URLParam(r, "event"))
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return "", false
	}
	return event, true
}

// mapWebhook маппит доменную модель в ответ API.
func mapWebhook(c *model.WebhookConfig, message string) webhookResponse {
	resp := webhookResponse{
		Event:       c.Event,
		Method:      c.Method,
		URL:         c.URL,
		Headers:     c.Headers,
		QueryParams: c.QueryParams,
		Cookies:     c.Cookies,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		Message:     message,
	}
	if c.Body != nil {
		resp.Body = c.Body.Any()
	}
	return resp
}
