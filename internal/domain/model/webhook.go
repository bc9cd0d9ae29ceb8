package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/webhook/template"
)

// Event — событие жизненного цикла подключения.
type Event string

// События, на которые настраиваются webhook.
const (
	EventPendingNew        Event = "pending.new"
	EventPendingAccepted   Event = "pending.accepted"
	EventPendingDenied     Event = "pending.denied"
	EventConnectionRevoked Event = "connection.revoked"
)

// Events — все поддерживаемые события.
var Events = []Event{EventPendingNew, EventPendingAccepted, EventPendingDenied, EventConnectionRevoked}

// ParseEvent проверяет и возвращает событие.
func ParseEvent(s string) (Event, error) {
	for _, e := range Events {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("неизвестное событие %q", s)
}

// Методы HTTP, допустимые для webhook.
var webhookMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "DELETE": true,
}

// ParseMethod нормализует и проверяет HTTP-метод webhook.
func ParseMethod(s string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(s))
	if !webhookMethods[m] {
		return "", fmt.Errorf("недопустимый метод %q, допустимые: GET, HEAD, POST, PUT, DELETE", s)
	}
	return m, nil
}

// WebhookConfig — настройка webhook для одного события.
// Строковые поля и body — шаблоны с переменными {{name}}.
type WebhookConfig struct {
	Event       Event             `json:"event"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	Cookies     map[string]string `json:"cookies,omitempty"`
	Body        template.Value    `json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// WebhookPatch — частичное обновление webhook (nil — поле не меняется).
type WebhookPatch struct {
	Method      *string
	URL         *string
	Headers     map[string]string
	QueryParams map[string]string
	Cookies     map[string]string
	Body        template.Value
}

// Apply применяет заданные поля patch к конфигурации.
func (p WebhookPatch) Apply(w *WebhookConfig) {
	if p.Method != nil {
		w.Method = *p.Method
	}
	if p.URL != nil {
		w.URL = *p.URL
	}
	if p.Headers != nil {
		w.Headers = p.Headers
	}
	if p.QueryParams != nil {
		w.QueryParams = p.QueryParams
	}
	if p.Cookies != nil {
		w.Cookies = p.Cookies
	}
	if p.Body != nil {
		w.Body = p.Body
	}
}
