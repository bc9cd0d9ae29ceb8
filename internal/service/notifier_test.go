package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/webhook"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/webhook/template"
)

// mockLookup — WebhookLookup с функциональным полем.
type mockLookup struct {
	lookupFn func(ctx context.Context, event model.Event) (*model.WebhookConfig, error)
}

func (m *mockLookup) Lookup(ctx context.Context, event model.Event) (*model.WebhookConfig, error) {
	return m.lookupFn(ctx, event)
}

// capturingSender запоминает отправленные webhook.
type capturingSender struct {
	calls []sentWebhook
}

type sentWebhook struct {
	cfg  *model.WebhookConfig
	vars template.Context
}

func (s *capturingSender) Dispatch(_ context.Context, cfg *model.WebhookConfig, vars template.Context) *webhook.Response {
	s.calls = append(s.calls, sentWebhook{cfg: cfg, vars: vars})
	return &webhook.Response{StatusCode: 200}
}

func newTestNotifier(lookup WebhookLookup, sender WebhookSender) *Notifier {
	n := NewNotifier(lookup, sender, webhook.Owner{Name: "Owner", Email: "owner@example.com", Phone: "+1"}, testLogger())
	n.now = func() time.Time { return fixedNow }
	return n
}

func lookupAll() *mockLookup {
	return &mockLookup{lookupFn: func(_ context.Context, event model.Event) (*model.WebhookConfig, error) {
		return &model.WebhookConfig{Event: event, Method: "POST", URL: "http://hook"}, nil
	}}
}

func TestNotifier_PendingNewContext(t *testing.T) {
	sender := &capturingSender{}
	n := newTestNotifier(lookupAll(), sender)

	name := "Alice"
	note := "срочно"
	n.PendingNew(context.Background(), &model.PendingConnection{
		IPAddress: "10.0.0.1",
		Service:   model.ServiceItem{Name: "wiki"},
		ContactMethods: model.ContactMethods{
			Name:        &name,
			Email:       map[string]bool{"z@example.com": false, "a@example.com": true},
			PhoneNumber: map[string]bool{},
		},
		Note: &note,
	})

	if len(sender.calls) != 1 {
		t.Fatalf("Dispatch вызван %d раз, ожидается 1", len(sender.calls))
	}
	vars := sender.calls[0].vars
	want := map[string]string{
		"ip_address":         "10.0.0.1",
		"service":            "wiki",
		"note":               "срочно",
		"name":               "Alice",
		"email":              "a@example.com",
		"phone_number":       "",
		"date":               "2024-06-01",
		"time":               "12:00",
		"time_seconds":       "12:00:00",
		"owner_name":         "Owner",
		"owner_email":        "owner@example.com",
		"owner_phone_number": "+1",
		"newline":            "\n",
	}
	for k, v := range want {
		got, ok := vars[k]
		if !ok {
			t.Errorf("переменная %s отсутствует", k)
			continue
		}
		if got != v {
			t.Errorf("%s = %q, ожидается %q", k, got, v)
		}
	}
	if sender.calls[0].cfg.Event != model.EventPendingNew {
		t.Errorf("event = %s", sender.calls[0].cfg.Event)
	}
}

func TestNotifier_AcceptedExpiryFields(t *testing.T) {
	sender := &capturingSender{}
	n := newTestNotifier(lookupAll(), sender)

	at := time.Date(2024, 6, 1, 14, 30, 15, 0, time.UTC)
	n.PendingAccepted(context.Background(), &model.AllowedConnection{
		IPAddress: "10.0.0.2", ServiceName: "wiki", ExpireAt: &at,
		ContactMethods: model.NewContactMethods(nil, "", ""),
	})
	n.PendingAccepted(context.Background(), &model.AllowedConnection{
		IPAddress: "10.0.0.3", ServiceName: "wiki",
		ContactMethods: model.NewContactMethods(nil, "", ""),
	})

	if len(sender.calls) != 2 {
		t.Fatalf("Dispatch вызван %d раз, ожидается 2", len(sender.calls))
	}
	timed := sender.calls[0].vars
	if timed["expiry_date"] != "2024-06-01" || timed["expiry_time"] != "14:30" || timed["expiry_time_seconds"] != "14:30:15" {
		t.Errorf("поля срока = %v", timed)
	}
	permanent := sender.calls[1].vars
	for _, k := range []string{"expiry_date", "expiry_time", "expiry_time_seconds"} {
		if v, ok := permanent[k]; !ok || v != "" {
			t.Errorf("бессрочный доступ: %s = %q (ok=%v), ожидается пустая строка", k, v, ok)
		}
	}
}

func TestNotifier_DeniedAndRevoked(t *testing.T) {
	sender := &capturingSender{}
	n := newTestNotifier(lookupAll(), sender)
	ctx := context.Background()

	n.PendingDenied(ctx, &model.DeniedConnection{IPAddress: "10.0.0.4", ServiceName: "grafana",
		ContactMethods: model.NewContactMethods(nil, "d@example.com", "")})
	n.ConnectionRevoked(ctx, &model.AllowedConnection{IPAddress: "10.0.0.5", ServiceName: "wiki",
		ContactMethods: model.NewContactMethods(nil, "", "+7")})

	if len(sender.calls) != 2 {
		t.Fatalf("Dispatch вызван %d раз, ожидается 2", len(sender.calls))
	}
	if e := sender.calls[0].cfg.Event; e != model.EventPendingDenied {
		t.Errorf("первое событие = %s", e)
	}
	if v := sender.calls[0].vars; v["service"] != "grafana" || v["email"] != "d@example.com" {
		t.Errorf("denied vars = %v", v)
	}
	if e := sender.calls[1].cfg.Event; e != model.EventConnectionRevoked {
		t.Errorf("второе событие = %s", e)
	}
	if v := sender.calls[1].vars; v["phone_number"] != "+7" || v["ip_address"] != "10.0.0.5" {
		t.Errorf("revoked vars = %v", v)
	}
}

func TestNotifier_NoWebhookConfigured(t *testing.T) {
	sender := &capturingSender{}
	n := newTestNotifier(&mockLookup{lookupFn: func(context.Context, model.Event) (*model.WebhookConfig, error) {
		return nil, nil
	}}, sender)

	n.PendingDenied(context.Background(), &model.DeniedConnection{IPAddress: "10.0.0.6"})
	if len(sender.calls) != 0 {
		t.Errorf("Dispatch вызван %d раз без настроенного webhook", len(sender.calls))
	}
}

func TestNotifier_LookupErrorIsAbsorbed(t *testing.T) {
	sender := &capturingSender{}
	n := newTestNotifier(&mockLookup{lookupFn: func(context.Context, model.Event) (*model.WebhookConfig, error) {
		return nil, errors.New("db down")
	}}, sender)

	n.PendingNew(context.Background(), &model.PendingConnection{IPAddress: "10.0.0.7"})
	if len(sender.calls) != 0 {
		t.Errorf("Dispatch вызван при ошибке lookup")
	}
}
