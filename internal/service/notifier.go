// notifier.go — уведомления о переходах жизненного цикла подключений.
//
// Notifier находит webhook для события, собирает переменные шаблона
// (общие + специфичные для события) и передаёт их Dispatcher.
// Отсутствие webhook для события — не ошибка.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/webhook"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/webhook/template"
)

// WebhookLookup возвращает webhook для события или nil, если он не настроен.
type WebhookLookup interface {
	Lookup(ctx context.Context, event model.Event) (*model.WebhookConfig, error)
}

// WebhookSender отправляет отрендеренный webhook.
type WebhookSender interface {
	Dispatch(ctx context.Context, cfg *model.WebhookConfig, vars template.Context) *webhook.Response
}

// Notifier — уведомления о событиях подключений через webhook.
type Notifier struct {
	lookup WebhookLookup
	sender WebhookSender
	owner  webhook.Owner
	now    func() time.Time
	logger *slog.Logger
}

// NewNotifier создаёт Notifier.
func NewNotifier(lookup WebhookLookup, sender WebhookSender, owner webhook.Owner, logger *slog.Logger) *Notifier {
	return &Notifier{
		lookup: lookup,
		sender: sender,
		owner:  owner,
		now:    time.Now,
		logger: logger.With(slog.String("component", "notifier")),
	}
}

// PendingNew — создана новая заявка.
func (n *Notifier) PendingNew(ctx context.Context, p *model.PendingConnection) {
	note := ""
	if p.Note != nil {
		note = *p.Note
	}
	vars := contactContext(p.ContactMethods)
	vars["ip_address"] = p.IPAddress
	vars["service"] = p.Service.Name
	vars["note"] = note
	n.notify(ctx, model.EventPendingNew, vars)
}

// PendingAccepted — заявка одобрена.
func (n *Notifier) PendingAccepted(ctx context.Context, a *model.AllowedConnection) {
	n.notify(ctx, model.EventPendingAccepted, allowedContext(a))
}

// PendingDenied — заявка отклонена (в том числе с блокировкой).
func (n *Notifier) PendingDenied(ctx context.Context, d *model.DeniedConnection) {
	vars := contactContext(d.ContactMethods)
	vars["ip_address"] = d.IPAddress
	vars["service"] = d.ServiceName
	n.notify(ctx, model.EventPendingDenied, vars)
}

// ConnectionRevoked — одобренный доступ отозван.
func (n *Notifier) ConnectionRevoked(ctx context.Context, a *model.AllowedConnection) {
	n.notify(ctx, model.EventConnectionRevoked, allowedContext(a))
}

// notify отправляет webhook события, если он настроен. Ошибки только логируются.
func (n *Notifier) notify(ctx context.Context, event model.Event, vars template.Context) {
	cfg, err := n.lookup.Lookup(ctx, event)
	if err != nil {
		n.logger.Error("Ошибка получения webhook",
			slog.String("event", string(event)),
			slog.String("error", err.Error()),
		)
		return
	}
	if cfg == nil {
		n.logger.Debug("Webhook для события не настроен", slog.String("event", string(event)))
		return
	}

	n.sender.Dispatch(ctx, cfg, webhook.DefaultContext(n.now(), n.owner).Merge(vars))
}

func allowedContext(a *model.AllowedConnection) template.Context {
	vars := contactContext(a.ContactMethods).Merge(webhook.ExpiryContext(a.ExpireAt))
	vars["ip_address"] = a.IPAddress
	vars["service"] = a.ServiceName
	return vars
}

func contactContext(c model.ContactMethods) template.Context {
	return template.Context{
		"name":         c.DisplayName(),
		"email":        c.PrimaryEmail(),
		"phone_number": c.PrimaryPhone(),
	}
}
