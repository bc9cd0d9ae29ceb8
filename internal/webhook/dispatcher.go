// Пакет webhook — отправка исходящих уведомлений по настроенным webhook.
//
// Dispatcher рендерит шаблоны конфигурации, строит HTTP-запрос и выполняет его
// в отдельной горутине с собственным таймаутом. Любые ошибки отправки
// логируются и не выходят за пределы пакета.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/webhook/template"
)

// DefaultTimeout — таймаут одного webhook-запроса по умолчанию.
const DefaultTimeout = 10 * time.Second

// maxResponseBody — сколько байт тела ответа сохраняется в Response.
const maxResponseBody = 64 << 10

// Результаты отправки (лейбл result).
const (
	resultSuccess        = "success"
	resultHTTPError      = "http_error"
	resultTransportError = "transport_error"
	resultBuildError     = "build_error"
	resultPanic          = "panic"
)

// Prometheus метрики отправки webhook.
var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "am_webhook_dispatch_total",
		Help: "Общее количество отправок webhook по событию и результату",
	}, []string{"event", "result"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "am_webhook_dispatch_duration_seconds",
		Help:    "Длительность отправки webhook в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"event"})
)

// Response — ответ webhook-получателя.
type Response struct {
	StatusCode int
	Body       []byte
}

// Options — параметры Dispatcher.
type Options struct {
	// HTTP-клиент (nil — новый клиент без таймаута, таймаут задаёт контекст)
	Client *http.Client
	// Таймаут запроса (0 — DefaultTimeout)
	Timeout time.Duration
	// Detached — не ждать завершения отправки
	Detached bool
}

// Dispatcher отправляет webhook-запросы.
type Dispatcher struct {
	client   *http.Client
	timeout  time.Duration
	detached bool
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(opts Options, logger *slog.Logger) *Dispatcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		client:   client,
		timeout:  timeout,
		detached: opts.Detached,
		logger:   logger.With(slog.String("component", "webhook_dispatcher")),
	}
}

// Dispatch рендерит cfg с переменными vars и отправляет запрос.
//
// Запрос выполняется в отдельной горутине; отмена ctx его не прерывает.
// В режиме await возвращает ответ получателя (в том числе не-2xx) или nil
// при ошибке транспорта, таймауте или ошибке построения запроса.
// В режиме detached всегда возвращает nil.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg *model.WebhookConfig, vars template.Context) *Response {
	if cfg == nil {
		return nil
	}

	done := make(chan *Response, 1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		var resp *Response
		defer func() {
			if r := recover(); r != nil {
				dispatchTotal.WithLabelValues(string(cfg.Event), resultPanic).Inc()
				d.logger.Error("Паника при отправке webhook",
					slog.String("event", string(cfg.Event)),
					slog.String("panic", fmt.Sprint(r)),
				)
				resp = nil
			}
			done <- resp
		}()

		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		resp = d.send(reqCtx, cfg, vars)
	}()

	if d.detached {
		return nil
	}
	return <-done
}

// Wait ожидает завершения всех начатых отправок.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// send выполняет один webhook-запрос.
func (d *Dispatcher) send(ctx context.Context, cfg *model.WebhookConfig, vars template.Context) *Response {
	event := string(cfg.Event)
	start := time.Now()
	defer func() {
		dispatchDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())
	}()

	req, err := BuildRequest(ctx, cfg, vars)
	if err != nil {
		dispatchTotal.WithLabelValues(event, resultBuildError).Inc()
		d.logger.Error("Ошибка построения webhook-запроса",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return nil
	}

	httpResp, err := d.client.Do(req)
	if err != nil {
		dispatchTotal.WithLabelValues(event, resultTransportError).Inc()
		d.logger.Warn("Webhook не доставлен",
			slog.String("event", event),
			slog.String("method", req.Method),
			slog.String("host", req.URL.Host),
			slog.String("error", err.Error()),
		)
		return nil
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		d.logger.Debug("Ошибка чтения тела ответа webhook",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	resp := &Response{StatusCode: httpResp.StatusCode, Body: body}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		dispatchTotal.WithLabelValues(event, resultHTTPError).Inc()
		d.logger.Warn("Webhook вернул ошибку",
			slog.String("event", event),
			slog.String("method", req.Method),
			slog.String("host", req.URL.Host),
			slog.Int("status", httpResp.StatusCode),
		)
		return resp
	}

	dispatchTotal.WithLabelValues(event, resultSuccess).Inc()
	d.logger.Info("Webhook отправлен",
		slog.String("event", event),
		slog.String("method", req.Method),
		slog.String("host", req.URL.Host),
		slog.Int("status", httpResp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)
	return resp
}

// BuildRequest рендерит конфигурацию webhook и строит HTTP-запрос.
// Query-параметры добавляются к query из URL, body кодируется в JSON.
// Для GET и HEAD тело не отправляется.
func BuildRequest(ctx context.Context, cfg *model.WebhookConfig, vars template.Context) (*http.Request, error) {
	u, err := url.Parse(template.RenderString(cfg.URL, vars))
	if err != nil {
		return nil, fmt.Errorf("некорректный URL webhook: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("некорректная схема URL webhook %q", u.Scheme)
	}

	if len(cfg.QueryParams) > 0 {
		q := u.Query()
		for k, v := range template.RenderStringMap(cfg.QueryParams, vars) {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	hasBody := cfg.Body != nil && cfg.Method != http.MethodGet && cfg.Method != http.MethodHead
	if hasBody {
		data, err := json.Marshal(template.Render(cfg.Body, vars).Any())
		if err != nil {
			return nil, fmt.Errorf("кодирование тела webhook: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	for k, v := range template.RenderStringMap(cfg.Headers, vars) {
		req.Header.Set(k, v)
	}
	if hasBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	cookies := template.RenderStringMap(cfg.Cookies, vars)
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.AddCookie(&http.Cookie{Name: name, Value: cookies[name]})
	}

	return req, nil
}
