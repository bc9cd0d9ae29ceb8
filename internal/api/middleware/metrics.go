// metrics.go — Prometheus-метрики HTTP API Access Manager.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "am_http_requests_total",
			Help: "Количество HTTP-запросов к Access Manager",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "am_http_request_duration_seconds",
			Help:    "Длительность обработки HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "am_http_requests_in_flight",
			Help: "Запросы, обрабатываемые в данный момент",
		},
	)
)

// MetricsMiddleware считает запросы и их длительность.
// Метка path — шаблон маршрута chi, для неизвестных путей normalizePath.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			path := routeLabel(r)
			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// routeLabel берёт шаблон маршрута из контекста chi после обработки запроса.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" && pattern != "/*" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath сворачивает идентификаторы, имена сервисов и события в шаблоны,
// чтобы случайные пути не раздували кардинальность.
// /api/v1/admin/pending/6650a1b2c3d4e5f6a7b8c9d0/accept → /api/v1/admin/pending/{id}/accept
func normalizePath(path string) string {
	collections := []struct {
		prefix string
		param  string
	}{
		{"/api/v1/admin/pending/", "{id}"},
		{"/api/v1/admin/connections/", "{id}"},
		{"/api/v1/admin/ignored/", "{id}"},
		{"/api/v1/admin/services/", "{name}"},
		{"/api/v1/admin/webhooks/", "{event}"},
	}

	for _, c := range collections {
		rest, ok := strings.CutPrefix(path, c.prefix)
		if !ok || rest == "" {
			continue
		}
		base := c.prefix + c.param
		if _, action, _ := strings.Cut(rest, "/"); action == "accept" || action == "deny" {
			return base + "/" + action
		}
		return base
	}
	return path
}
