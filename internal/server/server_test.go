package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/handlers"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/middleware"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/repository"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/service"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/webhook"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	store := repository.NewMemoryConnectionStore()
	catalog := service.NewCatalogService(repository.NewMemoryServiceRepository(), logger)
	if _, err := catalog.Create(t.Context(), &model.Service{Name: "grafana"}); err != nil {
		t.Fatal(err)
	}
	webhooks := service.NewWebhookService(repository.NewMemoryWebhookRepository(), 16, time.Minute, logger)
	notifier := service.NewNotifier(webhooks, webhook.NewDispatcher(webhook.Options{}, logger), webhook.Owner{}, logger)
	conns := service.NewConnectionService(store, catalog, notifier, time.Hour, logger)
	auth := service.NewAuthService(service.AuthConfig{
		Username: "admin", Password: "secret", Secret: testSecret, Issuer: "access-manager",
		TTL: time.Hour, RememberTTL: 2 * time.Hour,
	}, logger)

	h := handlers.NewAPIHandler(handlers.NewHealthHandler(store, nil, false), auth, catalog, conns, webhooks, logger)
	return NewRouter(logger, h, middleware.NewJWTAuthWithKeyfunc(testSecret, "access-manager", nil, logger))
}

// TestRouter_RealIP — адрес клиента берётся из X-Forwarded-For.
func TestRouter_RealIP(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/request-access",
		strings.NewReader(`{"services": [{"name": "grafana"}], "contact_methods": {}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "198.51.100.23")
	req.RemoteAddr = "10.0.0.1:4000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("ожидался статус 201, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		IPAddress string `json:"ip_address"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.IPAddress != "198.51.100.23" {
		t.Errorf("ip_address = %q, ожидается 198.51.100.23", resp.IPAddress)
	}
}

// TestRouter_ProcessTimeHeader — X-Process-Time на публичных, закрытых и неизвестных путях.
func TestRouter_ProcessTimeHeader(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		path string
		code int
	}{
		{"/status", http.StatusOK},
		{"/api/v1/admin/pending", http.StatusUnauthorized},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.code {
			t.Errorf("%s: статус %d, ожидается %d", tt.path, rec.Code, tt.code)
		}
		if rec.Header().Get(middleware.ProcessTimeHeader) == "" {
			t.Errorf("%s: отсутствует X-Process-Time", tt.path)
		}
	}
}

// TestRouter_Metrics — /metrics отдаёт HTTP-метрики после запросов.
func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/services", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "am_http_requests_total") {
		t.Error("в выводе /metrics нет am_http_requests_total")
	}
}
