// Пакет server — HTTP-сервер Access Manager с graceful shutdown.
// Без TLS: TLS termination на reverse proxy.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/errors"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/handlers"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/api/middleware"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/config"
)

// Server — HTTP-сервер Access Manager.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, jwtAuth *middleware.JWTAuth) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, handler, jwtAuth),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// NewRouter собирает маршрутизатор: публичные endpoints без аутентификации,
// /api/v1/admin/* и /api/v1/auth/me за JWT middleware.
func NewRouter(logger *slog.Logger, h *handlers.APIHandler, jwtAuth *middleware.JWTAuth) http.Handler {
	router := chi.NewRouter()

	// Адрес клиента из X-Forwarded-For / X-Real-IP (сервис стоит за reverse proxy)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(middleware.ProcessTime())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.NotFound(apierrors.RouteNotFound)
	router.MethodNotAllowed(apierrors.MethodNotAllowed)

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)
	router.Get("/status", h.GetStatus)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/request-access", h.RequestAccess)
		r.Get("/services", h.ListPublicServices)
		r.Post("/auth/token", h.IssueToken)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware())

			r.Get("/auth/me", h.GetCurrentAdmin)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/services", h.ListServices)
				r.Post("/services", h.CreateService)
				r.Patch("/services/{name}", h.UpdateService)
				r.Delete("/services/{name}", h.DeleteService)

				r.Get("/pending", h.ListPending)
				r.Get("/pending/{id}", h.GetPending)
				r.Post("/pending/{id}/accept", h.AcceptPending)
				r.Post("/pending/{id}/deny", h.DenyPending)

				r.Get("/connections", h.ListConnections)
				r.Delete("/connections/{id}", h.RevokeConnection)
				r.Get("/denied", h.ListDenied)
				r.Get("/ignored", h.ListIgnored)
				r.Delete("/ignored/{id}", h.UnignoreConnection)

				r.Get("/webhooks", h.ListWebhooks)
				r.Post("/webhooks", h.CreateWebhook)
				r.Patch("/webhooks/{event}", h.UpdateWebhook)
				r.Delete("/webhooks/{event}", h.DeleteWebhook)
			})
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст завершён, остановка сервера")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
