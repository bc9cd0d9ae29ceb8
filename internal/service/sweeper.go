// sweeper.go — фоновая очистка одобренных подключений с истёкшим сроком.
//
// Запускается как горутина с периодическим тикером (AM_EXPIRY_SWEEP_INTERVAL).
// При интервале 0 не запускается.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
)

// Prometheus метрики очистки
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "am_expiry_sweep_runs_total",
		Help: "Общее количество запусков очистки истёкших подключений",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "am_expiry_sweep_duration_seconds",
		Help:    "Длительность очистки истёкших подключений в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})
)

// ExpiredPurger удаляет истёкшие подключения.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) ([]*model.AllowedConnection, error)
}

// SweepResult — результат одного запуска очистки.
type SweepResult struct {
	// Removed — количество удалённых подключений
	Removed int
	// Err — ошибка хранилища (nil при успехе)
	Err error
	// Duration — длительность выполнения
	Duration time.Duration
}

// ExpirySweeper — сервис фоновой очистки истёкших подключений.
type ExpirySweeper struct {
	purger   ExpiredPurger
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExpirySweeper создаёт сервис очистки.
func NewExpirySweeper(purger ExpiredPurger, interval time.Duration, logger *slog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		purger:   purger,
		interval: interval,
		logger:   logger.With(slog.String("component", "expiry_sweeper")),
	}
}

// Start запускает фоновую горутину очистки.
func (s *ExpirySweeper) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(sweepCtx)

	s.logger.Info("Очистка истёкших подключений запущена",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновую очистку и дожидается завершения текущего цикла.
func (s *ExpirySweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Очистка истёкших подключений остановлена")
}

// run — основной цикл фоновой горутины.
func (s *ExpirySweeper) run(ctx context.Context) {
	defer close(s.done)

	// Первый запуск — сразу после старта
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл очистки.
func (s *ExpirySweeper) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	removed, err := s.purger.PurgeExpired(ctx)
	result.Removed = len(removed)
	result.Err = err
	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	if err != nil {
		s.logger.Error("Ошибка очистки истёкших подключений",
			slog.String("error", err.Error()),
		)
		return result
	}

	for _, a := range removed {
		s.logger.Debug("Истёкшее подключение удалено",
			slog.String("id", a.ID),
			slog.String("ip_address", a.IPAddress),
			slog.String("service", a.ServiceName),
		)
	}
	if result.Removed > 0 {
		s.logger.Info("Очистка завершена",
			slog.Int("removed", result.Removed),
			slog.Duration("duration", result.Duration),
		)
	}

	return result
}
