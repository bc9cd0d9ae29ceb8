package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/config"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/database"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/webhook/template"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("access_test"),
		postgres.WithUsername("access"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("AM_DB_HOST", host)
	t.Setenv("AM_DB_PORT", port.Port())
	t.Setenv("AM_DB_NAME", "access_test")
	t.Setenv("AM_DB_USER", "access")
	t.Setenv("AM_DB_PASSWORD", "test-password")
	t.Setenv("AM_DB_SSL_MODE", "disable")
	t.Setenv("AM_ADMIN_USERNAME", "admin")
	t.Setenv("AM_ADMIN_PASSWORD", "admin")
	t.Setenv("AM_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Тесты ConnectionStore ---

func TestConnectionStore_Lifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := NewConnectionStore(pool)

	expiry := 2
	note := "нужен доступ"
	lat, lon := 55.75, 37.62
	name := "Alice"
	p := &model.PendingConnection{
		ID:             model.NewID(time.Now()),
		IPAddress:      "10.1.1.1",
		Service:        model.ServiceItem{Name: "grafana", Expiry: &expiry},
		ContactMethods: model.NewContactMethods(&name, "alice@example.com", "+100"),
		Note:           &note,
		Lat:            &lat,
		Lon:            &lon,
	}

	if err := store.CreatePending(ctx, p); err != nil {
		t.Fatalf("CreatePending() ошибка: %v", err)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	got, err := store.GetPending(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPending() ошибка: %v", err)
	}
	if got.Service.Expiry == nil || *got.Service.Expiry != 2 {
		t.Errorf("Service.Expiry = %v, ожидается 2", got.Service.Expiry)
	}
	if got.ContactMethods.PrimaryEmail() != "alice@example.com" {
		t.Errorf("PrimaryEmail = %q", got.ContactMethods.PrimaryEmail())
	}
	if got.ContactMethods.DisplayName() != "Alice" {
		t.Errorf("DisplayName = %q", got.ContactMethods.DisplayName())
	}

	expireAt := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Microsecond)
	err = store.InTx(ctx, func(repo ConnectionRepository) error {
		taken, err := repo.TakePending(ctx, p.ID)
		if err != nil {
			return err
		}
		return repo.InsertAllowed(ctx, &model.AllowedConnection{
			ID:             taken.ID,
			IPAddress:      taken.IPAddress,
			ServiceName:    taken.Service.Name,
			ExpireAt:       &expireAt,
			ContactMethods: taken.ContactMethods,
		})
	})
	if err != nil {
		t.Fatalf("InTx() ошибка: %v", err)
	}

	if _, err := store.GetPending(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPending() после принятия = %v, ожидается ErrNotFound", err)
	}

	allowed, err := store.TakeAllowed(ctx, p.ID)
	if err != nil {
		t.Fatalf("TakeAllowed() ошибка: %v", err)
	}
	if allowed.ExpireAt == nil || !allowed.ExpireAt.Equal(expireAt) {
		t.Errorf("ExpireAt = %v, ожидается %v", allowed.ExpireAt, expireAt)
	}
	if _, err := store.TakeAllowed(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный TakeAllowed() = %v, ожидается ErrNotFound", err)
	}
}

func TestConnectionStore_InTxRollback(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := NewConnectionStore(pool)

	p := &model.PendingConnection{
		ID:             model.NewID(time.Now()),
		IPAddress:      "10.1.1.2",
		Service:        model.ServiceItem{Name: "wiki"},
		ContactMethods: model.NewContactMethods(nil, "", ""),
	}
	if err := store.CreatePending(ctx, p); err != nil {
		t.Fatalf("CreatePending() ошибка: %v", err)
	}

	boom := errors.New("boom")
	err := store.InTx(ctx, func(repo ConnectionRepository) error {
		if _, err := repo.TakePending(ctx, p.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() = %v, ожидается boom", err)
	}
	if _, err := store.GetPending(ctx, p.ID); err != nil {
		t.Errorf("заявка должна остаться после отката: %v", err)
	}
}

func TestConnectionStore_ConcurrentTakePending(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := NewConnectionStore(pool)

	p := &model.PendingConnection{
		ID:             model.NewID(time.Now()),
		IPAddress:      "10.1.1.3",
		Service:        model.ServiceItem{Name: "wiki"},
		ContactMethods: model.NewContactMethods(nil, "", ""),
	}
	if err := store.CreatePending(ctx, p); err != nil {
		t.Fatalf("CreatePending() ошибка: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.InTx(ctx, func(repo ConnectionRepository) error {
				taken, err := repo.TakePending(ctx, p.ID)
				if err != nil {
					return err
				}
				return repo.InsertDenied(ctx, &model.DeniedConnection{
					ID: taken.ID, IPAddress: taken.IPAddress, ServiceName: taken.Service.Name,
					ContactMethods: taken.ContactMethods,
				})
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, ErrNotFound) {
				t.Errorf("неожиданная ошибка: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("успешных транзакций = %d, ожидается 1", winners)
	}
	denied, err := store.ListDenied(ctx, 100, 0)
	if err != nil {
		t.Fatalf("ListDenied() ошибка: %v", err)
	}
	if len(denied) != 1 {
		t.Errorf("denied = %d записей, ожидается 1", len(denied))
	}
}

func TestConnectionStore_IgnoredAndExpired(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := NewConnectionStore(pool)

	ig := &model.IgnoredConnection{
		ID: model.NewID(time.Now()), IPAddress: "10.9.9.9", ServiceName: "wiki",
		ContactMethods: model.NewContactMethods(nil, "", ""), Blocked: true,
	}
	if err := store.InsertIgnored(ctx, ig); err != nil {
		t.Fatalf("InsertIgnored() ошибка: %v", err)
	}
	if ok, err := store.IsIgnored(ctx, "10.9.9.9"); err != nil || !ok {
		t.Errorf("IsIgnored() = %v, %v; ожидается true", ok, err)
	}
	if _, err := store.TakeIgnored(ctx, ig.ID); err != nil {
		t.Fatalf("TakeIgnored() ошибка: %v", err)
	}
	if _, err := store.TakeIgnored(ctx, ig.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный TakeIgnored() = %v, ожидается ErrNotFound", err)
	}

	past := time.Now().UTC().Add(-time.Minute)
	expired := &model.AllowedConnection{
		ID: model.NewID(time.Now()), IPAddress: "10.2.2.2", ServiceName: "wiki", ExpireAt: &past,
		ContactMethods: model.NewContactMethods(nil, "", ""),
	}
	permanent := &model.AllowedConnection{
		ID: model.NewID(time.Now()), IPAddress: "10.2.2.3", ServiceName: "wiki",
		ContactMethods: model.NewContactMethods(nil, "", ""),
	}
	for _, a := range []*model.AllowedConnection{expired, permanent} {
		if err := store.InsertAllowed(ctx, a); err != nil {
			t.Fatalf("InsertAllowed() ошибка: %v", err)
		}
	}
	removed, err := store.DeleteExpiredAllowed(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteExpiredAllowed() ошибка: %v", err)
	}
	if len(removed) != 1 || removed[0].ID != expired.ID {
		t.Errorf("удалено %d записей, ожидается только истёкшая", len(removed))
	}
}

// --- Тесты WebhookRepository ---

func TestWebhookRepository_CRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewWebhookRepository(pool)

	body, err := template.FromAny(map[string]any{"text": "{{service}}", "n": float64(1)})
	if err != nil {
		t.Fatalf("FromAny() ошибка: %v", err)
	}
	w := &model.WebhookConfig{
		Event:   model.EventPendingNew,
		Method:  "POST",
		URL:     "https://hooks.example.com/{{service}}",
		Headers: map[string]string{"X-Ip": "{{ip_address}}"},
		Body:    body,
	}

	if err := repo.Create(ctx, w); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if err := repo.Create(ctx, w); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Create() = %v, ожидается ErrConflict", err)
	}

	got, err := repo.Get(ctx, model.EventPendingNew)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.Headers["X-Ip"] != "{{ip_address}}" {
		t.Errorf("Headers = %v", got.Headers)
	}
	if got.QueryParams != nil {
		t.Errorf("QueryParams = %v, ожидается nil", got.QueryParams)
	}
	m, ok := got.Body.(template.Mapping)
	if !ok || m["text"] != template.Text("{{service}}") {
		t.Errorf("Body = %#v", got.Body)
	}

	got.Method = "PUT"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if err := repo.Update(ctx, &model.WebhookConfig{Event: model.EventPendingDenied, Method: "GET", URL: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() отсутствующего = %v, ожидается ErrNotFound", err)
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 1 || list[0].Method != "PUT" {
		t.Errorf("List() = %v, %v", list, err)
	}

	if err := repo.Delete(ctx, model.EventPendingNew); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if err := repo.Delete(ctx, model.EventPendingNew); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete() = %v, ожидается ErrNotFound", err)
	}
}

// --- Тесты ServiceRepository ---

func TestServiceRepository_CRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewServiceRepository(pool)

	s := &model.Service{
		Name: "grafana", InternalAddress: "10.0.0.10", Port: 3000, Protocol: model.ProtocolHTTP,
	}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if err := repo.Create(ctx, s); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Create() = %v, ожидается ErrConflict", err)
	}

	s.Port = 3001
	if err := repo.Update(ctx, "grafana", s); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	got, err := repo.Get(ctx, "grafana")
	if err != nil || got.Port != 3001 {
		t.Errorf("Get() = %+v, %v", got, err)
	}

	if err := repo.Delete(ctx, "grafana"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.Get(ctx, "grafana"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() после удаления = %v, ожидается ErrNotFound", err)
	}
}
