package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
)

func newPending(id, ip, service string) *model.PendingConnection {
	return &model.PendingConnection{
		ID:             id,
		IPAddress:      ip,
		Service:        model.ServiceItem{Name: service},
		ContactMethods: model.NewContactMethods(nil, "", ""),
	}
}

func TestMemoryConnectionStore_TakePendingOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConnectionStore()

	if err := store.CreatePending(ctx, newPending("aaaaaaaaaaaaaaaaaaaaaaaa", "10.0.0.1", "wiki")); err != nil {
		t.Fatalf("CreatePending() ошибка: %v", err)
	}

	p, err := store.TakePending(ctx, "aaaaaaaaaaaaaaaaaaaaaaaa")
	if err != nil {
		t.Fatalf("TakePending() ошибка: %v", err)
	}
	if p.IPAddress != "10.0.0.1" {
		t.Errorf("IPAddress = %q, ожидается 10.0.0.1", p.IPAddress)
	}

	if _, err := store.TakePending(ctx, "aaaaaaaaaaaaaaaaaaaaaaaa"); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный TakePending() = %v, ожидается ErrNotFound", err)
	}
}

func TestMemoryConnectionStore_ConcurrentTake(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConnectionStore()
	id := "bbbbbbbbbbbbbbbbbbbbbbbb"
	if err := store.CreatePending(ctx, newPending(id, "10.0.0.2", "wiki")); err != nil {
		t.Fatalf("CreatePending() ошибка: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.TakePending(ctx, id); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, ErrNotFound) {
				t.Errorf("TakePending() неожиданная ошибка: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("успешных TakePending = %d, ожидается 1", winners)
	}
}

func TestMemoryConnectionStore_InTxRollback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConnectionStore()
	id := "cccccccccccccccccccccccc"
	if err := store.CreatePending(ctx, newPending(id, "10.0.0.3", "wiki")); err != nil {
		t.Fatalf("CreatePending() ошибка: %v", err)
	}

	boom := errors.New("boom")
	err := store.InTx(ctx, func(repo ConnectionRepository) error {
		p, err := repo.TakePending(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.InsertAllowed(ctx, &model.AllowedConnection{ID: p.ID, IPAddress: p.IPAddress}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() = %v, ожидается boom", err)
	}

	if _, err := store.GetPending(ctx, id); err != nil {
		t.Errorf("заявка должна остаться после отката: %v", err)
	}
	allowed, _ := store.ListAllowed(ctx, 100, 0)
	if len(allowed) != 0 {
		t.Errorf("allowed = %d записей после отката, ожидается 0", len(allowed))
	}
}

func TestMemoryConnectionStore_ExpiredAndIgnored(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConnectionStore()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	for _, a := range []*model.AllowedConnection{
		{ID: "000000000000000000000001", IPAddress: "1.1.1.1", ExpireAt: &past},
		{ID: "000000000000000000000002", IPAddress: "2.2.2.2", ExpireAt: &future},
		{ID: "000000000000000000000003", IPAddress: "3.3.3.3"},
	} {
		if err := store.InsertAllowed(ctx, a); err != nil {
			t.Fatalf("InsertAllowed() ошибка: %v", err)
		}
	}

	removed, err := store.DeleteExpiredAllowed(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredAllowed() ошибка: %v", err)
	}
	if len(removed) != 1 || removed[0].ID != "000000000000000000000001" {
		t.Errorf("удалены %v, ожидается только ...001", removed)
	}

	if err := store.InsertIgnored(ctx, &model.IgnoredConnection{
		ID: "000000000000000000000004", IPAddress: "4.4.4.4", Blocked: true,
	}); err != nil {
		t.Fatalf("InsertIgnored() ошибка: %v", err)
	}
	if ok, _ := store.IsIgnored(ctx, "4.4.4.4"); !ok {
		t.Error("IsIgnored(4.4.4.4) = false")
	}
	if ok, _ := store.IsIgnored(ctx, "5.5.5.5"); ok {
		t.Error("IsIgnored(5.5.5.5) = true")
	}
	if _, err := store.TakeIgnored(ctx, "000000000000000000000004"); err != nil {
		t.Fatalf("TakeIgnored() ошибка: %v", err)
	}
	if ok, _ := store.IsIgnored(ctx, "4.4.4.4"); ok {
		t.Error("IsIgnored(4.4.4.4) = true после снятия блокировки")
	}
}

func TestMemoryWebhookRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryWebhookRepository()
	w := &model.WebhookConfig{Event: model.EventPendingNew, Method: "POST", URL: "http://hook"}

	if err := repo.Create(ctx, w); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if err := repo.Create(ctx, w); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Create() = %v, ожидается ErrConflict", err)
	}
	if err := repo.Update(ctx, &model.WebhookConfig{Event: model.EventPendingDenied}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() отсутствующего = %v, ожидается ErrNotFound", err)
	}
	if err := repo.Delete(ctx, model.EventPendingNew); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if err := repo.Delete(ctx, model.EventPendingNew); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete() = %v, ожидается ErrNotFound", err)
	}
}

func TestMemoryServiceRepository_Rename(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryServiceRepository()
	for _, name := range []string{"wiki", "grafana"} {
		if err := repo.Create(ctx, &model.Service{Name: name}); err != nil {
			t.Fatalf("Create(%s) ошибка: %v", name, err)
		}
	}

	if err := repo.Update(ctx, "wiki", &model.Service{Name: "grafana"}); !errors.Is(err, ErrConflict) {
		t.Errorf("переименование в существующее имя = %v, ожидается ErrConflict", err)
	}
	if err := repo.Update(ctx, "wiki", &model.Service{Name: "docs"}); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if _, err := repo.Get(ctx, "wiki"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(wiki) после переименования = %v, ожидается ErrNotFound", err)
	}
	list, _ := repo.List(ctx)
	if len(list) != 2 || list[0].Name != "docs" || list[1].Name != "grafana" {
		t.Errorf("List() = %v", list)
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := page(items, 2, 1); len(got) != 2 || got[0] != 2 {
		t.Errorf("page(2,1) = %v", got)
	}
	if got := page(items, 10, 5); got != nil {
		t.Errorf("page(10,5) = %v, ожидается nil", got)
	}
	if got := page(items, 0, 0); len(got) != 5 {
		t.Errorf("page(0,0) = %v", got)
	}
}
