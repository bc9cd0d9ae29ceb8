package service

import (
	"context"
	"errors"
	"testing"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/repository"
)

func newTestCatalog() *CatalogService {
	return NewCatalogService(repository.NewMemoryServiceRepository(), testLogger())
}

func TestCatalogService_CreateDefaults(t *testing.T) {
	svc := newTestCatalog()
	s, err := svc.Create(context.Background(), &model.Service{Name: "wiki"})
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if s.InternalAddress != "127.0.0.1" || s.Port != 80 || s.Protocol != "http" {
		t.Errorf("значения по умолчанию не применены: %+v", s)
	}

	ok, err := svc.Exists(context.Background(), "wiki")
	if err != nil || !ok {
		t.Errorf("Exists(wiki) = %v, %v", ok, err)
	}
	ok, _ = svc.Exists(context.Background(), "nope")
	if ok {
		t.Error("Exists(nope) = true")
	}
}

func TestCatalogService_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		svc  model.Service
	}{
		{"пустое имя", model.Service{}},
		{"некорректный адрес", model.Service{Name: "a", InternalAddress: "not-an-ip"}},
		{"порт вне диапазона", model.Service{Name: "a", Port: 70000}},
		{"неизвестный протокол", model.Service{Name: "a", Protocol: "ftp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.svc
			if _, err := newTestCatalog().Create(context.Background(), &s); !errors.Is(err, ErrValidation) {
				t.Errorf("Create() = %v, ожидается ErrValidation", err)
			}
		})
	}
}

func TestCatalogService_CreateConflict(t *testing.T) {
	svc := newTestCatalog()
	ctx := context.Background()
	if _, err := svc.Create(ctx, &model.Service{Name: "wiki"}); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if _, err := svc.Create(ctx, &model.Service{Name: "wiki"}); !errors.Is(err, ErrConflict) {
		t.Errorf("повторный Create() = %v, ожидается ErrConflict", err)
	}
}

func TestCatalogService_Update(t *testing.T) {
	svc := newTestCatalog()
	ctx := context.Background()
	for _, name := range []string{"wiki", "grafana"} {
		if _, err := svc.Create(ctx, &model.Service{Name: name}); err != nil {
			t.Fatalf("Create(%s) ошибка: %v", name, err)
		}
	}

	if _, err := svc.Update(ctx, "wiki", model.ServicePatch{}); !errors.Is(err, ErrValidation) {
		t.Errorf("Update() пустой = %v, ожидается ErrValidation", err)
	}

	port := 8080
	s, err := svc.Update(ctx, "wiki", model.ServicePatch{Port: &port})
	if err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if s.Port != 8080 || s.Protocol != "http" {
		t.Errorf("Update() = %+v", s)
	}

	taken := "grafana"
	if _, err := svc.Update(ctx, "wiki", model.ServicePatch{Name: &taken}); !errors.Is(err, ErrConflict) {
		t.Errorf("переименование в занятое имя = %v, ожидается ErrConflict", err)
	}
	if _, err := svc.Update(ctx, "missing", model.ServicePatch{Port: &port}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) = %v, ожидается ErrNotFound", err)
	}
}

func TestCatalogService_Delete(t *testing.T) {
	svc := newTestCatalog()
	ctx := context.Background()
	if _, err := svc.Create(ctx, &model.Service{Name: "wiki"}); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if err := svc.Delete(ctx, "wiki"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if err := svc.Delete(ctx, "wiki"); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete() = %v, ожидается ErrNotFound", err)
	}
}
