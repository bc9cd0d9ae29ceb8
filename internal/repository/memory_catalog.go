package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
)

// MemoryWebhookRepository — WebhookRepository в памяти процесса.
type MemoryWebhookRepository struct {
	mu    sync.RWMutex
	items map[model.Event]*model.WebhookConfig
}

var (
	_ WebhookRepository = (*MemoryWebhookRepository)(nil)
	_ ServiceRepository = (*MemoryServiceRepository)(nil)
)

// NewMemoryWebhookRepository создаёт пустой in-memory репозиторий webhook.
func NewMemoryWebhookRepository() *MemoryWebhookRepository {
	return &MemoryWebhookRepository{items: map[model.Event]*model.WebhookConfig{}}
}

func (r *MemoryWebhookRepository) Get(_ context.Context, event model.Event) (*model.WebhookConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.items[event]
	if !ok {
		return nil, ErrNotFound
	}
	c := *w
	return &c, nil
}

func (r *MemoryWebhookRepository) List(_ context.Context) ([]*model.WebhookConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*model.WebhookConfig, 0, len(r.items))
	for _, w := range r.items {
		c := *w
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Event < result[j].Event })
	return result, nil
}

func (r *MemoryWebhookRepository) Create(_ context.Context, w *model.WebhookConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[w.Event]; ok {
		return fmt.Errorf("%w: webhook для события %s уже существует", ErrConflict, w.Event)
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	c := *w
	r.items[w.Event] = &c
	return nil
}

func (r *MemoryWebhookRepository) Update(_ context.Context, w *model.WebhookConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[w.Event]
	if !ok {
		return ErrNotFound
	}
	w.CreatedAt = existing.CreatedAt
	w.UpdatedAt = time.Now().UTC()
	c := *w
	r.items[w.Event] = &c
	return nil
}

func (r *MemoryWebhookRepository) Delete(_ context.Context, event model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[event]; !ok {
		return ErrNotFound
	}
	delete(r.items, event)
	return nil
}

// MemoryServiceRepository — ServiceRepository в памяти процесса.
type MemoryServiceRepository struct {
	mu    sync.RWMutex
	items map[string]*model.Service
}

// NewMemoryServiceRepository создаёт пустой in-memory каталог сервисов.
func NewMemoryServiceRepository() *MemoryServiceRepository {
	return &MemoryServiceRepository{items: map[string]*model.Service{}}
}

func (r *MemoryServiceRepository) Create(_ context.Context, s *model.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[s.Name]; ok {
		return fmt.Errorf("%w: сервис %q уже существует", ErrConflict, s.Name)
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	c := *s
	r.items[s.Name] = &c
	return nil
}

func (r *MemoryServiceRepository) Get(_ context.Context, name string) (*model.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[name]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s
	return &c, nil
}

func (r *MemoryServiceRepository) List(_ context.Context) ([]*model.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*model.Service, 0, len(r.items))
	for _, s := range r.items {
		c := *s
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *MemoryServiceRepository) Update(_ context.Context, name string, s *model.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[name]
	if !ok {
		return ErrNotFound
	}
	if s.Name != name {
		if _, dup := r.items[s.Name]; dup {
			return fmt.Errorf("%w: сервис %q уже существует", ErrConflict, s.Name)
		}
		delete(r.items, name)
	}
	s.CreatedAt = existing.CreatedAt
	s.UpdatedAt = time.Now().UTC()
	c := *s
	r.items[s.Name] = &c
	return nil
}

func (r *MemoryServiceRepository) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; !ok {
		return ErrNotFound
	}
	delete(r.items, name)
	return nil
}
