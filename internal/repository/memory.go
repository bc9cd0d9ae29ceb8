package repository

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
)

// memoryState — множества подключений in-memory хранилища.
type memoryState struct {
	pending map[string]*model.PendingConnection
	allowed map[string]*model.AllowedConnection
	denied  map[string]*model.DeniedConnection
	ignored map[string]*model.IgnoredConnection
}

func newMemoryState() *memoryState {
	return &memoryState{
		pending: map[string]*model.PendingConnection{},
		allowed: map[string]*model.AllowedConnection{},
		denied:  map[string]*model.DeniedConnection{},
		ignored: map[string]*model.IgnoredConnection{},
	}
}

// snapshot копирует карты состояния (записи не меняются на месте, поэтому копии указателей достаточно).
func (s *memoryState) snapshot() *memoryState {
	return &memoryState{
		pending: maps.Clone(s.pending),
		allowed: maps.Clone(s.allowed),
		denied:  maps.Clone(s.denied),
		ignored: maps.Clone(s.ignored),
	}
}

// MemoryConnectionStore — ConnectionStore в памяти процесса.
// Все операции сериализуются одним mutex; InTx откатывает состояние при ошибке fn.
type MemoryConnectionStore struct {
	mu  sync.Mutex
	st  *memoryState
	now func() time.Time
}

var _ ConnectionStore = (*MemoryConnectionStore)(nil)

// NewMemoryConnectionStore создаёт пустое in-memory хранилище подключений.
func NewMemoryConnectionStore() *MemoryConnectionStore {
	return &MemoryConnectionStore{
		st:  newMemoryState(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CheckReady всегда готово: хранилище живёт в памяти процесса.
func (s *MemoryConnectionStore) CheckReady() (string, string) {
	return "ok", "хранилище в памяти"
}

// InTx выполняет fn под mutex хранилища. При ошибке состояние восстанавливается.
func (s *MemoryConnectionStore) InTx(_ context.Context, fn func(repo ConnectionRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.st.snapshot()
	if err := fn(&memoryRepo{st: s.st, now: s.now}); err != nil {
		s.st = saved
		return err
	}
	return nil
}

// locked захватывает mutex и возвращает репозиторий с функцией освобождения.
func (s *MemoryConnectionStore) locked() (*memoryRepo, func()) {
	s.mu.Lock()
	return &memoryRepo{st: s.st, now: s.now}, s.mu.Unlock
}

func (s *MemoryConnectionStore) CreatePending(ctx context.Context, p *model.PendingConnection) error {
	r, unlock := s.locked()
	defer unlock()
	return r.CreatePending(ctx, p)
}

func (s *MemoryConnectionStore) GetPending(ctx context.Context, id string) (*model.PendingConnection, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.GetPending(ctx, id)
}

func (s *MemoryConnectionStore) ListPending(ctx context.Context, limit, offset int) ([]*model.PendingConnection, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.ListPending(ctx, limit, offset)
}

func (s *MemoryConnectionStore) TakePending(ctx context.Context, id string) (*model.PendingConnection, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.TakePending(ctx, id)
}

func (s *MemoryConnectionStore) InsertAllowed(ctx context.Context, a *model.AllowedConnection) error {
	r, unlock := s.locked()
	defer unlock()
	return r.InsertAllowed(ctx, a)
}

func (s *MemoryConnectionStore) ListAllowed(ctx context.Context, limit, offset int) ([]*model.AllowedConnection, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.ListAllowed(ctx, limit, offset)
}

func (s *MemoryConnectionStore) TakeAllowed(ctx context.Context, id string) (*model.AllowedConnection, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.TakeAllowed(ctx, id)
}

func (s *MemoryConnectionStore) DeleteExpiredAllowed(ctx context.Context, now time.Time) ([]*model.AllowedConnection, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.DeleteExpiredAllowed(ctx, now)
}

func (s *MemoryConnectionStore) InsertDenied(ctx context.Context, d *model.DeniedConnection) error {
	r, unlock := s.locked()
	defer unlock()
	return r.InsertDenied(ctx, d)
}

func (s *MemoryConnectionStore) ListDenied(ctx context.Context, limit, offset int) ([]*model.DeniedConnection, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.ListDenied(ctx, limit, offset)
}

func (s *MemoryConnectionStore) InsertIgnored(ctx context.Context, i *model.IgnoredConnection) error {
	r, unlock := s.locked()
	defer unlock()
	return r.InsertIgnored(ctx, i)
}

func (s *MemoryConnectionStore) ListIgnored(ctx context.Context, limit, offset int) ([]*model.IgnoredConnection, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.ListIgnored(ctx, limit, offset)
}

func (s *MemoryConnectionStore) TakeIgnored(ctx context.Context, id string) (*model.IgnoredConnection, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.TakeIgnored(ctx, id)
}

func (s *MemoryConnectionStore) IsIgnored(ctx context.Context, ipAddress string) (bool, error) {
	r, unlock := s.locked()
	defer unlock()
	return r.IsIgnored(ctx, ipAddress)
}

// memoryRepo — операции над memoryState без блокировок (вызывающий держит mutex).
type memoryRepo struct {
	st  *memoryState
	now func() time.Time
}

func (r *memoryRepo) CreatePending(_ context.Context, p *model.PendingConnection) error {
	if _, ok := r.st.pending[p.ID]; ok {
		return fmt.Errorf("%w: заявка %s уже существует", ErrConflict, p.ID)
	}
	p.CreatedAt = r.now()
	c := *p
	r.st.pending[p.ID] = &c
	return nil
}

func (r *memoryRepo) GetPending(_ context.Context, id string) (*model.PendingConnection, error) {
	p, ok := r.st.pending[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *memoryRepo) ListPending(_ context.Context, limit, offset int) ([]*model.PendingConnection, error) {
	items := make([]*model.PendingConnection, 0, len(r.st.pending))
	for _, p := range r.st.pending {
		c := *p
		items = append(items, &c)
	}
	sort.Slice(items, func(i, j int) bool {
		return before(items[i].CreatedAt, items[i].ID, items[j].CreatedAt, items[j].ID)
	})
	return page(items, limit, offset), nil
}

func (r *memoryRepo) TakePending(_ context.Context, id string) (*model.PendingConnection, error) {
	p, ok := r.st.pending[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.st.pending, id)
	return p, nil
}

func (r *memoryRepo) InsertAllowed(_ context.Context, a *model.AllowedConnection) error {
	if _, ok := r.st.allowed[a.ID]; ok {
		return fmt.Errorf("%w: подключение %s уже одобрено", ErrConflict, a.ID)
	}
	a.CreatedAt = r.now()
	c := *a
	r.st.allowed[a.ID] = &c
	return nil
}

func (r *memoryRepo) ListAllowed(_ context.Context, limit, offset int) ([]*model.AllowedConnection, error) {
	items := make([]*model.AllowedConnection, 0, len(r.st.allowed))
	for _, a := range r.st.allowed {
		c := *a
		items = append(items, &c)
	}
	sort.Slice(items, func(i, j int) bool {
		return before(items[i].CreatedAt, items[i].ID, items[j].CreatedAt, items[j].ID)
	})
	return page(items, limit, offset), nil
}

func (r *memoryRepo) TakeAllowed(_ context.Context, id string) (*model.AllowedConnection, error) {
	a, ok := r.st.allowed[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.st.allowed, id)
	return a, nil
}

func (r *memoryRepo) DeleteExpiredAllowed(_ context.Context, now time.Time) ([]*model.AllowedConnection, error) {
	var removed []*model.AllowedConnection
	for id, a := range r.st.allowed {
		if a.IsExpired(now) {
			removed = append(removed, a)
			delete(r.st.allowed, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	return removed, nil
}

func (r *memoryRepo) InsertDenied(_ context.Context, d *model.DeniedConnection) error {
	if _, ok := r.st.denied[d.ID]; ok {
		return fmt.Errorf("%w: заявка %s уже отклонена", ErrConflict, d.ID)
	}
	d.CreatedAt = r.now()
	c := *d
	r.st.denied[d.ID] = &c
	return nil
}

func (r *memoryRepo) ListDenied(_ context.Context, limit, offset int) ([]*model.DeniedConnection, error) {
	items := make([]*model.DeniedConnection, 0, len(r.st.denied))
	for _, d := range r.st.denied {
		c := *d
		items = append(items, &c)
	}
	sort.Slice(items, func(i, j int) bool {
		return before(items[i].CreatedAt, items[i].ID, items[j].CreatedAt, items[j].ID)
	})
	return page(items, limit, offset), nil
}

func (r *memoryRepo) InsertIgnored(_ context.Context, i *model.IgnoredConnection) error {
	if _, ok := r.st.ignored[i.ID]; ok {
		return fmt.Errorf("%w: источник %s уже заблокирован", ErrConflict, i.ID)
	}
	i.CreatedAt = r.now()
	c := *i
	r.st.ignored[i.ID] = &c
	return nil
}

func (r *memoryRepo) ListIgnored(_ context.Context, limit, offset int) ([]*model.IgnoredConnection, error) {
	items := make([]*model.IgnoredConnection, 0, len(r.st.ignored))
	for _, i := range r.st.ignored {
		c := *i
		items = append(items, &c)
	}
	sort.Slice(items, func(a, b int) bool {
		return before(items[a].CreatedAt, items[a].ID, items[b].CreatedAt, items[b].ID)
	})
	return page(items, limit, offset), nil
}

func (r *memoryRepo) TakeIgnored(_ context.Context, id string) (*model.IgnoredConnection, error) {
	i, ok := r.st.ignored[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.st.ignored, id)
	return i, nil
}

func (r *memoryRepo) IsIgnored(_ context.Context, ipAddress string) (bool, error) {
	for _, i := range r.st.ignored {
		if i.Blocked && i.IPAddress == ipAddress {
			return true, nil
		}
	}
	return false, nil
}

// before — порядок "created_at, id", как ORDER BY в SQL-реализации.
func before(at1 time.Time, id1 string, at2 time.Time, id2 string) bool {
	if !at1.Equal(at2) {
		return at1.Before(at2)
	}
	return id1 < id2
}

// page применяет limit/offset к отсортированному срезу.
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
