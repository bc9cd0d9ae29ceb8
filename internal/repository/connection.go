package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agamsol/Reverse-Proxy-Access-Control-Manager/internal/domain/model"
)

// ConnectionRepository — операции над множествами pending, allowed, denied и ignored.
// Take* атомарно находят и удаляют запись: из двух конкурентных вызовов
// с одним id запись получает ровно один, второй получает ErrNotFound.
type ConnectionRepository interface {
	// CreatePending сохраняет новую заявку.
	CreatePending(ctx context.Context, p *model.PendingConnection) error
	// GetPending возвращает заявку по id.
	GetPending(ctx context.Context, id string) (*model.PendingConnection, error)
	// ListPending возвращает заявки по времени создания.
	ListPending(ctx context.Context, limit, offset int) ([]*model.PendingConnection, error)
	// TakePending атомарно удаляет и возвращает заявку.
	TakePending(ctx context.Context, id string) (*model.PendingConnection, error)

	// InsertAllowed сохраняет одобренное подключение.
	InsertAllowed(ctx context.Context, a *model.AllowedConnection) error
	// ListAllowed возвращает одобренные подключения.
	ListAllowed(ctx context.Context, limit, offset int) ([]*model.AllowedConnection, error)
	// TakeAllowed атомарно удаляет и возвращает одобренное подключение.
	TakeAllowed(ctx context.Context, id string) (*model.AllowedConnection, error)
	// DeleteExpiredAllowed удаляет подключения с ExpireAt <= now и возвращает их.
	DeleteExpiredAllowed(ctx context.Context, now time.Time) ([]*model.AllowedConnection, error)

	// InsertDenied сохраняет отклонённую заявку.
	InsertDenied(ctx context.Context, d *model.DeniedConnection) error
	// ListDenied возвращает отклонённые заявки.
	ListDenied(ctx context.Context, limit, offset int) ([]*model.DeniedConnection, error)

	// InsertIgnored сохраняет блокировку источника.
	InsertIgnored(ctx context.Context, i *model.IgnoredConnection) error
	// ListIgnored возвращает заблокированные источники.
	ListIgnored(ctx context.Context, limit, offset int) ([]*model.IgnoredConnection, error)
	// TakeIgnored атомарно снимает блокировку и возвращает её.
	TakeIgnored(ctx context.Context, id string) (*model.IgnoredConnection, error)
	// IsIgnored проверяет, заблокирован ли адрес источника.
	IsIgnored(ctx context.Context, ipAddress string) (bool, error)
}

// ConnectionStore — ConnectionRepository с поддержкой единиц работы.
type ConnectionStore interface {
	ConnectionRepository
	// InTx выполняет fn атомарно: все изменения fn применяются целиком или не применяются.
	InTx(ctx context.Context, fn func(repo ConnectionRepository) error) error
}

// connectionRepo — реализация ConnectionRepository поверх PostgreSQL.
type connectionRepo struct {
	db DBTX
}

// NewConnectionRepository создаёт репозиторий подключений.
func NewConnectionRepository(db DBTX) ConnectionRepository {
	return &connectionRepo{db: db}
}

// pgConnectionStore — ConnectionStore поверх pgxpool.
type pgConnectionStore struct {
	ConnectionRepository
	tx *TxRunner
}

// NewConnectionStore создаёт хранилище подключений PostgreSQL.
func NewConnectionStore(pool *pgxpool.Pool) ConnectionStore {
	return &pgConnectionStore{
		ConnectionRepository: NewConnectionRepository(pool),
		tx:                   NewTxRunner(pool),
	}
}

func (s *pgConnectionStore) InTx(ctx context.Context, fn func(repo ConnectionRepository) error) error {
	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(NewConnectionRepository(tx))
	})
}

// --- pending ---

const pendingColumns = `id, ip_address, service_name, service_expiry, contact_methods,
	note, lat, lon, created_at`

func scanPending(row pgx.Row) (*model.PendingConnection, error) {
	p := &model.PendingConnection{}
	err := row.Scan(
		&p.ID, &p.IPAddress, &p.Service.Name, &p.Service.Expiry, &p.ContactMethods,
		&p.Note, &p.Lat, &p.Lon, &p.CreatedAt,
	)
	return p, err
}

func (r *connectionRepo) CreatePending(ctx context.Context, p *model.PendingConnection) error {
	query := `
		INSERT INTO pending_connections (id, ip_address, service_name, service_expiry,
			contact_methods, note, lat, lon)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.IPAddress, p.Service.Name, p.Service.Expiry,
		p.ContactMethods, p.Note, p.Lat, p.Lon,
	).Scan(&p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: заявка %s уже существует", ErrConflict, p.ID)
		}
		return fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return nil
}

func (r *connectionRepo) GetPending(ctx context.Context, id string) (*model.PendingConnection, error) {
	query := fmt.Sprintf(`SELECT %s FROM pending_connections WHERE id = $1`, pendingColumns)
	p, err := scanPending(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return p, nil
}

func (r *connectionRepo) ListPending(ctx context.Context, limit, offset int) ([]*model.PendingConnection, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM pending_connections
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`, pendingColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка заявок: %w", err)
	}
	defer rows.Close()

	var result []*model.PendingConnection
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *connectionRepo) TakePending(ctx context.Context, id string) (*model.PendingConnection, error) {
	query := fmt.Sprintf(`DELETE FROM pending_connections WHERE id = $1 RETURNING %s`, pendingColumns)
	p, err := scanPending(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка извлечения заявки: %w", err)
	}
	return p, nil
}

// --- allowed ---

const allowedColumns = `id, ip_address, service_name, expire_at, contact_methods, created_at`

func scanAllowed(row pgx.Row) (*model.AllowedConnection, error) {
	a := &model.AllowedConnection{}
	err := row.Scan(&a.ID, &a.IPAddress, &a.ServiceName, &a.ExpireAt, &a.ContactMethods, &a.CreatedAt)
	if err == nil && a.ExpireAt != nil {
		utc := a.ExpireAt.UTC()
		a.ExpireAt = &utc
	}
	return a, err
}

func (r *connectionRepo) InsertAllowed(ctx context.Context, a *model.AllowedConnection) error {
	query := `
		INSERT INTO allowed_connections (id, ip_address, service_name, expire_at, contact_methods)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.IPAddress, a.ServiceName, a.ExpireAt, a.ContactMethods,
	).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: подключение %s уже одобрено", ErrConflict, a.ID)
		}
		return fmt.Errorf("ошибка сохранения одобренного подключения: %w", err)
	}
	return nil
}

func (r *connectionRepo) ListAllowed(ctx context.Context, limit, offset int) ([]*model.AllowedConnection, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM allowed_connections
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`, allowedColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка подключений: %w", err)
	}
	defer rows.Close()

	var result []*model.AllowedConnection
	for rows.Next() {
		a, err := scanAllowed(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования подключения: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *connectionRepo) TakeAllowed(ctx context.Context, id string) (*model.AllowedConnection, error) {
	query := fmt.Sprintf(`DELETE FROM allowed_connections WHERE id = $1 RETURNING %s`, allowedColumns)
	a, err := scanAllowed(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка извлечения подключения: %w", err)
	}
	return a, nil
}

func (r *connectionRepo) DeleteExpiredAllowed(ctx context.Context, now time.Time) ([]*model.AllowedConnection, error) {
	query := fmt.Sprintf(`
		DELETE FROM allowed_connections
		WHERE expire_at IS NOT NULL AND expire_at <= $1
		RETURNING %s`, allowedColumns)

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления истёкших подключений: %w", err)
	}
	defer rows.Close()

	var result []*model.AllowedConnection
	for rows.Next() {
		a, err := scanAllowed(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования подключения: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// --- denied ---

const deniedColumns = `id, ip_address, service_name, contact_methods, created_at`

func scanDenied(row pgx.Row) (*model.DeniedConnection, error) {
	d := &model.DeniedConnection{}
	err := row.Scan(&d.ID, &d.IPAddress, &d.ServiceName, &d.ContactMethods, &d.CreatedAt)
	return d, err
}

func (r *connectionRepo) InsertDenied(ctx context.Context, d *model.DeniedConnection) error {
	query := `
		INSERT INTO denied_connections (id, ip_address, service_name, contact_methods)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, d.ID, d.IPAddress, d.ServiceName, d.ContactMethods).Scan(&d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: заявка %s уже отклонена", ErrConflict, d.ID)
		}
		return fmt.Errorf("ошибка сохранения отклонённой заявки: %w", err)
	}
	return nil
}

func (r *connectionRepo) ListDenied(ctx context.Context, limit, offset int) ([]*model.DeniedConnection, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM denied_connections
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`, deniedColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка отклонённых заявок: %w", err)
	}
	defer rows.Close()

	var result []*model.DeniedConnection
	for rows.Next() {
		d, err := scanDenied(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования отклонённой заявки: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// --- ignored ---

const ignoredColumns = `id, ip_address, service_name, contact_methods, blocked, created_at`

func scanIgnored(row pgx.Row) (*model.IgnoredConnection, error) {
	i := &model.IgnoredConnection{}
	err := row.Scan(&i.ID, &i.IPAddress, &i.ServiceName, &i.ContactMethods, &i.Blocked, &i.CreatedAt)
	return i, err
}

func (r *connectionRepo) InsertIgnored(ctx context.Context, i *model.IgnoredConnection) error {
	query := `
		INSERT INTO ignored_connections (id, ip_address, service_name, contact_methods, blocked)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		i.ID, i.IPAddress, i.ServiceName, i.ContactMethods, i.Blocked,
	).Scan(&i.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: источник %s уже заблокирован", ErrConflict, i.ID)
		}
		return fmt.Errorf("ошибка сохранения блокировки: %w", err)
	}
	return nil
}

func (r *connectionRepo) ListIgnored(ctx context.Context, limit, offset int) ([]*model.IgnoredConnection, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM ignored_connections
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`, ignoredColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка блокировок: %w", err)
	}
	defer rows.Close()

	var result []*model.IgnoredConnection
	for rows.Next() {
		i, err := scanIgnored(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования блокировки: %w", err)
		}
		result = append(result, i)
	}
	return result, rows.Err()
}

func (r *connectionRepo) TakeIgnored(ctx context.Context, id string) (*model.IgnoredConnection, error) {
	query := fmt.Sprintf(`DELETE FROM ignored_connections WHERE id = $1 RETURNING %s`, ignoredColumns)
	i, err := scanIgnored(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка снятия блокировки: %w", err)
	}
	return i, nil
}

func (r *connectionRepo) IsIgnored(ctx context.Context, ipAddress string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ignored_connections WHERE ip_address = $1 AND blocked)`,
		ipAddress,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки блокировки: %w", err)
	}
	return exists, nil
}
